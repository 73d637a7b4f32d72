package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/oprema/internal/docstore"
)

// Documents is a docstore.Store backed by the documents table.
type Documents struct {
	db *sql.DB
}

// NewDocuments returns a document store over db. The schema must exist.
func NewDocuments(db *sql.DB) *Documents {
	return &Documents{db: db}
}

// Get implements docstore.Store.
func (d *Documents) Get(ctx context.Context, c docstore.Collection, id string) (json.RawMessage, error) {
	var data string
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, string(c), id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", c, id, err)
	}
	return json.RawMessage(data), nil
}

// Find implements docstore.Store.
func (d *Documents) Find(ctx context.Context, c docstore.Collection, filters ...docstore.Filter) ([]json.RawMessage, error) {
	query := `SELECT data FROM documents WHERE collection = ?`
	args := []any{string(c)}

	where, whereArgs, err := filterSQL(filters)
	if err != nil {
		return nil, err
	}
	query += where + ` ORDER BY rowid`
	args = append(args, whereArgs...)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", c, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", c, err)
		}
		out = append(out, json.RawMessage(data))
	}
	return out, rows.Err()
}

// Commit implements docstore.Store. All mutations run in one transaction;
// any failed precondition or constraint rolls the whole batch back.
func (d *Documents) Commit(ctx context.Context, b *docstore.Batch) error {
	if err := b.Err(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range b.Mutations() {
		if err := applyMutation(ctx, tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, m docstore.Mutation) error {
	var (
		result sql.Result
		err    error
	)

	switch m.Op {
	case docstore.OpCreate:
		result, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
			string(m.Collection), m.ID, string(m.Data),
		)
	case docstore.OpUpdate:
		where, args, ferr := filterSQL(m.Preconditions)
		if ferr != nil {
			return ferr
		}
		result, err = tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE collection = ? AND id = ?`+where,
			append([]any{string(m.Data), string(m.Collection), m.ID}, args...)...,
		)
	case docstore.OpDelete:
		where, args, ferr := filterSQL(m.Preconditions)
		if ferr != nil {
			return ferr
		}
		result, err = tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`+where,
			append([]any{string(m.Collection), m.ID}, args...)...,
		)
	default:
		return fmt.Errorf("unknown mutation op %d", m.Op)
	}

	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: %s/%s: %v", docstore.ErrConflict, m.Collection, m.ID, err)
		}
		return fmt.Errorf("writing %s/%s: %w", m.Collection, m.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s/%s write: %w", m.Collection, m.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: precondition failed on %s/%s", docstore.ErrConflict, m.Collection, m.ID)
	}
	return nil
}

// filterSQL renders filters as " AND ..." clauses over the JSON data column.
// Paths are bound as parameters, never interpolated.
func filterSQL(filters []docstore.Filter) (string, []any, error) {
	var sb strings.Builder
	var args []any
	for _, f := range filters {
		path := "$." + f.Field
		if f.Value == nil {
			sb.WriteString(` AND json_extract(data, ?) IS NULL`)
			args = append(args, path)
			continue
		}
		v, err := docstore.Scalar(f.Value)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(` AND json_extract(data, ?) = ?`)
		args = append(args, path, v)
	}
	return sb.String(), args, nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
