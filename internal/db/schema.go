package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Domain entities live in the documents
// table as JSON; the partial unique indexes back docstore.DefaultUniques.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       TEXT NOT NULL CHECK (json_valid(data)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (collection, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_active_equipment
    ON documents(json_extract(data, '$.equipment_id'))
    WHERE collection = 'custody_records' AND json_extract(data, '$.returned_at') IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON documents(json_extract(data, '$.username'))
    WHERE collection = 'users' AND json_extract(data, '$.deleted_at') IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS session_cutoffs (
    user_id    TEXT PRIMARY KEY,
    not_before INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS equipment_photos (
    equipment_id TEXT PRIMARY KEY,
    image        BLOB NOT NULL,
    thumbnail    BLOB NOT NULL,
    mime         TEXT NOT NULL,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
