// Package docstore is a small document store abstraction: documents are JSON
// values keyed by (collection, id), and every write goes through a Batch that
// commits atomically or not at all.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Collection names a set of documents of one shape.
type Collection string

// Collections.
const (
	Units     Collection = "units"
	Personnel Collection = "personnel"
	Equipment Collection = "equipment"
	Custody   Collection = "custody_records"
	Transfers Collection = "transfer_requests"
	Scopes    Collection = "leader_scopes"
	Users     Collection = "users"
)

// ErrConflict is returned by Commit when a precondition or uniqueness
// constraint does not hold. Nothing in the batch has been applied.
var ErrConflict = errors.New("document conflict")

// Store reads documents and commits batches.
type Store interface {
	// Get returns the raw document, or nil if it does not exist.
	Get(ctx context.Context, c Collection, id string) (json.RawMessage, error)
	// Find returns all documents matching every filter, in insertion order.
	Find(ctx context.Context, c Collection, filters ...Filter) ([]json.RawMessage, error)
	// Commit applies all mutations of b atomically.
	Commit(ctx context.Context, b *Batch) error
}

// Filter matches a top-level or dotted field path against a value.
// A nil Value matches a field that is absent or null.
type Filter struct {
	Field string
	Value any
}

// Eq matches documents whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Missing matches documents where field is absent or null.
func Missing(field string) Filter {
	return Filter{Field: field}
}

func (f Filter) String() string {
	if f.Value == nil {
		return f.Field + " is null"
	}
	return fmt.Sprintf("%s = %v", f.Field, f.Value)
}

// Op is the kind of a staged mutation.
type Op int

// Mutation kinds.
const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

// Mutation is one staged document write.
type Mutation struct {
	Op            Op
	Collection    Collection
	ID            string
	Data          json.RawMessage
	Preconditions []Filter
}

// Batch stages document writes for a single atomic Commit.
type Batch struct {
	muts []Mutation
	err  error
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Create stages the insertion of a new document. Commit fails with
// ErrConflict if a document with the same id already exists.
func (b *Batch) Create(c Collection, id string, doc any) *Batch {
	return b.add(OpCreate, c, id, doc, nil)
}

// Update stages the replacement of an existing document. Commit fails with
// ErrConflict if the document is missing or any precondition does not hold
// against its current content.
func (b *Batch) Update(c Collection, id string, doc any, pre ...Filter) *Batch {
	return b.add(OpUpdate, c, id, doc, pre)
}

// Delete stages the removal of an existing document, under the same rules
// as Update.
func (b *Batch) Delete(c Collection, id string, pre ...Filter) *Batch {
	return b.add(OpDelete, c, id, nil, pre)
}

func (b *Batch) add(op Op, c Collection, id string, doc any, pre []Filter) *Batch {
	if b.err != nil {
		return b
	}
	if id == "" {
		b.err = fmt.Errorf("staging %s write: empty document id", c)
		return b
	}
	m := Mutation{Op: op, Collection: c, ID: id, Preconditions: pre}
	if doc != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			b.err = fmt.Errorf("encoding %s/%s: %w", c, id, err)
			return b
		}
		m.Data = data
	}
	b.muts = append(b.muts, m)
	return b
}

// Mutations returns the staged mutations in order.
func (b *Batch) Mutations() []Mutation {
	return b.muts
}

// Len returns the number of staged mutations.
func (b *Batch) Len() int {
	return len(b.muts)
}

// Err returns the first staging error.
func (b *Batch) Err() error {
	return b.err
}

// Unique declares that, among documents of Collection matching Where, no two
// share the same value of Field. A zero Where matches every document, and
// documents without Field never collide.
type Unique struct {
	Collection Collection
	Field      string
	Where      Filter
}

// DefaultUniques are the uniqueness rules every backend enforces: one active
// custody record per equipment, one live user per username, and one
// equipment record per serial number.
var DefaultUniques = []Unique{
	{Collection: Custody, Field: "equipment_id", Where: Missing("returned_at")},
	{Collection: Users, Field: "username", Where: Missing("deleted_at")},
	{Collection: Equipment, Field: "serial_number"},
}

// Load decodes the document c/id into a new T. It returns nil, nil if the
// document does not exist.
func Load[T any](ctx context.Context, s Store, c Collection, id string) (*T, error) {
	raw, err := s.Get(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", c, id, err)
	}
	return v, nil
}

// FindAll decodes every document in c matching filters.
func FindAll[T any](ctx context.Context, s Store, c Collection, filters ...Filter) ([]T, error) {
	raws, err := s.Find(ctx, c, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding %s document: %w", c, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Match reports whether the JSON document satisfies every filter.
func Match(data json.RawMessage, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("decoding document: %w", err)
	}
	for _, f := range filters {
		ok, err := matchOne(doc, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOne(doc map[string]any, f Filter) (bool, error) {
	got, found := lookup(doc, f.Field)
	if f.Value == nil {
		return !found || got == nil, nil
	}
	if !found {
		return false, nil
	}
	want, err := normalize(f.Value)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// lookup resolves a dotted path such as "holder.id".
func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalize converts v to the scalar form encoding/json decodes into, so
// that values compare equal regardless of their Go type.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding filter value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding filter value: %w", err)
	}
	switch out.(type) {
	case map[string]any, []any:
		return nil, fmt.Errorf("filter value must be a scalar, got %T", v)
	}
	return out, nil
}

// Scalar returns the JSON scalar form of a filter value, as stored in
// documents. Backends that compare in their own engine bind this form.
func Scalar(v any) (any, error) {
	return normalize(v)
}
