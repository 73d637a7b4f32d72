package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Memory is an in-process Store. Commits run under a single lock against a
// copy of the state, which replaces the live state only when every mutation
// and constraint succeeded.
type Memory struct {
	mu      sync.RWMutex
	seq     int64
	docs    map[Collection]map[string]memDoc
	uniques []Unique
}

type memDoc struct {
	seq  int64
	data json.RawMessage
}

// NewMemory returns an empty in-memory store enforcing DefaultUniques.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[Collection]map[string]memDoc),
		uniques: DefaultUniques,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, c Collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[c][id]
	if !ok {
		return nil, nil
	}
	return slices.Clone(d.data), nil
}

// Find implements Store.
func (m *Memory) Find(_ context.Context, c Collection, filters ...Filter) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []memDoc
	for _, d := range m.docs[c] {
		ok, err := Match(d.data, filters)
		if err != nil {
			return nil, fmt.Errorf("matching %s: %w", c, err)
		}
		if ok {
			hits = append(hits, d)
		}
	}
	slices.SortFunc(hits, func(a, b memDoc) int { return int(a.seq - b.seq) })

	out := make([]json.RawMessage, len(hits))
	for i, d := range hits {
		out[i] = slices.Clone(d.data)
	}
	return out, nil
}

// Commit implements Store.
func (m *Memory) Commit(_ context.Context, b *Batch) error {
	if err := b.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.clone()
	seq := m.seq
	touched := make(map[Collection]bool)

	for _, mut := range b.Mutations() {
		coll := state[mut.Collection]
		if coll == nil {
			coll = make(map[string]memDoc)
			state[mut.Collection] = coll
		}
		cur, exists := coll[mut.ID]

		switch mut.Op {
		case OpCreate:
			if exists {
				return fmt.Errorf("%w: %s/%s already exists", ErrConflict, mut.Collection, mut.ID)
			}
			seq++
			coll[mut.ID] = memDoc{seq: seq, data: mut.Data}
		case OpUpdate, OpDelete:
			if !exists {
				return fmt.Errorf("%w: %s/%s does not exist", ErrConflict, mut.Collection, mut.ID)
			}
			ok, err := Match(cur.data, mut.Preconditions)
			if err != nil {
				return fmt.Errorf("checking preconditions on %s/%s: %w", mut.Collection, mut.ID, err)
			}
			if !ok {
				return fmt.Errorf("%w: precondition failed on %s/%s", ErrConflict, mut.Collection, mut.ID)
			}
			if mut.Op == OpDelete {
				delete(coll, mut.ID)
			} else {
				coll[mut.ID] = memDoc{seq: cur.seq, data: mut.Data}
			}
		default:
			return fmt.Errorf("unknown mutation op %d", mut.Op)
		}
		touched[mut.Collection] = true
	}

	for _, u := range m.uniques {
		if !touched[u.Collection] {
			continue
		}
		if err := checkUnique(state[u.Collection], u); err != nil {
			return err
		}
	}

	m.docs = state
	m.seq = seq
	return nil
}

// clone copies the collection maps; documents themselves are immutable.
func (m *Memory) clone() map[Collection]map[string]memDoc {
	out := make(map[Collection]map[string]memDoc, len(m.docs))
	for c, coll := range m.docs {
		cp := make(map[string]memDoc, len(coll))
		for id, d := range coll {
			cp[id] = d
		}
		out[c] = cp
	}
	return out
}

func checkUnique(coll map[string]memDoc, u Unique) error {
	seen := make(map[any]string)
	var where []Filter
	if u.Where.Field != "" {
		where = []Filter{u.Where}
	}
	for id, d := range coll {
		ok, err := Match(d.data, where)
		if err != nil {
			return fmt.Errorf("checking unique %s.%s: %w", u.Collection, u.Field, err)
		}
		if !ok {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(d.data, &doc); err != nil {
			return fmt.Errorf("decoding %s/%s: %w", u.Collection, id, err)
		}
		v, found := lookup(doc, u.Field)
		if !found || v == nil {
			continue
		}
		if other, dup := seen[v]; dup {
			return fmt.Errorf("%w: %s/%s and %s/%s share %s", ErrConflict, u.Collection, id, u.Collection, other, u.Field)
		}
		seen[v] = id
	}
	return nil
}
