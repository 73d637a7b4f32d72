// Package docstoretest holds behaviour tests shared by every docstore.Store
// implementation.
package docstoretest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/erazemk/oprema/internal/docstore"
)

type doc struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	EquipmentID string  `json:"equipment_id,omitempty"`
	Serial      string  `json:"serial_number,omitempty"`
	ReturnedAt  *string `json:"returned_at,omitempty"`
	Holder      struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	} `json:"holder"`
}

// Run exercises the Store contract against stores returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("FindFilters", func(t *testing.T) { testFindFilters(t, newStore(t)) })
	t.Run("PreconditionAbortsBatch", func(t *testing.T) { testPreconditionAbortsBatch(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("UniqueActiveCustody", func(t *testing.T) { testUniqueActiveCustody(t, newStore(t)) })
	t.Run("UniqueSerialNumber", func(t *testing.T) { testUniqueSerialNumber(t, newStore(t)) })
	t.Run("ConcurrentConditionalUpdate", func(t *testing.T) { testConcurrentConditionalUpdate(t, newStore(t)) })
}

func testCreateGet(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	b := docstore.NewBatch().Create(docstore.Equipment, "e1", doc{ID: "e1", Status: "serviceable"})
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := docstore.Load[doc](ctx, s, docstore.Equipment, "e1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.Status != "serviceable" {
		t.Errorf("expected serviceable e1, got %+v", got)
	}

	missing, err := docstore.Load[doc](ctx, s, docstore.Equipment, "nope")
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing document, got %+v", missing)
	}
}

func testCreateDuplicate(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	s.Commit(ctx, docstore.NewBatch().Create(docstore.Units, "u1", doc{ID: "u1"}))
	err := s.Commit(ctx, docstore.NewBatch().Create(docstore.Units, "u1", doc{ID: "u1"}))
	if !errors.Is(err, docstore.ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate create, got %v", err)
	}
}

func testFindFilters(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	returned := "2024-01-01T00:00:00Z"
	a := doc{ID: "c1", EquipmentID: "e1", ReturnedAt: &returned}
	a.Holder.Kind, a.Holder.ID = "unit", "u1"
	b := doc{ID: "c2", EquipmentID: "e1"}
	b.Holder.Kind, b.Holder.ID = "personnel", "p1"
	c := doc{ID: "c3", EquipmentID: "e2"}
	c.Holder.Kind, c.Holder.ID = "unit", "u1"

	batch := docstore.NewBatch().
		Create(docstore.Custody, a.ID, a).
		Create(docstore.Custody, b.ID, b).
		Create(docstore.Custody, c.ID, c)
	if err := s.Commit(ctx, batch); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	all, _ := docstore.FindAll[doc](ctx, s, docstore.Custody)
	if len(all) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(all))
	}
	if all[0].ID != "c1" || all[2].ID != "c3" {
		t.Errorf("expected insertion order, got %s..%s", all[0].ID, all[2].ID)
	}

	active, _ := docstore.FindAll[doc](ctx, s, docstore.Custody,
		docstore.Eq("equipment_id", "e1"), docstore.Missing("returned_at"))
	if len(active) != 1 || active[0].ID != "c2" {
		t.Errorf("expected only c2 active for e1, got %+v", active)
	}

	byHolder, _ := docstore.FindAll[doc](ctx, s, docstore.Custody,
		docstore.Eq("holder.kind", "unit"), docstore.Eq("holder.id", "u1"))
	if len(byHolder) != 2 {
		t.Errorf("expected 2 records for unit u1, got %d", len(byHolder))
	}
}

func testPreconditionAbortsBatch(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	s.Commit(ctx, docstore.NewBatch().
		Create(docstore.Transfers, "r1", doc{ID: "r1", Status: "approved"}).
		Create(docstore.Equipment, "e1", doc{ID: "e1", Status: "pending-transfer"}))

	b := docstore.NewBatch().
		Update(docstore.Equipment, "e1", doc{ID: "e1", Status: "assigned"}).
		Create(docstore.Custody, "c1", doc{ID: "c1", EquipmentID: "e1"}).
		Update(docstore.Transfers, "r1", doc{ID: "r1", Status: "approved"}, docstore.Eq("status", "pending"))

	err := s.Commit(ctx, b)
	if !errors.Is(err, docstore.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Nothing from the failed batch may be visible.
	e, _ := docstore.Load[doc](ctx, s, docstore.Equipment, "e1")
	if e.Status != "pending-transfer" {
		t.Errorf("equipment changed by failed batch: %q", e.Status)
	}
	c, _ := s.Get(ctx, docstore.Custody, "c1")
	if c != nil {
		t.Error("custody record created by failed batch")
	}
}

func testUpdateMissing(t *testing.T, s docstore.Store) {
	err := s.Commit(context.Background(), docstore.NewBatch().Update(docstore.Units, "ghost", doc{ID: "ghost"}))
	if !errors.Is(err, docstore.ErrConflict) {
		t.Errorf("expected ErrConflict updating a missing document, got %v", err)
	}
}

func testDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	s.Commit(ctx, docstore.NewBatch().Create(docstore.Scopes, "g1", doc{ID: "g1", Status: "x"}))

	err := s.Commit(ctx, docstore.NewBatch().Delete(docstore.Scopes, "g1", docstore.Eq("status", "y")))
	if !errors.Is(err, docstore.ErrConflict) {
		t.Errorf("expected ErrConflict for failed delete precondition, got %v", err)
	}

	if err := s.Commit(ctx, docstore.NewBatch().Delete(docstore.Scopes, "g1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	raw, _ := s.Get(ctx, docstore.Scopes, "g1")
	if raw != nil {
		t.Error("expected document to be gone")
	}
}

func testUniqueActiveCustody(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	if err := s.Commit(ctx, docstore.NewBatch().Create(docstore.Custody, "c1", doc{ID: "c1", EquipmentID: "e1"})); err != nil {
		t.Fatalf("first active record: %v", err)
	}

	err := s.Commit(ctx, docstore.NewBatch().Create(docstore.Custody, "c2", doc{ID: "c2", EquipmentID: "e1"}))
	if !errors.Is(err, docstore.ErrConflict) {
		t.Errorf("expected ErrConflict for second active record, got %v", err)
	}

	// Closing the first record in the same batch makes room for the second.
	returned := "2024-01-01T00:00:00Z"
	b := docstore.NewBatch().
		Update(docstore.Custody, "c1", doc{ID: "c1", EquipmentID: "e1", ReturnedAt: &returned}, docstore.Missing("returned_at")).
		Create(docstore.Custody, "c2", doc{ID: "c2", EquipmentID: "e1"})
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("hand-over batch: %v", err)
	}

	active, _ := s.Find(ctx, docstore.Custody, docstore.Eq("equipment_id", "e1"), docstore.Missing("returned_at"))
	if len(active) != 1 {
		t.Errorf("expected exactly one active record, got %d", len(active))
	}
}

func testUniqueSerialNumber(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	if err := s.Commit(ctx, docstore.NewBatch().Create(docstore.Equipment, "e1", doc{ID: "e1", Serial: "SN-1"})); err != nil {
		t.Fatalf("first serial: %v", err)
	}
	err := s.Commit(ctx, docstore.NewBatch().Create(docstore.Equipment, "e2", doc{ID: "e2", Serial: "SN-1"}))
	if !errors.Is(err, docstore.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate serial, got %v", err)
	}

	// Records without a serial never collide.
	for _, id := range []string{"e3", "e4"} {
		if err := s.Commit(ctx, docstore.NewBatch().Create(docstore.Equipment, id, doc{ID: id})); err != nil {
			t.Fatalf("creating %s without serial: %v", id, err)
		}
	}
}

func testConcurrentConditionalUpdate(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	s.Commit(ctx, docstore.NewBatch().Create(docstore.Transfers, "r1", doc{ID: "r1", Status: "pending"}))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := docstore.NewBatch().Update(docstore.Transfers, "r1", doc{ID: "r1", Status: "approved"}, docstore.Eq("status", "pending"))
			errs <- s.Commit(ctx, b)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, docstore.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winning update, got %d", wins)
	}

	raw, _ := s.Get(ctx, docstore.Transfers, "r1")
	var got doc
	json.Unmarshal(raw, &got)
	if got.Status != "approved" {
		t.Errorf("expected approved, got %q", got.Status)
	}
}
