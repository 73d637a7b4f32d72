package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
)

func TestActiveCustodyAndHistory(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	bn, co, _ := testTree(t, ds)
	e, _ := CreateEquipment(ctx, ds, EquipmentInput{Name: "Radio"})

	none, err := ActiveCustody(ctx, ds, e.ID)
	if err != nil {
		t.Fatalf("ActiveCustody: %v", err)
	}
	if none != nil {
		t.Fatal("expected no custody for new equipment")
	}

	first := putCustody(t, ds, e.ID, model.UnitHolder(bn.ID))

	// Close the first record and open a second one atomically.
	returned := time.Now().UTC()
	first.ReturnedAt = &returned
	second := &model.CustodyRecord{
		ID:          newID(),
		EquipmentID: e.ID,
		Holder:      model.UnitHolder(co.ID),
		Quantity:    1,
		AssignedAt:  returned.Add(time.Millisecond),
	}
	b := docstore.NewBatch().
		Update(docstore.Custody, first.ID, first, docstore.Missing("returned_at")).
		Create(docstore.Custody, second.ID, second)
	if err := ds.Commit(ctx, b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	active, _ := ActiveCustody(ctx, ds, e.ID)
	if active == nil || active.ID != second.ID {
		t.Fatalf("expected second record active, got %+v", active)
	}

	history, _ := CustodyHistory(ctx, ds, e.ID)
	if len(history) != 2 || history[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", history)
	}
	if history[0].HolderName != "Alpha Company" {
		t.Errorf("expected holder name, got %q", history[0].HolderName)
	}

	holdings, _ := HoldingsOf(ctx, ds, model.UnitHolder(bn.ID))
	if len(holdings) != 0 {
		t.Errorf("expected battalion to hold nothing, got %d", len(holdings))
	}
	holdings, _ = HoldingsOf(ctx, ds, model.UnitHolder(co.ID))
	if len(holdings) != 1 {
		t.Errorf("expected company to hold 1, got %d", len(holdings))
	}
}

func TestSecondActiveCustodyRejected(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	bn, co, _ := testTree(t, ds)
	e, _ := CreateEquipment(ctx, ds, EquipmentInput{Name: "Radio"})

	putCustody(t, ds, e.ID, model.UnitHolder(bn.ID))

	dup := &model.CustodyRecord{ID: newID(), EquipmentID: e.ID, Holder: model.UnitHolder(co.ID), Quantity: 1, AssignedAt: time.Now().UTC()}
	err := ds.Commit(ctx, docstore.NewBatch().Create(docstore.Custody, dup.ID, dup))
	if !errors.Is(err, docstore.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestHolderName(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	p, _ := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ana", LastName: "Novak"})
	name, err := HolderName(ctx, ds, model.PersonnelHolder(p.ID))
	if err != nil {
		t.Fatalf("HolderName: %v", err)
	}
	if name != "Ana Novak" {
		t.Errorf("expected 'Ana Novak', got %q", name)
	}

	if _, err := HolderName(ctx, ds, model.UnitHolder("missing")); err == nil {
		t.Error("expected error for missing unit")
	}
}
