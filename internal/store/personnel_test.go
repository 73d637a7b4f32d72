package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
)

func TestCreatePersonnelDerivesBattalion(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	bn, _, pl := testTree(t, ds)

	p, err := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ana", LastName: "Novak", Rank: "Sgt", UnitID: pl.ID})
	if err != nil {
		t.Fatalf("CreatePersonnel: %v", err)
	}
	if p.BattalionID != bn.ID {
		t.Errorf("expected battalion %s, got %s", bn.ID, p.BattalionID)
	}
	if p.DisplayName() != "Sgt Ana Novak" {
		t.Errorf("unexpected display name %q", p.DisplayName())
	}

	unassigned, err := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Bor"})
	if err != nil {
		t.Fatalf("CreatePersonnel: %v", err)
	}
	if unassigned.UnitID != "" || unassigned.BattalionID != "" {
		t.Errorf("expected no unit, got %+v", unassigned)
	}

	_, err = CreatePersonnel(ctx, ds, PersonnelInput{})
	wantKind(t, err, apperr.KindInvalidArgument)

	_, err = CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "X", UnitID: "missing"})
	wantKind(t, err, apperr.KindNotFound)
}

func TestCreatePersonnelBrokenHierarchy(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	// A company whose battalion has vanished.
	orphan := &model.Unit{ID: "co", UnitType: model.UnitTypeCompany, ParentID: "gone", Name: "Orphan", Status: model.UnitStatusActive}
	if err := ds.Commit(ctx, docstore.NewBatch().Create(docstore.Units, orphan.ID, orphan)); err != nil {
		t.Fatal(err)
	}

	_, err := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ana", UnitID: "co"})
	wantKind(t, err, apperr.KindFailedPrecondition)
}

func TestMovePersonnel(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	_, _, pl := testTree(t, ds)
	bn2 := mustUnit(t, ds, model.UnitTypeBattalion, "", "2nd Battalion")
	co2 := mustUnit(t, ds, model.UnitTypeCompany, bn2.ID, "Charlie Company")

	p, _ := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ana", UnitID: pl.ID})
	e, _ := CreateEquipment(ctx, ds, EquipmentInput{Name: "Rifle"})
	putCustody(t, ds, e.ID, model.PersonnelHolder(p.ID))

	moved, err := MovePersonnel(ctx, ds, p.ID, co2.ID)
	if err != nil {
		t.Fatalf("MovePersonnel: %v", err)
	}
	if moved.UnitID != co2.ID || moved.BattalionID != bn2.ID {
		t.Errorf("unexpected placement %+v", moved)
	}

	// Custody follows the person, not the unit.
	active, _ := ActiveCustody(ctx, ds, e.ID)
	if active == nil || active.Holder != model.PersonnelHolder(p.ID) {
		t.Errorf("expected custody to stay with the person, got %+v", active)
	}

	byUnit, _ := ListPersonnel(ctx, ds, PersonnelFilter{BattalionID: bn2.ID})
	if len(byUnit) != 1 {
		t.Errorf("expected 1 person in 2nd battalion, got %d", len(byUnit))
	}

	_, err = MovePersonnel(ctx, ds, p.ID, "missing")
	wantKind(t, err, apperr.KindNotFound)
}

func TestPersonnelUserLink(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	u, _ := CreateUser(ctx, ds, "ana", "hash")
	p, err := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ana", UserID: u.ID})
	if err != nil {
		t.Fatalf("CreatePersonnel: %v", err)
	}

	got, _ := GetPersonnelByUser(ctx, ds, u.ID)
	if got == nil || got.ID != p.ID {
		t.Fatalf("expected linked personnel, got %+v", got)
	}

	_, err = CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Impostor", UserID: u.ID})
	wantKind(t, err, apperr.KindFailedPrecondition)

	_, err = CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ghost", UserID: "missing"})
	wantKind(t, err, apperr.KindNotFound)
}

func TestDeletePersonnelHoldingEquipment(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	p, _ := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ana"})
	e, _ := CreateEquipment(ctx, ds, EquipmentInput{Name: "Radio"})
	putCustody(t, ds, e.ID, model.PersonnelHolder(p.ID))

	wantKind(t, DeletePersonnel(ctx, ds, p.ID), apperr.KindFailedPrecondition)
}

func TestDeletePersonnelWithPendingTransfer(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	p, _ := CreatePersonnel(ctx, ds, PersonnelInput{FirstName: "Ana"})
	putTransfer(t, ds, "eq-1", model.TransferPending, model.PersonnelHolder(p.ID), time.Now().UTC())
	wantKind(t, DeletePersonnel(ctx, ds, p.ID), apperr.KindFailedPrecondition)

	// A touch staged before a delete conflicts with it.
	b := docstore.NewBatch()
	if _, err := TouchHolder(ctx, ds, b, model.PersonnelHolder(p.ID)); err != nil {
		t.Fatalf("TouchHolder: %v", err)
	}
	if err := ds.Commit(ctx, docstore.NewBatch().Delete(docstore.Personnel, p.ID)); err != nil {
		t.Fatal(err)
	}
	wantKind(t, commit(ctx, ds, b, "personnel is gone"), apperr.KindFailedPrecondition)
}
