package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
)

func newTestStore(t *testing.T) docstore.Store {
	t.Helper()
	return db.NewTestDocuments(t)
}

func mustUnit(t *testing.T, ds docstore.Store, unitType model.UnitType, parentID, name string) *model.Unit {
	t.Helper()
	u, err := CreateUnit(context.Background(), ds, unitType, parentID, name, "")
	if err != nil {
		t.Fatalf("CreateUnit(%s): %v", name, err)
	}
	return u
}

// testTree builds one battalion with one company and one platoon under it.
func testTree(t *testing.T, ds docstore.Store) (bn, co, pl *model.Unit) {
	t.Helper()
	bn = mustUnit(t, ds, model.UnitTypeBattalion, "", "1st Battalion")
	co = mustUnit(t, ds, model.UnitTypeCompany, bn.ID, "Alpha Company")
	pl = mustUnit(t, ds, model.UnitTypePlatoon, co.ID, "1st Platoon")
	return bn, co, pl
}

func putCustody(t *testing.T, ds docstore.Store, equipmentID string, h model.Holder) *model.CustodyRecord {
	t.Helper()
	c := &model.CustodyRecord{
		ID:          newID(),
		EquipmentID: equipmentID,
		Holder:      h,
		Quantity:    1,
		AssignedAt:  time.Now().UTC(),
	}
	if err := ds.Commit(context.Background(), docstore.NewBatch().Create(docstore.Custody, c.ID, c)); err != nil {
		t.Fatalf("creating custody: %v", err)
	}
	return c
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}
