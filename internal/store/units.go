package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
)

// CreateUnit creates a unit. A battalion has no parent; every other type must
// hang under a unit exactly one tier above it.
func CreateUnit(ctx context.Context, ds docstore.Store, unitType model.UnitType, parentID, name, designation string) (*model.Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidArgument("name is required")
	}
	if !unitType.Valid() {
		return nil, apperr.InvalidArgument("unknown unit type %q", unitType)
	}

	b := docstore.NewBatch()
	want, hasParent := unitType.ParentType()
	switch {
	case !hasParent && parentID != "":
		return nil, apperr.InvalidArgument("a %s cannot have a parent", unitType)
	case hasParent && parentID == "":
		return nil, apperr.InvalidArgument("a %s needs a parent %s", unitType, want)
	case hasParent:
		parent, err := GetUnit(ctx, ds, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, apperr.NotFound("parent unit not found")
		}
		if parent.UnitType != want {
			return nil, apperr.InvalidArgument("a %s must be under a %s, not a %s", unitType, want, parent.UnitType)
		}
		touchUnit(b, parent)
	}

	ts := now()
	u := &model.Unit{
		ID:          newID(),
		UnitType:    unitType,
		ParentID:    parentID,
		Name:        name,
		Designation: strings.TrimSpace(designation),
		Status:      model.UnitStatusActive,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	b.Create(docstore.Units, u.ID, u)

	if err := commit(ctx, ds, b, "parent unit changed concurrently"); err != nil {
		return nil, fmt.Errorf("creating unit: %w", err)
	}
	return u, nil
}

// GetUnit returns a unit by ID.
func GetUnit(ctx context.Context, ds docstore.Store, id string) (*model.Unit, error) {
	u, err := docstore.Load[model.Unit](ctx, ds, docstore.Units, id)
	if err != nil {
		return nil, fmt.Errorf("getting unit: %w", err)
	}
	return u, nil
}

// ListUnits returns units, optionally filtered by type, ordered by name.
func ListUnits(ctx context.Context, ds docstore.Store, unitType model.UnitType) ([]model.Unit, error) {
	var filters []docstore.Filter
	if unitType != "" {
		filters = append(filters, docstore.Eq("unit_type", string(unitType)))
	}
	units, err := docstore.FindAll[model.Unit](ctx, ds, docstore.Units, filters...)
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	sortUnits(units)
	return units, nil
}

// ListChildUnits returns the direct children of a unit.
func ListChildUnits(ctx context.Context, ds docstore.Store, parentID string) ([]model.Unit, error) {
	units, err := docstore.FindAll[model.Unit](ctx, ds, docstore.Units, docstore.Eq("parent_id", parentID))
	if err != nil {
		return nil, fmt.Errorf("listing child units: %w", err)
	}
	sortUnits(units)
	return units, nil
}

func sortUnits(units []model.Unit) {
	slices.SortStableFunc(units, func(a, b model.Unit) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// UpdateUnit changes the descriptive fields of a unit. Type and parent are
// fixed at creation. Empty arguments leave the field unchanged.
func UpdateUnit(ctx context.Context, ds docstore.Store, id, name, designation, status string) (*model.Unit, error) {
	u, err := GetUnit(ctx, ds, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("unit not found")
	}
	prev := u.UpdatedAt

	if name = strings.TrimSpace(name); name != "" {
		u.Name = name
	}
	if designation != "" {
		u.Designation = strings.TrimSpace(designation)
	}
	if status != "" {
		if status != model.UnitStatusActive && status != model.UnitStatusInactive {
			return nil, apperr.InvalidArgument("unknown unit status %q", status)
		}
		u.Status = status
	}
	u.UpdatedAt = now()

	b := docstore.NewBatch().Update(docstore.Units, u.ID, u, docstore.Eq("updated_at", prev))
	if err := commit(ctx, ds, b, "unit was modified concurrently"); err != nil {
		return nil, fmt.Errorf("updating unit: %w", err)
	}
	return u, nil
}

// DeleteUnit removes a unit that nothing refers to: no child units, no
// personnel, no active custody, no leader scope and no pending transfer
// addressed to it.
func DeleteUnit(ctx context.Context, ds docstore.Store, id string) error {
	u, err := GetUnit(ctx, ds, id)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.NotFound("unit not found")
	}

	checks := []struct {
		c      docstore.Collection
		filter docstore.Filter
		what   string
	}{
		{docstore.Units, docstore.Eq("parent_id", id), "child units"},
		{docstore.Personnel, docstore.Eq("unit_id", id), "personnel"},
		{docstore.Custody, docstore.Eq("holder.id", id), "equipment"},
		{docstore.Scopes, docstore.Eq("unit_id", id), "leader scopes"},
	}
	for _, chk := range checks {
		filters := []docstore.Filter{chk.filter}
		if chk.c == docstore.Custody {
			filters = append(filters, docstore.Missing("returned_at"))
		}
		docs, err := ds.Find(ctx, chk.c, filters...)
		if err != nil {
			return fmt.Errorf("checking unit references: %w", err)
		}
		if len(docs) > 0 {
			return apperr.FailedPrecondition("unit still has %s", chk.what)
		}
	}
	pending, err := ListTransfers(ctx, ds, TransferFilter{
		Status: model.TransferPending,
		To:     model.UnitHolder(id),
	})
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return apperr.FailedPrecondition("unit has pending incoming transfers")
	}

	// Anything attached since the checks has touched the unit.
	b := docstore.NewBatch().Delete(docstore.Units, id, docstore.Eq("updated_at", u.UpdatedAt))
	if err := commit(ctx, ds, b, "unit was modified concurrently"); err != nil {
		return fmt.Errorf("deleting unit: %w", err)
	}
	return nil
}

// touchUnit stages a bump of u.UpdatedAt conditioned on its current value.
// Writes that attach something to a unit touch it, so a concurrent DeleteUnit
// conflicts instead of leaving a dangling reference.
func touchUnit(b *docstore.Batch, u *model.Unit) {
	prev := u.UpdatedAt
	u.UpdatedAt = now()
	b.Update(docstore.Units, u.ID, u, docstore.Eq("updated_at", prev))
}
