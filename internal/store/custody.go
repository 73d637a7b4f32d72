package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
)

// ActiveCustody returns the active custody record of the equipment, or nil
// if it is unheld.
func ActiveCustody(ctx context.Context, ds docstore.Store, equipmentID string) (*model.CustodyRecord, error) {
	list, err := docstore.FindAll[model.CustodyRecord](ctx, ds, docstore.Custody,
		docstore.Eq("equipment_id", equipmentID),
		docstore.Missing("returned_at"),
	)
	if err != nil {
		return nil, fmt.Errorf("getting active custody: %w", err)
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return &list[0], nil
	}
	return nil, fmt.Errorf("equipment %s has %d active custody records", equipmentID, len(list))
}

// CustodyHistory returns every custody record of the equipment, newest first.
func CustodyHistory(ctx context.Context, ds docstore.Store, equipmentID string) ([]model.CustodyRecord, error) {
	list, err := docstore.FindAll[model.CustodyRecord](ctx, ds, docstore.Custody,
		docstore.Eq("equipment_id", equipmentID),
	)
	if err != nil {
		return nil, fmt.Errorf("getting custody history: %w", err)
	}
	slices.SortStableFunc(list, func(a, b model.CustodyRecord) int {
		return b.AssignedAt.Compare(a.AssignedAt)
	})
	for i := range list {
		list[i].HolderName, _ = HolderName(ctx, ds, list[i].Holder)
	}
	return list, nil
}

// HoldingsOf returns the active custody records of a holder.
func HoldingsOf(ctx context.Context, ds docstore.Store, h model.Holder) ([]model.CustodyRecord, error) {
	list, err := docstore.FindAll[model.CustodyRecord](ctx, ds, docstore.Custody,
		docstore.Eq("holder.kind", string(h.Kind)),
		docstore.Eq("holder.id", h.ID),
		docstore.Missing("returned_at"),
	)
	if err != nil {
		return nil, fmt.Errorf("getting holdings: %w", err)
	}
	return list, nil
}

// HolderName returns the display name of a holder. A holder that does not
// exist yields a NotFound error.
func HolderName(ctx context.Context, ds docstore.Store, h model.Holder) (string, error) {
	switch h.Kind {
	case model.HolderUnit:
		u, err := GetUnit(ctx, ds, h.ID)
		if err != nil {
			return "", err
		}
		if u == nil {
			return "", apperr.NotFound("unit not found")
		}
		return u.Name, nil
	case model.HolderPersonnel:
		p, err := GetPersonnel(ctx, ds, h.ID)
		if err != nil {
			return "", err
		}
		if p == nil {
			return "", apperr.NotFound("personnel not found")
		}
		return p.DisplayName(), nil
	}
	return "", apperr.InvalidArgument("unknown holder kind %q", h.Kind)
}

// TouchHolder stages a guarded timestamp bump of h on b and returns its
// display name. Committing b then conflicts with a concurrent delete of the
// holder, so custody and pending transfers never point at a removed holder.
// A holder that does not exist yields a NotFound error.
func TouchHolder(ctx context.Context, ds docstore.Store, b *docstore.Batch, h model.Holder) (string, error) {
	switch h.Kind {
	case model.HolderUnit:
		u, err := GetUnit(ctx, ds, h.ID)
		if err != nil {
			return "", err
		}
		if u == nil {
			return "", apperr.NotFound("unit not found")
		}
		touchUnit(b, u)
		return u.Name, nil
	case model.HolderPersonnel:
		p, err := GetPersonnel(ctx, ds, h.ID)
		if err != nil {
			return "", err
		}
		if p == nil {
			return "", apperr.NotFound("personnel not found")
		}
		prev := p.UpdatedAt
		p.UpdatedAt = now()
		b.Update(docstore.Personnel, p.ID, p, docstore.Eq("updated_at", prev))
		return p.DisplayName(), nil
	}
	return "", apperr.InvalidArgument("unknown holder kind %q", h.Kind)
}
