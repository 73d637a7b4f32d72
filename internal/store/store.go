// Package store holds the typed repositories over the document store. Every
// function takes the docstore.Store it works on; lookups return nil, nil when
// a document does not exist.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/hierarchy"
	"github.com/erazemk/oprema/internal/model"
)

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

// eqOrMissing matches a field that was omitted when empty.
func eqOrMissing(field, value string) docstore.Filter {
	if value == "" {
		return docstore.Missing(field)
	}
	return docstore.Eq(field, value)
}

// commit applies b and turns a conflict into a failed precondition carrying
// msg, so callers can retry against fresh state.
func commit(ctx context.Context, ds docstore.Store, b *docstore.Batch, msg string) error {
	err := ds.Commit(ctx, b)
	if errors.Is(err, docstore.ErrConflict) {
		return apperr.Wrap(apperr.KindFailedPrecondition, err, msg)
	}
	return err
}

type unitSource struct {
	ds docstore.Store
}

func (s unitSource) Unit(ctx context.Context, id string) (*model.Unit, error) {
	return GetUnit(ctx, s.ds, id)
}

// UnitSource exposes the unit collection to the hierarchy resolver.
func UnitSource(ds docstore.Store) hierarchy.UnitSource {
	return unitSource{ds: ds}
}

// Resolver returns a hierarchy resolver reading units from ds.
func Resolver(ds docstore.Store) *hierarchy.Resolver {
	return hierarchy.New(UnitSource(ds))
}

// battalionOf resolves the top-tier ancestor of unitID, reporting a broken
// chain as a failed precondition.
func battalionOf(ctx context.Context, ds docstore.Store, unitID string) (string, error) {
	top, err := Resolver(ds).TopAncestorOf(ctx, unitID)
	if errors.Is(err, hierarchy.ErrUnresolvable) {
		return "", apperr.Wrap(apperr.KindFailedPrecondition, err, "unit hierarchy is inconsistent")
	}
	if err != nil {
		return "", fmt.Errorf("resolving battalion: %w", err)
	}
	return top, nil
}
