// Package hierarchy walks the parent links of the unit tree.
//
// Walks are bounded by the number of tiers and fail closed: a missing link, a
// cycle, a tier that does not go strictly upward or a chain that does not end
// at a battalion all yield ErrUnresolvable, never an empty answer.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/erazemk/oprema/internal/model"
)

// ErrUnresolvable means the ancestor chain of a unit cannot be determined.
var ErrUnresolvable = errors.New("unit hierarchy cannot be resolved")

// UnitSource loads units by id. It returns nil, nil for a missing unit.
type UnitSource interface {
	Unit(ctx context.Context, id string) (*model.Unit, error)
}

// Step is one node of an ancestor chain, tagged with its tier.
type Step struct {
	ID   string
	Type model.UnitType
}

// Resolver answers ancestor queries over a UnitSource.
type Resolver struct {
	units UnitSource
}

// New returns a resolver reading from units.
func New(units UnitSource) *Resolver {
	return &Resolver{units: units}
}

// Chain returns the unit itself followed by its ancestors, nearest first,
// ending at the battalion.
func (r *Resolver) Chain(ctx context.Context, unitID string) ([]Step, error) {
	if unitID == "" {
		return nil, fmt.Errorf("%w: empty unit id", ErrUnresolvable)
	}

	chain := make([]Step, 0, model.MaxTiers)
	seen := make(map[string]bool, model.MaxTiers)
	id := unitID

	for range model.MaxTiers {
		if seen[id] {
			return nil, fmt.Errorf("%w: cycle at unit %s", ErrUnresolvable, id)
		}
		seen[id] = true

		u, err := r.units.Unit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading unit %s: %w", id, err)
		}
		if u == nil {
			return nil, fmt.Errorf("%w: unit %s does not exist", ErrUnresolvable, id)
		}

		tier := u.UnitType.Tier()
		if tier == 0 {
			return nil, fmt.Errorf("%w: unit %s has unknown type %q", ErrUnresolvable, id, u.UnitType)
		}
		if n := len(chain); n > 0 && tier >= chain[n-1].Type.Tier() {
			return nil, fmt.Errorf("%w: unit %s (%s) is not above %s", ErrUnresolvable, id, u.UnitType, chain[n-1].ID)
		}
		chain = append(chain, Step{ID: u.ID, Type: u.UnitType})

		if u.ParentID == "" {
			if u.UnitType != model.UnitTypeBattalion {
				return nil, fmt.Errorf("%w: chain of %s ends at %s %s", ErrUnresolvable, unitID, u.UnitType, id)
			}
			return chain, nil
		}
		id = u.ParentID
	}

	return nil, fmt.Errorf("%w: chain of %s is deeper than %d tiers", ErrUnresolvable, unitID, model.MaxTiers)
}

// ChainIDs returns the ids of Chain.
func (r *Resolver) ChainIDs(ctx context.Context, unitID string) ([]string, error) {
	chain, err := r.Chain(ctx, unitID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(chain))
	for i, s := range chain {
		ids[i] = s.ID
	}
	return ids, nil
}

// AncestorsOf returns the ancestors of unitID, nearest first, excluding the
// unit itself.
func (r *Resolver) AncestorsOf(ctx context.Context, unitID string) ([]string, error) {
	ids, err := r.ChainIDs(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return ids[1:], nil
}

// TopAncestorOf returns the battalion at the root of unitID's chain. A
// battalion is its own top ancestor.
func (r *Resolver) TopAncestorOf(ctx context.Context, unitID string) (string, error) {
	chain, err := r.Chain(ctx, unitID)
	if err != nil {
		return "", err
	}
	return chain[len(chain)-1].ID, nil
}
