// Package authz decides whether a principal may manage a unit or a person.
//
// Admins manage everything. Leaders manage the units they hold a scope grant
// for and everything below them. Everyone else manages nothing. A unit whose
// ancestor chain cannot be resolved is denied, never allowed.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/hierarchy"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// Cache stores leader decisions per (user, unit).
type Cache interface {
	Get(ctx context.Context, userID, unitID string) (allowed, found bool, err error)
	Set(ctx context.Context, userID, unitID string, allowed bool) error
	InvalidateUser(ctx context.Context, userID string) error
}

// Resolver answers authorization questions against the document store.
type Resolver struct {
	ds      docstore.Store
	hier    *hierarchy.Resolver
	cache   Cache
	metrics *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache caches leader decisions in c.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithMetrics records decisions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New returns a resolver over ds.
func New(ds docstore.Store, opts ...Option) *Resolver {
	r := &Resolver{
		ds:   ds,
		hier: store.Resolver(ds),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func checkPrincipal(p *model.Principal) error {
	if p == nil || p.UserID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	return nil
}

// CanManageUnit reports whether p may manage unitID.
func (r *Resolver) CanManageUnit(ctx context.Context, p *model.Principal, unitID string) (bool, error) {
	if err := checkPrincipal(p); err != nil {
		return false, err
	}
	if unitID == "" {
		return false, apperr.InvalidArgument("unit id is required")
	}

	u, err := store.GetUnit(ctx, r.ds, unitID)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, apperr.NotFound("unit not found")
	}

	switch {
	case p.IsAdmin():
		return true, nil
	case !p.IsLeader():
		return false, nil
	}
	return r.leaderDecision(ctx, p.UserID, unitID)
}

// CanManagePersonnel reports whether p may manage the person. Leaders manage
// a person through the person's unit; unplaced personnel are admin-only.
func (r *Resolver) CanManagePersonnel(ctx context.Context, p *model.Principal, personnelID string) (bool, error) {
	if err := checkPrincipal(p); err != nil {
		return false, err
	}
	if personnelID == "" {
		return false, apperr.InvalidArgument("personnel id is required")
	}

	person, err := store.GetPersonnel(ctx, r.ds, personnelID)
	if err != nil {
		return false, err
	}
	if person == nil {
		return false, apperr.NotFound("personnel not found")
	}

	switch {
	case p.IsAdmin():
		return true, nil
	case !p.IsLeader(), person.UnitID == "":
		return false, nil
	}
	return r.leaderDecision(ctx, p.UserID, person.UnitID)
}

// CanManageHolder dispatches on the holder kind.
func (r *Resolver) CanManageHolder(ctx context.Context, p *model.Principal, h model.Holder) (bool, error) {
	switch h.Kind {
	case model.HolderUnit:
		return r.CanManageUnit(ctx, p, h.ID)
	case model.HolderPersonnel:
		return r.CanManagePersonnel(ctx, p, h.ID)
	}
	return false, apperr.InvalidArgument("unknown holder kind %q", h.Kind)
}

func (r *Resolver) leaderDecision(ctx context.Context, userID, unitID string) (bool, error) {
	if r.cache != nil {
		allowed, found, err := r.cache.Get(ctx, userID, unitID)
		if err != nil {
			slog.Warn("authz cache read failed", "user", userID, "unit", unitID, "error", err)
		} else if found {
			r.metrics.AuthzDecision(allowed, true)
			return allowed, nil
		}
	}

	allowed, err := r.decide(ctx, userID, unitID)
	if errors.Is(err, hierarchy.ErrUnresolvable) {
		slog.Warn("denying on unresolvable hierarchy", "user", userID, "unit", unitID, "error", err)
		r.metrics.AuthzDecision(false, false)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.metrics.AuthzDecision(allowed, false)

	if r.cache != nil {
		if err := r.cache.Set(ctx, userID, unitID, allowed); err != nil {
			slog.Warn("authz cache write failed", "user", userID, "unit", unitID, "error", err)
		}
	}
	return allowed, nil
}

// decide intersects the unit's chain with the user's grants.
func (r *Resolver) decide(ctx context.Context, userID, unitID string) (bool, error) {
	chain, err := r.hier.ChainIDs(ctx, unitID)
	if err != nil {
		return false, err
	}
	grants, err := store.ListScopeGrants(ctx, r.ds, userID)
	if err != nil {
		return false, fmt.Errorf("loading scope grants: %w", err)
	}

	inChain := make(map[string]bool, len(chain))
	for _, id := range chain {
		inChain[id] = true
	}
	for _, g := range grants {
		if inChain[g.UnitID] {
			return true, nil
		}
	}
	return false, nil
}

// LeadersOf returns the users holding a scope grant on unitID or any of its
// ancestors. An unresolvable chain yields only the direct grants.
func (r *Resolver) LeadersOf(ctx context.Context, unitID string) ([]string, error) {
	chain, err := r.hier.ChainIDs(ctx, unitID)
	if errors.Is(err, hierarchy.ErrUnresolvable) {
		chain = []string{unitID}
	} else if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var users []string
	for _, id := range chain {
		grants, err := store.GrantsForUnit(ctx, r.ds, id)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			if !seen[g.UserID] {
				seen[g.UserID] = true
				users = append(users, g.UserID)
			}
		}
	}
	return users, nil
}

// InvalidateUser drops every cached decision for the user.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateUser(ctx, userID); err != nil {
		slog.Error("authz cache invalidation failed", "user", userID, "error", err)
	}
}

func requireAdmin(p *model.Principal) error {
	if err := checkPrincipal(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return apperr.PermissionDenied("admin role required")
	}
	return nil
}

// GrantScope gives userID leadership of unitID and drops their cached
// decisions.
func (r *Resolver) GrantScope(ctx context.Context, by *model.Principal, userID, unitID string) (*model.ScopeGrant, error) {
	if err := requireAdmin(by); err != nil {
		return nil, err
	}
	if userID == "" || unitID == "" {
		return nil, apperr.InvalidArgument("user and unit are required")
	}
	g, err := store.CreateScopeGrant(ctx, r.ds, userID, unitID, by.UserID)
	if err != nil {
		return nil, err
	}
	r.InvalidateUser(ctx, userID)
	return g, nil
}

// RevokeScope removes userID's leadership of unitID and drops their cached
// decisions.
func (r *Resolver) RevokeScope(ctx context.Context, by *model.Principal, userID, unitID string) error {
	if err := requireAdmin(by); err != nil {
		return err
	}
	if err := store.DeleteScopeGrant(ctx, r.ds, userID, unitID); err != nil {
		return err
	}
	r.InvalidateUser(ctx, userID)
	return nil
}

// SetRoles replaces userID's roles and drops their cached decisions.
func (r *Resolver) SetRoles(ctx context.Context, by *model.Principal, userID string, roles []string) (*model.User, error) {
	if err := requireAdmin(by); err != nil {
		return nil, err
	}
	u, err := store.UpdateUserRoles(ctx, r.ds, userID, roles)
	if err != nil {
		return nil, err
	}
	r.InvalidateUser(ctx, userID)
	return u, nil
}
