package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
)

// ListScopeGrants returns the leader scopes held by a user.
func ListScopeGrants(ctx context.Context, ds docstore.Store, userID string) ([]model.ScopeGrant, error) {
	grants, err := docstore.FindAll[model.ScopeGrant](ctx, ds, docstore.Scopes, docstore.Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("listing scope grants: %w", err)
	}
	return grants, nil
}

// GrantsForUnit returns the leader scopes rooted at a unit.
func GrantsForUnit(ctx context.Context, ds docstore.Store, unitID string) ([]model.ScopeGrant, error) {
	grants, err := docstore.FindAll[model.ScopeGrant](ctx, ds, docstore.Scopes, docstore.Eq("unit_id", unitID))
	if err != nil {
		return nil, fmt.Errorf("listing unit scope grants: %w", err)
	}
	return grants, nil
}

// CreateScopeGrant lets a user lead a unit. The user gains the leader role in
// the same commit. Granting an existing scope returns it unchanged.
func CreateScopeGrant(ctx context.Context, ds docstore.Store, userID, unitID, grantedBy string) (*model.ScopeGrant, error) {
	u, err := liveUser(ctx, ds, userID)
	if err != nil {
		return nil, err
	}
	unit, err := GetUnit(ctx, ds, unitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, apperr.NotFound("unit not found")
	}

	existing, err := ListScopeGrants(ctx, ds, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range existing {
		if g.UnitID == unitID {
			return &g, nil
		}
	}

	g := &model.ScopeGrant{
		ID:        scopeGrantID(userID, unitID),
		UserID:    userID,
		UnitID:    unitID,
		UnitType:  unit.UnitType,
		GrantedBy: grantedBy,
		GrantedAt: now(),
	}

	b := docstore.NewBatch().Create(docstore.Scopes, g.ID, g)
	if !u.HasRole(model.RoleLeader) {
		u.Roles = slices.Sorted(slices.Values(append(u.Roles, model.RoleLeader)))
	}
	b.Update(docstore.Users, u.ID, u, docstore.Missing("deleted_at"))
	touchUnit(b, unit)

	if err := commit(ctx, ds, b, "user or unit changed concurrently"); err != nil {
		return nil, fmt.Errorf("granting scope: %w", err)
	}
	return g, nil
}

// DeleteScopeGrant removes a user's scope over a unit. Removing the last
// scope also removes the leader role.
func DeleteScopeGrant(ctx context.Context, ds docstore.Store, userID, unitID string) error {
	grants, err := ListScopeGrants(ctx, ds, userID)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(grants, func(g model.ScopeGrant) bool { return g.UnitID == unitID })
	if idx < 0 {
		return apperr.NotFound("scope grant not found")
	}

	b := docstore.NewBatch().Delete(docstore.Scopes, grants[idx].ID)
	if len(grants) == 1 {
		u, err := GetUser(ctx, ds, userID)
		if err != nil {
			return err
		}
		if u != nil && u.DeletedAt == nil && u.HasRole(model.RoleLeader) {
			u.Roles = slices.DeleteFunc(u.Roles, func(r string) bool { return r == model.RoleLeader })
			if len(u.Roles) == 0 {
				u.Roles = []string{model.RoleUser}
			}
			b.Update(docstore.Users, u.ID, u, docstore.Missing("deleted_at"))
		}
	}

	if err := commit(ctx, ds, b, "scope changed concurrently"); err != nil {
		return fmt.Errorf("revoking scope: %w", err)
	}
	return nil
}

// scopeGrantID derives the grant id from its key, so two concurrent grants of
// the same scope collide on create.
func scopeGrantID(userID, unitID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("scope/"+userID+"/"+unitID)).String()
}
