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

// CreateUser creates a new user. Usernames are unique among live users.
func CreateUser(ctx context.Context, ds docstore.Store, username, passwordHash string, roles ...string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.InvalidArgument("username is required")
	}
	if len(roles) == 0 {
		roles = []string{model.RoleUser}
	}
	for _, r := range roles {
		if !model.ValidRole(r) {
			return nil, apperr.InvalidArgument("invalid role %q", r)
		}
	}

	u := &model.User{
		ID:           newID(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        slices.Compact(slices.Sorted(slices.Values(roles))),
		CreatedAt:    now(),
	}
	b := docstore.NewBatch().Create(docstore.Users, u.ID, u)
	if err := commit(ctx, ds, b, "username already taken"); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, ds docstore.Store, id string) (*model.User, error) {
	u, err := docstore.Load[model.User](ctx, ds, docstore.Users, id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the live user with that username, or the most
// recently deleted one if none is live (for auth checks).
func GetUserByUsername(ctx context.Context, ds docstore.Store, username string) (*model.User, error) {
	list, err := docstore.FindAll[model.User](ctx, ds, docstore.Users, docstore.Eq("username", username))
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	for i := range list {
		if list[i].DeletedAt == nil {
			return &list[i], nil
		}
	}
	return &list[len(list)-1], nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, ds docstore.Store) ([]model.User, error) {
	users, err := docstore.FindAll[model.User](ctx, ds, docstore.Users, docstore.Missing("deleted_at"))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// liveUser loads a user that must exist and not be deleted.
func liveUser(ctx context.Context, ds docstore.Store, id string) (*model.User, error) {
	u, err := GetUser(ctx, ds, id)
	if err != nil {
		return nil, err
	}
	if u == nil || u.DeletedAt != nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// UpdateUserRoles replaces a user's roles. Dropping the leader role also
// removes every leader scope the user held.
func UpdateUserRoles(ctx context.Context, ds docstore.Store, id string, roles []string) (*model.User, error) {
	if len(roles) == 0 {
		return nil, apperr.InvalidArgument("at least one role is required")
	}
	for _, r := range roles {
		if !model.ValidRole(r) {
			return nil, apperr.InvalidArgument("invalid role %q", r)
		}
	}
	u, err := liveUser(ctx, ds, id)
	if err != nil {
		return nil, err
	}

	b := docstore.NewBatch()
	if u.HasRole(model.RoleLeader) && !slices.Contains(roles, model.RoleLeader) {
		grants, err := ListScopeGrants(ctx, ds, id)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			b.Delete(docstore.Scopes, g.ID)
		}
	}
	u.Roles = slices.Compact(slices.Sorted(slices.Values(roles)))
	b.Update(docstore.Users, u.ID, u, docstore.Missing("deleted_at"))

	if err := commit(ctx, ds, b, "user changed concurrently"); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return u, nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, ds docstore.Store, id, passwordHash string) error {
	u, err := liveUser(ctx, ds, id)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash

	b := docstore.NewBatch().Update(docstore.Users, u.ID, u, docstore.Missing("deleted_at"))
	if err := commit(ctx, ds, b, "user changed concurrently"); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user and drops their leader scopes. The
// personnel link is kept for history.
func DeleteUser(ctx context.Context, ds docstore.Store, id string) error {
	u, err := liveUser(ctx, ds, id)
	if err != nil {
		return err
	}
	grants, err := ListScopeGrants(ctx, ds, id)
	if err != nil {
		return err
	}

	ts := now()
	u.DeletedAt = &ts
	b := docstore.NewBatch()
	for _, g := range grants {
		b.Delete(docstore.Scopes, g.ID)
	}
	b.Update(docstore.Users, u.ID, u, docstore.Missing("deleted_at"))

	if err := commit(ctx, ds, b, "user changed concurrently"); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
