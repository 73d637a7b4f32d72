package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/oprema/internal/auth"
	"github.com/erazemk/oprema/internal/authz"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	DB    *sql.DB
	Docs  docstore.Store
	Authz *authz.Resolver
}

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type updateUserRequest struct {
	Roles []string `json:"roles"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

type grantScopeRequest struct {
	UnitID string `json:"unit_id"`
}

// publicUser returns a copy of u that is safe to send to clients.
func publicUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	return &out
}

// targetName returns the username of id for audit lines, or the id itself.
func (h *UsersHandler) targetName(r *http.Request, id string) string {
	if u, _ := store.GetUser(r.Context(), h.Docs, id); u != nil {
		return u.Username
	}
	return "id:" + id
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.Docs)
	if err != nil {
		writeError(w, err, "failed to list users")
		return
	}
	out := make([]*model.User, 0, len(users))
	for i := range users {
		out = append(out, publicUser(&users[i]))
	}
	jsonResponse(w, http.StatusOK, out)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}
	for _, role := range req.Roles {
		if !model.ValidRole(role) {
			jsonError(w, http.StatusBadRequest, "invalid role")
			return
		}
	}

	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateUser(r.Context(), h.Docs, req.Username, hash, req.Roles...)
	if err != nil {
		writeError(w, err, "failed to create user")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("user created", "user", p.Username, "new_user", user.Username, "roles", user.Roles)
	jsonResponse(w, http.StatusCreated, publicUser(user))
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := store.GetUser(r.Context(), h.Docs, r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to get user")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	jsonResponse(w, http.StatusOK, publicUser(user))
}

// Update handles PUT /api/users/{id}. Only roles can be changed here.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	user, err := h.Authz.SetRoles(r.Context(), p, id, req.Roles)
	if err != nil {
		writeError(w, err, "failed to update user")
		return
	}

	slog.Info("user roles updated", "user", p.Username, "target_user", user.Username, "roles", user.Roles)
	jsonResponse(w, http.StatusOK, publicUser(user))
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Password == "" {
		jsonError(w, http.StatusBadRequest, "password required")
		return
	}

	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.Docs, id, hash); err != nil {
		writeError(w, err, "failed to reset password")
		return
	}
	if err := store.RevokeSessions(r.Context(), h.DB, id, time.Now()); err != nil {
		writeError(w, err, "failed to revoke sessions")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("user password reset", "user", p.Username, "target_user", h.targetName(r, id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p := GetPrincipal(r.Context())
	if p.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	name := h.targetName(r, id)
	if err := store.DeleteUser(r.Context(), h.Docs, id); err != nil {
		writeError(w, err, "failed to delete user")
		return
	}
	h.Authz.InvalidateUser(r.Context(), id)

	slog.Info("user deleted", "user", p.Username, "deleted_user", name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// ListScopes handles GET /api/users/{id}/leader-scopes.
func (h *UsersHandler) ListScopes(w http.ResponseWriter, r *http.Request) {
	grants, err := store.ListScopeGrants(r.Context(), h.Docs, r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to list leader scopes")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(grants))
}

// GrantScope handles POST /api/users/{id}/leader-scopes.
func (h *UsersHandler) GrantScope(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req grantScopeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	grant, err := h.Authz.GrantScope(r.Context(), p, id, req.UnitID)
	if err != nil {
		writeError(w, err, "failed to grant leader scope")
		return
	}

	slog.Info("leader scope granted", "user", p.Username, "target_user", h.targetName(r, id),
		"unit", grant.UnitID, "unit_type", grant.UnitType)
	jsonResponse(w, http.StatusCreated, grant)
}

// RevokeScope handles DELETE /api/users/{id}/leader-scopes/{unitID}.
func (h *UsersHandler) RevokeScope(w http.ResponseWriter, r *http.Request) {
	id, unitID := r.PathValue("id"), r.PathValue("unitID")

	p := GetPrincipal(r.Context())
	if err := h.Authz.RevokeScope(r.Context(), p, id, unitID); err != nil {
		writeError(w, err, "failed to revoke leader scope")
		return
	}

	slog.Info("leader scope revoked", "user", p.Username, "target_user", h.targetName(r, id), "unit", unitID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "leader scope revoked"})
}
