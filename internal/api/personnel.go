package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/authz"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// PersonnelHandler handles personnel endpoints. Writes need admin, or a
// leader scoped over the person's unit.
type PersonnelHandler struct {
	Docs  docstore.Store
	Authz *authz.Resolver
}

type personnelRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Rank          string `json:"rank"`
	ServiceNumber string `json:"service_number"`
	UnitID        string `json:"unit_id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
}

func (req personnelRequest) input() store.PersonnelInput {
	return store.PersonnelInput{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Rank:          req.Rank,
		ServiceNumber: req.ServiceNumber,
		UnitID:        req.UnitID,
		UserID:        req.UserID,
	}
}

type moveRequest struct {
	UnitID string `json:"unit_id"`
}

// List handles GET /api/personnel.
func (h *PersonnelHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := store.ListPersonnel(r.Context(), h.Docs, store.PersonnelFilter{
		UnitID:      q.Get("unit_id"),
		BattalionID: q.Get("battalion_id"),
		Status:      q.Get("status"),
	})
	if err != nil {
		writeError(w, err, "failed to list personnel")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(list))
}

// Create handles POST /api/personnel.
func (h *PersonnelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req personnelRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	if !p.IsAdmin() {
		if req.UnitID == "" {
			jsonError(w, http.StatusForbidden, "only admins can create unplaced personnel")
			return
		}
		if req.UserID != "" {
			jsonError(w, http.StatusForbidden, "only admins can link personnel to a login")
			return
		}
		if !h.allowed(w, r, func() (bool, error) { return h.Authz.CanManageUnit(r.Context(), p, req.UnitID) }) {
			return
		}
	}

	person, err := store.CreatePersonnel(r.Context(), h.Docs, req.input())
	if err != nil {
		writeError(w, err, "failed to create personnel")
		return
	}

	slog.Info("personnel created", "user", p.Username, "personnel", person.DisplayName(), "unit", person.UnitID)
	jsonResponse(w, http.StatusCreated, person)
}

// Get handles GET /api/personnel/{id}.
func (h *PersonnelHandler) Get(w http.ResponseWriter, r *http.Request) {
	person, err := store.GetPersonnel(r.Context(), h.Docs, r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to get personnel")
		return
	}
	if person == nil {
		jsonError(w, http.StatusNotFound, "personnel not found")
		return
	}
	jsonResponse(w, http.StatusOK, person)
}

// Update handles PUT /api/personnel/{id}.
func (h *PersonnelHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req personnelRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	if !h.allowed(w, r, func() (bool, error) { return h.Authz.CanManagePersonnel(r.Context(), p, id) }) {
		return
	}
	if req.UserID != "" && !p.IsAdmin() {
		jsonError(w, http.StatusForbidden, "only admins can link personnel to a login")
		return
	}

	person, err := store.UpdatePersonnel(r.Context(), h.Docs, id, req.input(), req.Status)
	if err != nil {
		writeError(w, err, "failed to update personnel")
		return
	}

	slog.Info("personnel updated", "user", p.Username, "personnel", person.DisplayName(), "status", person.Status)
	jsonResponse(w, http.StatusOK, person)
}

// Move handles PUT /api/personnel/{id}/unit. A leader must manage both the
// person's current unit and the new one.
func (h *PersonnelHandler) Move(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UnitID == "" {
		jsonError(w, http.StatusBadRequest, "unit_id required")
		return
	}

	p := GetPrincipal(r.Context())
	if !h.allowed(w, r, func() (bool, error) { return h.Authz.CanManagePersonnel(r.Context(), p, id) }) {
		return
	}
	if !h.allowed(w, r, func() (bool, error) { return h.Authz.CanManageUnit(r.Context(), p, req.UnitID) }) {
		return
	}

	person, err := store.MovePersonnel(r.Context(), h.Docs, id, req.UnitID)
	if err != nil {
		writeError(w, err, "failed to move personnel")
		return
	}

	slog.Info("personnel moved", "user", p.Username, "personnel", person.DisplayName(),
		"unit", person.UnitID, "battalion", person.BattalionID)
	jsonResponse(w, http.StatusOK, person)
}

// Delete handles DELETE /api/personnel/{id}.
func (h *PersonnelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	person, err := store.GetPersonnel(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get personnel")
		return
	}
	if person == nil {
		jsonError(w, http.StatusNotFound, "personnel not found")
		return
	}

	if err := store.DeletePersonnel(r.Context(), h.Docs, id); err != nil {
		writeError(w, err, "failed to delete personnel")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("personnel deleted", "user", p.Username, "personnel", person.DisplayName())
	jsonResponse(w, http.StatusOK, map[string]string{"message": "personnel deleted"})
}

// Holdings handles GET /api/personnel/{id}/holdings.
func (h *PersonnelHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	person, err := store.GetPersonnel(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get personnel")
		return
	}
	if person == nil {
		jsonError(w, http.StatusNotFound, "personnel not found")
		return
	}

	records, err := store.HoldingsOf(r.Context(), h.Docs, model.PersonnelHolder(id))
	if err != nil {
		writeError(w, err, "failed to list holdings")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(records))
}

// allowed runs an authorization check and writes the failure response.
func (h *PersonnelHandler) allowed(w http.ResponseWriter, r *http.Request, check func() (bool, error)) bool {
	ok, err := check()
	if err != nil {
		writeError(w, err, "failed to check permissions")
		return false
	}
	if !ok {
		jsonError(w, http.StatusForbidden, "not allowed to manage this personnel")
		return false
	}
	return true
}
