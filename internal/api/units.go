package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/authz"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/hierarchy"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// UnitsHandler handles the organization tree endpoints.
type UnitsHandler struct {
	Docs      docstore.Store
	Authz     *authz.Resolver
	Hierarchy *hierarchy.Resolver
}

type createUnitRequest struct {
	UnitType    model.UnitType `json:"unit_type"`
	ParentID    string         `json:"parent_id"`
	Name        string         `json:"name"`
	Designation string         `json:"designation"`
}

type updateUnitRequest struct {
	Name        string `json:"name"`
	Designation string `json:"designation"`
	Status      string `json:"status"`
}

// List handles GET /api/units.
func (h *UnitsHandler) List(w http.ResponseWriter, r *http.Request) {
	unitType := model.UnitType(r.URL.Query().Get("type"))
	if unitType != "" && !unitType.Valid() {
		jsonError(w, http.StatusBadRequest, "unknown unit type")
		return
	}

	units, err := store.ListUnits(r.Context(), h.Docs, unitType)
	if err != nil {
		writeError(w, err, "failed to list units")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(units))
}

// Create handles POST /api/units.
func (h *UnitsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	unit, err := store.CreateUnit(r.Context(), h.Docs, req.UnitType, req.ParentID, req.Name, req.Designation)
	if err != nil {
		writeError(w, err, "failed to create unit")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("unit created", "user", p.Username, "unit", unit.Name, "type", unit.UnitType, "parent", unit.ParentID)
	jsonResponse(w, http.StatusCreated, unit)
}

// Get handles GET /api/units/{id}.
func (h *UnitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	unit, err := store.GetUnit(r.Context(), h.Docs, r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to get unit")
		return
	}
	if unit == nil {
		jsonError(w, http.StatusNotFound, "unit not found")
		return
	}
	jsonResponse(w, http.StatusOK, unit)
}

// Update handles PUT /api/units/{id}. Leaders may edit units in their scope.
func (h *UnitsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateUnitRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	ok, err := h.Authz.CanManageUnit(r.Context(), p, id)
	if err != nil {
		writeError(w, err, "failed to check permissions")
		return
	}
	if !ok {
		jsonError(w, http.StatusForbidden, "not allowed to manage this unit")
		return
	}

	unit, err := store.UpdateUnit(r.Context(), h.Docs, id, req.Name, req.Designation, req.Status)
	if err != nil {
		writeError(w, err, "failed to update unit")
		return
	}

	slog.Info("unit updated", "user", p.Username, "unit", unit.Name, "status", unit.Status)
	jsonResponse(w, http.StatusOK, unit)
}

// Delete handles DELETE /api/units/{id}.
func (h *UnitsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	unit, err := store.GetUnit(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get unit")
		return
	}
	if unit == nil {
		jsonError(w, http.StatusNotFound, "unit not found")
		return
	}

	if err := store.DeleteUnit(r.Context(), h.Docs, id); err != nil {
		writeError(w, err, "failed to delete unit")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("unit deleted", "user", p.Username, "unit", unit.Name, "type", unit.UnitType)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "unit deleted"})
}

// Children handles GET /api/units/{id}/children.
func (h *UnitsHandler) Children(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.exists(w, r, id) {
		return
	}

	units, err := store.ListChildUnits(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to list child units")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(units))
}

// Ancestors handles GET /api/units/{id}/ancestors. The parent comes first.
func (h *UnitsHandler) Ancestors(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.exists(w, r, id) {
		return
	}

	ids, err := h.Hierarchy.AncestorsOf(r.Context(), id)
	if err != nil {
		writeError(w, err, "failed to resolve unit hierarchy")
		return
	}

	units := make([]model.Unit, 0, len(ids))
	for _, aid := range ids {
		u, err := store.GetUnit(r.Context(), h.Docs, aid)
		if err != nil {
			writeError(w, err, "failed to get unit")
			return
		}
		if u != nil {
			units = append(units, *u)
		}
	}
	jsonResponse(w, http.StatusOK, units)
}

// Holdings handles GET /api/units/{id}/holdings.
func (h *UnitsHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.exists(w, r, id) {
		return
	}

	records, err := store.HoldingsOf(r.Context(), h.Docs, model.UnitHolder(id))
	if err != nil {
		writeError(w, err, "failed to list holdings")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(records))
}

func (h *UnitsHandler) exists(w http.ResponseWriter, r *http.Request, id string) bool {
	unit, err := store.GetUnit(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get unit")
		return false
	}
	if unit == nil {
		jsonError(w, http.StatusNotFound, "unit not found")
		return false
	}
	return true
}
