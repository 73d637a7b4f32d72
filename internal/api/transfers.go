package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/authz"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/transfer"
)

// TransfersHandler handles transfer request endpoints.
type TransfersHandler struct {
	Engine *transfer.Engine
	Authz  *authz.Resolver
}

type createTransferRequest struct {
	EquipmentID   string `json:"equipment_id"`
	ToUnitID      string `json:"to_unit_id"`
	ToPersonnelID string `json:"to_personnel_id"`
	Notes         string `json:"notes"`
}

type createTransferResponse struct {
	RequestID string                 `json:"request_id"`
	Transfer  *model.TransferRequest `json:"transfer"`
}

type processRequest struct {
	Action model.TransferAction `json:"action"`
}

type canManageRequest struct {
	PersonnelID string `json:"personnel_id"`
	UnitID      string `json:"unit_id"`
}

// CanManage handles POST /api/can-manage.
func (h *TransfersHandler) CanManage(w http.ResponseWriter, r *http.Request) {
	var req canManageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := model.HolderFromIDs(req.UnitID, req.PersonnelID)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.Authz.CanManageHolder(r.Context(), GetPrincipal(r.Context()), target)
	if err != nil {
		writeError(w, err, "failed to check permissions")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"can_manage": ok})
}

// Create handles POST /api/transfers.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	to, err := model.HolderFromIDs(req.ToUnitID, req.ToPersonnelID)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := GetPrincipal(r.Context())
	tr, err := h.Engine.Initiate(r.Context(), p, transfer.InitiateInput{
		EquipmentID: req.EquipmentID,
		To:          to,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, err, "failed to create transfer")
		return
	}

	slog.Info("transfer requested", "user", p.Username, "request", tr.ID,
		"equipment", tr.EquipmentName, "from", tr.FromName, "to", tr.ToName)
	jsonResponse(w, http.StatusCreated, createTransferResponse{RequestID: tr.ID, Transfer: tr})
}

// List handles GET /api/transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Engine.List(r.Context(), GetPrincipal(r.Context()), store.TransferFilter{
		Status:      q.Get("status"),
		EquipmentID: q.Get("equipment_id"),
	})
	if err != nil {
		writeError(w, err, "failed to list transfers")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(list))
}

// Incoming handles GET /api/transfers/incoming.
func (h *TransfersHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Incoming(r.Context(), GetPrincipal(r.Context()))
	if err != nil {
		writeError(w, err, "failed to list incoming transfers")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(list))
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	tr, err := h.Engine.Get(r.Context(), GetPrincipal(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to get transfer")
		return
	}
	jsonResponse(w, http.StatusOK, tr)
}

// Process handles POST /api/transfers/{id}/process.
func (h *TransfersHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	tr, err := h.Engine.Process(r.Context(), p, r.PathValue("id"), req.Action)
	if err != nil {
		writeError(w, err, "failed to process transfer")
		return
	}

	slog.Info("transfer "+tr.Status, "user", p.Username, "request", tr.ID,
		"equipment", tr.EquipmentName, "to", tr.ToName)
	jsonResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// Confirm handles POST /api/transfers/{id}/confirm.
func (h *TransfersHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	tr, err := h.Engine.ConfirmReceipt(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to confirm transfer")
		return
	}

	slog.Info("transfer receipt confirmed", "user", p.Username, "request", tr.ID, "equipment", tr.EquipmentName)
	jsonResponse(w, http.StatusOK, tr)
}
