package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/imaging"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// EquipmentHandler handles equipment endpoints. Photos live in their own
// SQLite table next to the document store.
type EquipmentHandler struct {
	DB   *sql.DB
	Docs docstore.Store
}

type equipmentRequest struct {
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Status       string `json:"status"`
}

func (req equipmentRequest) input() store.EquipmentInput {
	return store.EquipmentInput{
		Name:         req.Name,
		SerialNumber: req.SerialNumber,
		Category:     req.Category,
		Description:  req.Description,
		Status:       req.Status,
	}
}

type equipmentDetail struct {
	*model.Equipment
	Custody  *model.CustodyRecord   `json:"custody,omitempty"`
	Transfer *model.TransferRequest `json:"pending_transfer,omitempty"`
}

// List handles GET /api/equipment.
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !model.ValidEquipmentStatus(status) {
		jsonError(w, http.StatusBadRequest, "unknown equipment status")
		return
	}

	list, err := store.ListEquipment(r.Context(), h.Docs, status)
	if err != nil {
		writeError(w, err, "failed to list equipment")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(list))
}

// Create handles POST /api/equipment.
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req equipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eq, err := store.CreateEquipment(r.Context(), h.Docs, req.input())
	if err != nil {
		writeError(w, err, "failed to create equipment")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("equipment created", "user", p.Username, "equipment", eq.Name, "serial", eq.SerialNumber)
	jsonResponse(w, http.StatusCreated, eq)
}

// Get handles GET /api/equipment/{id}. The response includes the current
// holder and any pending transfer.
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	eq, err := store.GetEquipment(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get equipment")
		return
	}
	if eq == nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}

	detail := equipmentDetail{Equipment: eq}
	if detail.Custody, err = store.ActiveCustody(r.Context(), h.Docs, id); err != nil {
		writeError(w, err, "failed to get custody")
		return
	}
	if detail.Custody != nil {
		name, err := store.HolderName(r.Context(), h.Docs, detail.Custody.Holder)
		if err == nil {
			detail.Custody.HolderName = name
		}
	}
	if detail.Transfer, err = store.PendingTransferFor(r.Context(), h.Docs, id); err != nil {
		writeError(w, err, "failed to get pending transfer")
		return
	}

	jsonResponse(w, http.StatusOK, detail)
}

// Update handles PUT /api/equipment/{id}.
func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req equipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eq, err := store.UpdateEquipment(r.Context(), h.Docs, id, req.input())
	if err != nil {
		writeError(w, err, "failed to update equipment")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("equipment updated", "user", p.Username, "equipment", eq.Name, "status", eq.Status)
	jsonResponse(w, http.StatusOK, eq)
}

// Delete handles DELETE /api/equipment/{id}.
func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	eq, err := store.GetEquipment(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get equipment")
		return
	}
	if eq == nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}

	if err := store.DeleteEquipment(r.Context(), h.Docs, id); err != nil {
		writeError(w, err, "failed to delete equipment")
		return
	}
	if err := store.DeleteEquipmentPhoto(r.Context(), h.DB, id); err != nil {
		slog.Warn("failed to delete equipment photo", "equipment", id, "error", err)
	}

	p := GetPrincipal(r.Context())
	slog.Info("equipment deleted", "user", p.Username, "equipment", eq.Name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "equipment deleted"})
}

// Custody handles GET /api/equipment/{id}/custody.
func (h *EquipmentHandler) Custody(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	eq, err := store.GetEquipment(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get equipment")
		return
	}
	if eq == nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}

	history, err := store.CustodyHistory(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get custody history")
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(history))
}

// UploadPhoto handles PUT /api/equipment/{id}/photo.
func (h *EquipmentHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	eq, err := store.GetEquipment(r.Context(), h.Docs, id)
	if err != nil {
		writeError(w, err, "failed to get equipment")
		return
	}
	if eq == nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		file, _, err = r.FormFile("image")
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, "photo file required")
		return
	}
	defer file.Close()

	photo, err := imaging.ProcessPhoto(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = store.SetEquipmentPhoto(r.Context(), h.DB, id, store.Photo{
		Image:     photo.Image,
		Thumbnail: photo.Thumbnail,
		MIME:      photo.MIME,
	})
	if err != nil {
		writeError(w, err, "failed to save photo")
		return
	}
	if err := store.SetEquipmentHasPhoto(r.Context(), h.Docs, id, true); err != nil {
		writeError(w, err, "failed to save photo")
		return
	}

	p := GetPrincipal(r.Context())
	slog.Info("equipment photo uploaded", "user", p.Username, "equipment", eq.Name, "bytes", len(photo.Image))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "photo uploaded"})
}

// GetPhoto handles GET /api/equipment/{id}/photo. Pass size=thumb for the
// thumbnail.
func (h *EquipmentHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := store.GetEquipmentPhoto(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to get photo")
		return
	}
	if photo == nil {
		jsonError(w, http.StatusNotFound, "no photo")
		return
	}

	data := photo.Image
	if r.URL.Query().Get("size") == "thumb" {
		data = photo.Thumbnail
	}

	w.Header().Set("Content-Type", photo.MIME)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
