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

// EquipmentInput holds the editable fields of an equipment record.
type EquipmentInput struct {
	Name         string
	SerialNumber string
	Category     string
	Description  string
	Status       string
}

// CreateEquipment creates an equipment record. It starts unheld; custody is
// only ever assigned by an approved transfer.
func CreateEquipment(ctx context.Context, ds docstore.Store, in EquipmentInput) (*model.Equipment, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.InvalidArgument("name is required")
	}
	status := in.Status
	if status == "" {
		status = model.StatusServiceable
	}
	if !model.EditableEquipmentStatus(status) {
		return nil, apperr.InvalidArgument("invalid equipment status %q", status)
	}
	if err := checkSerialFree(ctx, ds, in.SerialNumber, ""); err != nil {
		return nil, err
	}

	ts := now()
	e := &model.Equipment{
		ID:           newID(),
		Name:         name,
		SerialNumber: strings.TrimSpace(in.SerialNumber),
		Category:     strings.TrimSpace(in.Category),
		Description:  strings.TrimSpace(in.Description),
		Status:       status,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	// The serial check above is advisory; the unique rule decides races.
	b := docstore.NewBatch().Create(docstore.Equipment, e.ID, e)
	if err := commit(ctx, ds, b, "serial number is already in use"); err != nil {
		return nil, fmt.Errorf("creating equipment: %w", err)
	}
	return e, nil
}

func checkSerialFree(ctx context.Context, ds docstore.Store, serial, self string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil
	}
	list, err := docstore.FindAll[model.Equipment](ctx, ds, docstore.Equipment, docstore.Eq("serial_number", serial))
	if err != nil {
		return fmt.Errorf("checking serial number: %w", err)
	}
	for _, e := range list {
		if e.ID != self {
			return apperr.FailedPrecondition("serial number %q is already in use", serial)
		}
	}
	return nil
}

// GetEquipment returns an equipment record by ID.
func GetEquipment(ctx context.Context, ds docstore.Store, id string) (*model.Equipment, error) {
	e, err := docstore.Load[model.Equipment](ctx, ds, docstore.Equipment, id)
	if err != nil {
		return nil, fmt.Errorf("getting equipment: %w", err)
	}
	return e, nil
}

// ListEquipment returns equipment ordered by name, optionally by status.
func ListEquipment(ctx context.Context, ds docstore.Store, status string) ([]model.Equipment, error) {
	var filters []docstore.Filter
	if status != "" {
		filters = append(filters, docstore.Eq("status", status))
	}
	list, err := docstore.FindAll[model.Equipment](ctx, ds, docstore.Equipment, filters...)
	if err != nil {
		return nil, fmt.Errorf("listing equipment: %w", err)
	}
	slices.SortStableFunc(list, func(a, b model.Equipment) int {
		return strings.Compare(a.Name, b.Name)
	})
	return list, nil
}

// UpdateEquipment edits an equipment record. The status may only be set to
// an editable status, and never while a transfer holds the lock. Empty fields
// are left unchanged.
func UpdateEquipment(ctx context.Context, ds docstore.Store, id string, in EquipmentInput) (*model.Equipment, error) {
	e, err := GetEquipment(ctx, ds, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("equipment not found")
	}
	prevStatus, prevUpdated := e.Status, e.UpdatedAt

	if v := strings.TrimSpace(in.Name); v != "" {
		e.Name = v
	}
	if v := strings.TrimSpace(in.SerialNumber); v != "" && v != e.SerialNumber {
		if err := checkSerialFree(ctx, ds, v, e.ID); err != nil {
			return nil, err
		}
		e.SerialNumber = v
	}
	if v := strings.TrimSpace(in.Category); v != "" {
		e.Category = v
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		e.Description = v
	}
	if in.Status != "" && in.Status != e.Status {
		if !model.EditableEquipmentStatus(in.Status) {
			return nil, apperr.InvalidArgument("status %q cannot be set directly", in.Status)
		}
		if e.Status == model.StatusPendingTransfer {
			return nil, apperr.FailedPrecondition("equipment has a pending transfer")
		}
		e.Status = in.Status
	}
	e.UpdatedAt = now()

	b := docstore.NewBatch().Update(docstore.Equipment, e.ID, e,
		docstore.Eq("status", prevStatus), docstore.Eq("updated_at", prevUpdated))
	if err := commit(ctx, ds, b, "equipment was modified concurrently or its serial number is in use"); err != nil {
		return nil, fmt.Errorf("updating equipment: %w", err)
	}
	return e, nil
}

// SetEquipmentHasPhoto records whether a photo is stored for the equipment.
func SetEquipmentHasPhoto(ctx context.Context, ds docstore.Store, id string, has bool) error {
	e, err := GetEquipment(ctx, ds, id)
	if err != nil {
		return err
	}
	if e == nil {
		return apperr.NotFound("equipment not found")
	}
	prev := e.UpdatedAt
	e.HasPhoto = has
	e.UpdatedAt = now()

	b := docstore.NewBatch().Update(docstore.Equipment, e.ID, e, docstore.Eq("updated_at", prev))
	if err := commit(ctx, ds, b, "equipment was modified concurrently"); err != nil {
		return fmt.Errorf("updating equipment photo flag: %w", err)
	}
	return nil
}

// DeleteEquipment removes equipment that has never been held and has no
// transfer history. Anything with history is retired via its status instead.
func DeleteEquipment(ctx context.Context, ds docstore.Store, id string) error {
	e, err := GetEquipment(ctx, ds, id)
	if err != nil {
		return err
	}
	if e == nil {
		return apperr.NotFound("equipment not found")
	}

	custody, err := ds.Find(ctx, docstore.Custody, docstore.Eq("equipment_id", id))
	if err != nil {
		return fmt.Errorf("checking custody history: %w", err)
	}
	transfers, err := ds.Find(ctx, docstore.Transfers, docstore.Eq("equipment_id", id))
	if err != nil {
		return fmt.Errorf("checking transfer history: %w", err)
	}
	if len(custody) > 0 || len(transfers) > 0 {
		return apperr.FailedPrecondition("equipment has custody history; mark it missing or unserviceable instead")
	}

	b := docstore.NewBatch().Delete(docstore.Equipment, id, docstore.Eq("status", e.Status))
	if err := commit(ctx, ds, b, "equipment changed concurrently"); err != nil {
		return fmt.Errorf("deleting equipment: %w", err)
	}
	return nil
}
