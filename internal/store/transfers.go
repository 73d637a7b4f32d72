package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/model"
)

// GetTransfer returns a transfer request by ID.
func GetTransfer(ctx context.Context, ds docstore.Store, id string) (*model.TransferRequest, error) {
	t, err := docstore.Load[model.TransferRequest](ctx, ds, docstore.Transfers, id)
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// TransferFilter narrows ListTransfers. Zero fields match everything.
type TransferFilter struct {
	Status      string
	EquipmentID string
	To          model.Holder
	RequestedBy string
}

// ListTransfers returns transfer requests, newest first.
func ListTransfers(ctx context.Context, ds docstore.Store, f TransferFilter) ([]model.TransferRequest, error) {
	var filters []docstore.Filter
	if f.Status != "" {
		filters = append(filters, docstore.Eq("status", f.Status))
	}
	if f.EquipmentID != "" {
		filters = append(filters, docstore.Eq("equipment_id", f.EquipmentID))
	}
	if f.To.Valid() {
		filters = append(filters,
			docstore.Eq("to.kind", string(f.To.Kind)),
			docstore.Eq("to.id", f.To.ID),
		)
	}
	if f.RequestedBy != "" {
		filters = append(filters, docstore.Eq("requested_by", f.RequestedBy))
	}

	list, err := docstore.FindAll[model.TransferRequest](ctx, ds, docstore.Transfers, filters...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	slices.SortStableFunc(list, func(a, b model.TransferRequest) int {
		return b.RequestedAt.Compare(a.RequestedAt)
	})
	return list, nil
}

// PendingTransferFor returns the pending request of the equipment, if any.
func PendingTransferFor(ctx context.Context, ds docstore.Store, equipmentID string) (*model.TransferRequest, error) {
	list, err := ListTransfers(ctx, ds, TransferFilter{
		Status:      model.TransferPending,
		EquipmentID: equipmentID,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}
