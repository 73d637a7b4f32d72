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

// PersonnelInput holds the editable fields of a personnel record.
type PersonnelInput struct {
	FirstName     string
	LastName      string
	Rank          string
	ServiceNumber string
	UnitID        string
	UserID        string
}

// CreatePersonnel creates a personnel record. The battalion is derived from
// the unit, never taken from the caller.
func CreatePersonnel(ctx context.Context, ds docstore.Store, in PersonnelInput) (*model.Personnel, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" && in.LastName == "" {
		return nil, apperr.InvalidArgument("a name is required")
	}

	ts := now()
	p := &model.Personnel{
		ID:            newID(),
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Rank:          strings.TrimSpace(in.Rank),
		ServiceNumber: strings.TrimSpace(in.ServiceNumber),
		Status:        model.PersonnelStatusActive,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	b := docstore.NewBatch()

	if in.UnitID != "" {
		if err := placeInUnit(ctx, ds, b, p, in.UnitID); err != nil {
			return nil, err
		}
	}
	if in.UserID != "" {
		if err := checkUserLink(ctx, ds, in.UserID, ""); err != nil {
			return nil, err
		}
		p.UserID = in.UserID
	}

	b.Create(docstore.Personnel, p.ID, p)
	if err := commit(ctx, ds, b, "unit changed concurrently"); err != nil {
		return nil, fmt.Errorf("creating personnel: %w", err)
	}
	return p, nil
}

// placeInUnit assigns p to unitID and its battalion, touching the unit.
func placeInUnit(ctx context.Context, ds docstore.Store, b *docstore.Batch, p *model.Personnel, unitID string) error {
	u, err := GetUnit(ctx, ds, unitID)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.NotFound("unit not found")
	}
	battalion, err := battalionOf(ctx, ds, u.ID)
	if err != nil {
		return err
	}
	p.UnitID = u.ID
	p.BattalionID = battalion
	touchUnit(b, u)
	return nil
}

// checkUserLink verifies that userID names a live user not already linked to
// another personnel record than self.
func checkUserLink(ctx context.Context, ds docstore.Store, userID, self string) error {
	u, err := GetUser(ctx, ds, userID)
	if err != nil {
		return err
	}
	if u == nil || u.DeletedAt != nil {
		return apperr.NotFound("user not found")
	}
	linked, err := GetPersonnelByUser(ctx, ds, userID)
	if err != nil {
		return err
	}
	if linked != nil && linked.ID != self {
		return apperr.FailedPrecondition("user is already linked to other personnel")
	}
	return nil
}

// GetPersonnel returns a personnel record by ID.
func GetPersonnel(ctx context.Context, ds docstore.Store, id string) (*model.Personnel, error) {
	p, err := docstore.Load[model.Personnel](ctx, ds, docstore.Personnel, id)
	if err != nil {
		return nil, fmt.Errorf("getting personnel: %w", err)
	}
	return p, nil
}

// GetPersonnelByUser returns the personnel record linked to a user.
func GetPersonnelByUser(ctx context.Context, ds docstore.Store, userID string) (*model.Personnel, error) {
	if userID == "" {
		return nil, nil
	}
	list, err := docstore.FindAll[model.Personnel](ctx, ds, docstore.Personnel, docstore.Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("getting personnel by user: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// PersonnelFilter narrows ListPersonnel. Empty fields match everything.
type PersonnelFilter struct {
	UnitID      string
	BattalionID string
	Status      string
}

// ListPersonnel returns personnel ordered by last and first name.
func ListPersonnel(ctx context.Context, ds docstore.Store, f PersonnelFilter) ([]model.Personnel, error) {
	var filters []docstore.Filter
	if f.UnitID != "" {
		filters = append(filters, docstore.Eq("unit_id", f.UnitID))
	}
	if f.BattalionID != "" {
		filters = append(filters, docstore.Eq("battalion_id", f.BattalionID))
	}
	if f.Status != "" {
		filters = append(filters, docstore.Eq("status", f.Status))
	}

	list, err := docstore.FindAll[model.Personnel](ctx, ds, docstore.Personnel, filters...)
	if err != nil {
		return nil, fmt.Errorf("listing personnel: %w", err)
	}
	slices.SortStableFunc(list, func(a, b model.Personnel) int {
		if c := strings.Compare(a.LastName, b.LastName); c != 0 {
			return c
		}
		return strings.Compare(a.FirstName, b.FirstName)
	})
	return list, nil
}

// UpdatePersonnel changes the descriptive fields and the user link. Empty
// fields are left unchanged; the unit is changed with MovePersonnel.
func UpdatePersonnel(ctx context.Context, ds docstore.Store, id string, in PersonnelInput, status string) (*model.Personnel, error) {
	p, err := GetPersonnel(ctx, ds, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("personnel not found")
	}
	prev := p.UpdatedAt

	if v := strings.TrimSpace(in.FirstName); v != "" {
		p.FirstName = v
	}
	if v := strings.TrimSpace(in.LastName); v != "" {
		p.LastName = v
	}
	if v := strings.TrimSpace(in.Rank); v != "" {
		p.Rank = v
	}
	if v := strings.TrimSpace(in.ServiceNumber); v != "" {
		p.ServiceNumber = v
	}
	if status != "" {
		if status != model.PersonnelStatusActive && status != model.PersonnelStatusInactive {
			return nil, apperr.InvalidArgument("unknown personnel status %q", status)
		}
		p.Status = status
	}
	if in.UserID != "" && in.UserID != p.UserID {
		if err := checkUserLink(ctx, ds, in.UserID, p.ID); err != nil {
			return nil, err
		}
		p.UserID = in.UserID
	}
	p.UpdatedAt = now()

	b := docstore.NewBatch().Update(docstore.Personnel, p.ID, p, docstore.Eq("updated_at", prev))
	if err := commit(ctx, ds, b, "personnel was modified concurrently"); err != nil {
		return nil, fmt.Errorf("updating personnel: %w", err)
	}
	return p, nil
}

// MovePersonnel reassigns a person to another unit and re-derives their
// battalion. Moving a person does not move equipment they hold.
func MovePersonnel(ctx context.Context, ds docstore.Store, id, unitID string) (*model.Personnel, error) {
	if unitID == "" {
		return nil, apperr.InvalidArgument("unit is required")
	}
	p, err := GetPersonnel(ctx, ds, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("personnel not found")
	}
	prev := p.UnitID

	b := docstore.NewBatch()
	if err := placeInUnit(ctx, ds, b, p, unitID); err != nil {
		return nil, err
	}
	p.UpdatedAt = now()
	b.Update(docstore.Personnel, p.ID, p, eqOrMissing("unit_id", prev))

	if err := commit(ctx, ds, b, "personnel was moved concurrently"); err != nil {
		return nil, fmt.Errorf("moving personnel: %w", err)
	}
	return p, nil
}

// DeletePersonnel removes a personnel record that holds no equipment and is
// not the destination of a pending transfer.
func DeletePersonnel(ctx context.Context, ds docstore.Store, id string) error {
	p, err := GetPersonnel(ctx, ds, id)
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.NotFound("personnel not found")
	}

	holdings, err := HoldingsOf(ctx, ds, model.PersonnelHolder(id))
	if err != nil {
		return err
	}
	if len(holdings) > 0 {
		return apperr.FailedPrecondition("personnel still holds equipment")
	}
	pending, err := ListTransfers(ctx, ds, TransferFilter{
		Status: model.TransferPending,
		To:     model.PersonnelHolder(id),
	})
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return apperr.FailedPrecondition("personnel has pending incoming transfers")
	}

	b := docstore.NewBatch().Delete(docstore.Personnel, id, docstore.Eq("updated_at", p.UpdatedAt))
	if err := commit(ctx, ds, b, "personnel was modified concurrently"); err != nil {
		return fmt.Errorf("deleting personnel: %w", err)
	}
	return nil
}
