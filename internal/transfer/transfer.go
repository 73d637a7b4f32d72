// Package transfer runs the transfer request workflow: a request locks its
// equipment, and approval or rejection releases the lock while updating the
// custody ledger in the same atomic commit.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/authz"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/events"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// Notifier receives transfer events after they are committed.
type Notifier interface {
	Publish(ev events.Event)
}

// Engine is the transfer workflow over a document store.
type Engine struct {
	ds                docstore.Store
	authz             *authz.Resolver
	notifier          Notifier
	metrics           *metrics.Metrics
	now               func() time.Time
	recipientApproval bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier publishes committed changes to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics records workflow counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecipientApproval makes transfers to a person with a login wait for
// that person to confirm receipt before they can be approved.
func WithRecipientApproval(on bool) Option {
	return func(e *Engine) { e.recipientApproval = on }
}

// New returns an engine over ds authorizing with az.
func New(ds docstore.Store, az *authz.Resolver, opts ...Option) *Engine {
	e := &Engine{
		ds:    ds,
		authz: az,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitiateInput describes a new transfer request.
type InitiateInput struct {
	EquipmentID string
	To          model.Holder
	Notes       string
}

func authenticated(p *model.Principal) error {
	if p == nil || p.UserID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	return nil
}

// Initiate creates a pending request and takes the equipment's transfer lock.
// Any authenticated principal may initiate.
func (e *Engine) Initiate(ctx context.Context, p *model.Principal, in InitiateInput) (*model.TransferRequest, error) {
	if err := authenticated(p); err != nil {
		return nil, err
	}
	if in.EquipmentID == "" {
		return nil, apperr.InvalidArgument("equipment id is required")
	}
	if !in.To.Valid() {
		return nil, apperr.InvalidArgument("exactly one destination unit or personnel is required")
	}

	eq, err := store.GetEquipment(ctx, e.ds, in.EquipmentID)
	if err != nil {
		return nil, err
	}
	if eq == nil {
		return nil, apperr.NotFound("equipment not found")
	}
	switch eq.Status {
	case model.StatusPendingTransfer:
		return nil, apperr.FailedPrecondition("equipment already has a pending transfer")
	case model.StatusMissing:
		return nil, apperr.FailedPrecondition("missing equipment cannot be transferred")
	}

	req := &model.TransferRequest{
		ID:            uuid.NewString(),
		EquipmentID:   eq.ID,
		EquipmentName: eq.Name,
		Status:        model.TransferPending,
		RequestedBy:   p.UserID,
		RequestedAt:   e.now().UTC(),
		Notes:         in.Notes,
		To:            in.To,
		PriorStatus:   eq.Status,
	}

	active, err := store.ActiveCustody(ctx, e.ds, eq.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		from := active.Holder
		req.From = &from
		// The holder may have been removed since; the snapshot keeps the id.
		req.FromName, _ = store.HolderName(ctx, e.ds, from)
	}

	if req.From != nil && *req.From == in.To {
		return nil, apperr.FailedPrecondition("equipment is already held by the destination")
	}

	// The destination is touched so it cannot be deleted under the request.
	b := docstore.NewBatch()
	req.ToName, err = store.TouchHolder(ctx, e.ds, b, in.To)
	if err != nil {
		return nil, err
	}

	if e.recipientApproval && in.To.Kind == model.HolderPersonnel {
		person, err := store.GetPersonnel(ctx, e.ds, in.To.ID)
		if err != nil {
			return nil, err
		}
		if person != nil && person.UserID != "" {
			req.RecipientApprovalRequired = true
			req.RecipientUserID = person.UserID
		}
	}

	b.Create(docstore.Transfers, req.ID, req)
	lockEquipment(b, eq, model.StatusPendingTransfer, req.RequestedAt)
	if err := e.commit(ctx, b, "initiate", "equipment changed concurrently; reload and retry"); err != nil {
		return nil, err
	}

	e.metrics.TransferInitiated()
	e.publish(ctx, events.TransferCreated, req)
	return req, nil
}

// Process approves or rejects a pending request. Admins may process any
// request; leaders may process requests whose destination or current holder
// they manage.
func (e *Engine) Process(ctx context.Context, p *model.Principal, requestID string, action model.TransferAction) (*model.TransferRequest, error) {
	if err := authenticated(p); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, apperr.InvalidArgument("request id is required")
	}
	if !action.Valid() {
		return nil, apperr.InvalidArgument("action must be approve or reject")
	}

	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	active, err := store.ActiveCustody(ctx, e.ds, req.EquipmentID)
	if err != nil {
		return nil, err
	}
	ok, err := e.canProcess(ctx, p, req, active)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.PermissionDenied("not allowed to process this transfer")
	}
	if req.Terminal() {
		return nil, apperr.FailedPrecondition("transfer request is already %s", req.Status)
	}

	eq, err := store.GetEquipment(ctx, e.ds, req.EquipmentID)
	if err != nil {
		return nil, err
	}
	if eq == nil {
		return nil, apperr.FailedPrecondition("equipment of this transfer no longer exists")
	}

	ts := e.now().UTC()
	req.ProcessedBy = p.UserID
	req.ProcessedAt = &ts

	var b *docstore.Batch
	switch action {
	case model.ActionApprove:
		if req.RecipientApprovalRequired && !req.RecipientApproved {
			return nil, apperr.FailedPrecondition("transfer is awaiting recipient confirmation")
		}
		if b, err = e.approveBatch(ctx, req, eq, active, ts); err != nil {
			return nil, err
		}
	case model.ActionReject:
		b = e.rejectBatch(req, eq, ts)
	}

	if err := e.commit(ctx, b, "process", "transfer request was processed or changed concurrently; reload and retry"); err != nil {
		return nil, err
	}

	e.metrics.TransferResolved(string(action))
	if action == model.ActionApprove {
		e.publish(ctx, events.TransferApproved, req)
	} else {
		e.publish(ctx, events.TransferRejected, req)
	}
	return req, nil
}

// approveBatch moves custody to the destination and releases the lock into
// the assigned state. The destination must still exist and is touched, so a
// concurrent delete of it conflicts with the approval.
func (e *Engine) approveBatch(ctx context.Context, req *model.TransferRequest, eq *model.Equipment, active *model.CustodyRecord, ts time.Time) (*docstore.Batch, error) {
	b := docstore.NewBatch()
	if _, err := store.TouchHolder(ctx, e.ds, b, req.To); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.FailedPrecondition("destination of this transfer no longer exists")
		}
		return nil, err
	}

	req.Status = model.TransferApproved
	b.Update(docstore.Transfers, req.ID, req, docstore.Eq("status", model.TransferPending))

	if active != nil {
		active.ReturnedAt = &ts
		active.HolderName = ""
		b.Update(docstore.Custody, active.ID, active, docstore.Missing("returned_at"))
	}

	rec := &model.CustodyRecord{
		ID:          uuid.NewString(),
		EquipmentID: req.EquipmentID,
		Holder:      req.To,
		Quantity:    1,
		AssignedAt:  ts,
		RequestID:   req.ID,
	}
	b.Create(docstore.Custody, rec.ID, rec)

	lockEquipment(b, eq, model.StatusAssigned, ts)
	return b, nil
}

// rejectBatch releases the lock back to the status observed at initiation.
func (e *Engine) rejectBatch(req *model.TransferRequest, eq *model.Equipment, ts time.Time) *docstore.Batch {
	req.Status = model.TransferRejected
	b := docstore.NewBatch().
		Update(docstore.Transfers, req.ID, req, docstore.Eq("status", model.TransferPending))
	lockEquipment(b, eq, model.RestoreStatus(req.PriorStatus), ts)
	return b
}

// lockEquipment stages eq's move to status, guarded on the status and
// timestamp it was read with so edits made in between are never overwritten.
func lockEquipment(b *docstore.Batch, eq *model.Equipment, status string, ts time.Time) {
	prevStatus, prevUpdated := eq.Status, eq.UpdatedAt
	eq.Status = status
	eq.UpdatedAt = ts
	b.Update(docstore.Equipment, eq.ID, eq,
		docstore.Eq("status", prevStatus), docstore.Eq("updated_at", prevUpdated))
}

func (e *Engine) canProcess(ctx context.Context, p *model.Principal, req *model.TransferRequest, active *model.CustodyRecord) (bool, error) {
	if p.IsAdmin() {
		return true, nil
	}
	if !p.IsLeader() {
		return false, nil
	}

	holders := []model.Holder{req.To}
	if active != nil {
		holders = append(holders, active.Holder)
	}
	return e.managesAny(ctx, p, holders)
}

// managesAny reports whether p manages any of holders. Holders that no
// longer exist are skipped.
func (e *Engine) managesAny(ctx context.Context, p *model.Principal, holders []model.Holder) (bool, error) {
	for _, h := range holders {
		ok, err := e.authz.CanManageHolder(ctx, p, h)
		if apperr.Is(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ConfirmReceipt records the recipient's confirmation of a pending request.
// Only the user linked to the destination person may confirm.
func (e *Engine) ConfirmReceipt(ctx context.Context, p *model.Principal, requestID string) (*model.TransferRequest, error) {
	if err := authenticated(p); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, apperr.InvalidArgument("request id is required")
	}

	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Terminal() {
		return nil, apperr.FailedPrecondition("transfer request is already %s", req.Status)
	}
	if !req.RecipientApprovalRequired {
		return nil, apperr.FailedPrecondition("transfer does not need recipient confirmation")
	}
	if req.RecipientUserID != p.UserID {
		return nil, apperr.PermissionDenied("only the recipient can confirm this transfer")
	}
	if req.RecipientApproved {
		return req, nil
	}

	ts := e.now().UTC()
	req.RecipientApproved = true
	req.RecipientApprovedAt = &ts

	b := docstore.NewBatch().
		Update(docstore.Transfers, req.ID, req, docstore.Eq("status", model.TransferPending))
	if err := e.commit(ctx, b, "confirm", "transfer request was already processed"); err != nil {
		return nil, err
	}

	e.publish(ctx, events.TransferConfirmed, req)
	return req, nil
}

// Get returns a request by id.
func (e *Engine) Get(ctx context.Context, p *model.Principal, requestID string) (*model.TransferRequest, error) {
	if err := authenticated(p); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, apperr.InvalidArgument("request id is required")
	}
	return e.load(ctx, requestID)
}

// List returns requests matching f, newest first.
func (e *Engine) List(ctx context.Context, p *model.Principal, f store.TransferFilter) ([]model.TransferRequest, error) {
	if err := authenticated(p); err != nil {
		return nil, err
	}
	if f.Status != "" && f.Status != model.TransferPending &&
		f.Status != model.TransferApproved && f.Status != model.TransferRejected {
		return nil, apperr.InvalidArgument("unknown transfer status %q", f.Status)
	}
	return store.ListTransfers(ctx, e.ds, f)
}

// Incoming returns the pending requests awaiting p: those sent to the person
// linked to p, and those p may process because p manages the destination or
// the current holder. Admins see every pending request.
func (e *Engine) Incoming(ctx context.Context, p *model.Principal) ([]model.TransferRequest, error) {
	if err := authenticated(p); err != nil {
		return nil, err
	}
	pending, err := store.ListTransfers(ctx, e.ds, store.TransferFilter{Status: model.TransferPending})
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() {
		return pending, nil
	}

	self, err := store.GetPersonnelByUser(ctx, e.ds, p.UserID)
	if err != nil {
		return nil, err
	}

	var out []model.TransferRequest
	for _, req := range pending {
		if self != nil && req.To == model.PersonnelHolder(self.ID) {
			out = append(out, req)
			continue
		}
		if !p.IsLeader() {
			continue
		}
		// The equipment is locked while pending, so From is still its holder.
		holders := []model.Holder{req.To}
		if req.From != nil {
			holders = append(holders, *req.From)
		}
		ok, err := e.managesAny(ctx, p, holders)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, req)
		}
	}
	return out, nil
}

func (e *Engine) load(ctx context.Context, requestID string) (*model.TransferRequest, error) {
	req, err := store.GetTransfer(ctx, e.ds, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperr.NotFound("transfer request not found")
	}
	return req, nil
}

func (e *Engine) commit(ctx context.Context, b *docstore.Batch, op, msg string) error {
	err := e.ds.Commit(ctx, b)
	if errors.Is(err, docstore.ErrConflict) {
		e.metrics.TransferConflict(op)
		return apperr.Wrap(apperr.KindFailedPrecondition, err, msg)
	}
	if err != nil {
		return fmt.Errorf("committing %s: %w", op, err)
	}
	return nil
}

// publish notifies the requester, the recipient and the leaders above both
// ends of the transfer.
func (e *Engine) publish(ctx context.Context, typ string, req *model.TransferRequest) {
	if e.notifier == nil {
		return
	}
	audience, err := e.audience(ctx, req)
	if err != nil {
		slog.Warn("resolving event audience", "request", req.ID, "error", err)
	}
	e.notifier.Publish(events.Event{
		Type:     typ,
		Transfer: req,
		At:       e.now().UTC(),
		Audience: audience,
	})
}

func (e *Engine) audience(ctx context.Context, req *model.TransferRequest) ([]string, error) {
	seen := map[string]bool{}
	var users []string
	add := func(ids ...string) {
		for _, id := range ids {
			if id != "" && !seen[id] {
				seen[id] = true
				users = append(users, id)
			}
		}
	}
	add(req.RequestedBy, req.RecipientUserID)

	holders := []model.Holder{req.To}
	if req.From != nil {
		holders = append(holders, *req.From)
	}
	for _, h := range holders {
		unitID := h.UnitID()
		if h.Kind == model.HolderPersonnel {
			person, err := store.GetPersonnel(ctx, e.ds, h.ID)
			if err != nil {
				return users, err
			}
			if person == nil {
				continue
			}
			add(person.UserID)
			unitID = person.UnitID
		}
		if unitID == "" {
			continue
		}
		leaders, err := e.authz.LeadersOf(ctx, unitID)
		if err != nil {
			return users, err
		}
		add(leaders...)
	}
	return users, nil
}
