package transfer

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/authz"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/events"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// backends runs fn once per document store implementation.
func backends(t *testing.T, fn func(t *testing.T, ds docstore.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, docstore.NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, db.NewTestDocuments(t)) })
}

type fixture struct {
	ds  docstore.Store
	eng *Engine

	bn, coA, coB, plA1 *model.Unit
	p1                 *model.Personnel
	e1                 *model.Equipment

	admin, leader, user, recipient *model.Principal
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newFixture(t *testing.T, ds docstore.Store, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{ds: ds}

	mkUnit := func(typ model.UnitType, parent, name string) *model.Unit {
		u, err := store.CreateUnit(ctx, ds, typ, parent, name, "")
		if err != nil {
			t.Fatalf("CreateUnit(%s): %v", name, err)
		}
		return u
	}
	mkUser := func(name string, roles ...string) *model.Principal {
		u, err := store.CreateUser(ctx, ds, name, "hash", roles...)
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", name, err)
		}
		return &model.Principal{UserID: u.ID, Username: name, Role: model.HighestRole(u.Roles)}
	}

	f.bn = mkUnit(model.UnitTypeBattalion, "", "Battalion")
	f.coA = mkUnit(model.UnitTypeCompany, f.bn.ID, "CompanyA")
	f.coB = mkUnit(model.UnitTypeCompany, f.bn.ID, "CompanyB")
	f.plA1 = mkUnit(model.UnitTypePlatoon, f.coA.ID, "PlatoonA1")

	f.admin = mkUser("admin", model.RoleAdmin)
	f.leader = mkUser("leader")
	f.user = mkUser("user")
	f.recipient = mkUser("recipient")
	if _, err := store.CreateScopeGrant(ctx, ds, f.leader.UserID, f.coA.ID, f.admin.UserID); err != nil {
		t.Fatalf("CreateScopeGrant: %v", err)
	}
	f.leader.Role = model.RoleLeader

	var err error
	f.p1, err = store.CreatePersonnel(ctx, ds, store.PersonnelInput{
		FirstName: "Ana", LastName: "Novak", UnitID: f.plA1.ID, UserID: f.recipient.UserID,
	})
	if err != nil {
		t.Fatalf("CreatePersonnel: %v", err)
	}
	f.e1, err = store.CreateEquipment(ctx, ds, store.EquipmentInput{Name: "Radio", SerialNumber: "E1"})
	if err != nil {
		t.Fatalf("CreateEquipment: %v", err)
	}

	f.eng = New(ds, authz.New(ds), opts...)
	return f
}

func (f *fixture) initiate(t *testing.T, to model.Holder) *model.TransferRequest {
	t.Helper()
	req, err := f.eng.Initiate(context.Background(), f.user, InitiateInput{EquipmentID: f.e1.ID, To: to})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return req
}

func (f *fixture) process(t *testing.T, p *model.Principal, id string, action model.TransferAction) *model.TransferRequest {
	t.Helper()
	req, err := f.eng.Process(context.Background(), p, id, action)
	if err != nil {
		t.Fatalf("Process(%s): %v", action, err)
	}
	return req
}

func (f *fixture) equipmentStatus(t *testing.T) string {
	t.Helper()
	e, err := store.GetEquipment(context.Background(), f.ds, f.e1.ID)
	if err != nil || e == nil {
		t.Fatalf("GetEquipment: %v", err)
	}
	return e.Status
}

// activeRecords counts active custody records straight from the store.
func activeRecords(t *testing.T, ds docstore.Store, equipmentID string) []model.CustodyRecord {
	t.Helper()
	list, err := docstore.FindAll[model.CustodyRecord](context.Background(), ds, docstore.Custody,
		docstore.Eq("equipment_id", equipmentID), docstore.Missing("returned_at"))
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	return list
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func TestFirstAssignment(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)

		req := f.initiate(t, model.PersonnelHolder(f.p1.ID))
		if req.Status != model.TransferPending || req.From != nil {
			t.Fatalf("unexpected request %+v", req)
		}
		if req.ToName != "Ana Novak" || req.EquipmentName != "Radio" {
			t.Errorf("expected snapshots, got to=%q equipment=%q", req.ToName, req.EquipmentName)
		}
		if got := f.equipmentStatus(t); got != model.StatusPendingTransfer {
			t.Fatalf("expected lock, got %q", got)
		}

		done := f.process(t, f.admin, req.ID, model.ActionApprove)
		if done.Status != model.TransferApproved || done.ProcessedBy != f.admin.UserID || done.ProcessedAt == nil {
			t.Errorf("unexpected resolved request %+v", done)
		}

		active := activeRecords(t, ds, f.e1.ID)
		if len(active) != 1 {
			t.Fatalf("expected 1 active record, got %d", len(active))
		}
		if active[0].Holder != model.PersonnelHolder(f.p1.ID) || active[0].ReturnedAt != nil {
			t.Errorf("unexpected record %+v", active[0])
		}
		if got := f.equipmentStatus(t); got != model.StatusAssigned {
			t.Errorf("expected assigned, got %q", got)
		}
	})
}

func TestCustodyHandover(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		ctx := context.Background()

		first := f.initiate(t, model.UnitHolder(f.coB.ID))
		f.process(t, f.admin, first.ID, model.ActionApprove)
		r0 := activeRecords(t, ds, f.e1.ID)[0]

		second := f.initiate(t, model.PersonnelHolder(f.p1.ID))
		if second.From == nil || *second.From != model.UnitHolder(f.coB.ID) || second.FromName != "CompanyB" {
			t.Fatalf("expected holder snapshot, got %+v", second)
		}
		if second.PriorStatus != model.StatusAssigned {
			t.Errorf("expected prior status assigned, got %q", second.PriorStatus)
		}
		if n := len(activeRecords(t, ds, f.e1.ID)); n != 1 {
			t.Fatalf("expected 1 active record while pending, got %d", n)
		}

		f.process(t, f.admin, second.ID, model.ActionApprove)

		history, err := store.CustodyHistory(ctx, ds, f.e1.ID)
		if err != nil {
			t.Fatalf("CustodyHistory: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 records, got %d", len(history))
		}
		for _, rec := range history {
			switch rec.ID {
			case r0.ID:
				if rec.ReturnedAt == nil {
					t.Error("expected R0 to be closed")
				}
			default:
				if rec.ReturnedAt != nil || rec.Holder != model.PersonnelHolder(f.p1.ID) || rec.RequestID != second.ID {
					t.Errorf("unexpected R1 %+v", rec)
				}
			}
		}
		if n := len(activeRecords(t, ds, f.e1.ID)); n != 1 {
			t.Errorf("expected 1 active record, got %d", n)
		}
	})
}

func TestRejectRestoresStatus(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		ctx := context.Background()

		if _, err := store.UpdateEquipment(ctx, ds, f.e1.ID, store.EquipmentInput{Status: model.StatusInMaintenance}); err != nil {
			t.Fatal(err)
		}
		req := f.initiate(t, model.UnitHolder(f.coA.ID))
		done := f.process(t, f.admin, req.ID, model.ActionReject)
		if done.Status != model.TransferRejected {
			t.Errorf("expected rejected, got %q", done.Status)
		}
		if got := f.equipmentStatus(t); got != model.StatusInMaintenance {
			t.Errorf("expected in-maintenance, got %q", got)
		}
		if n := len(activeRecords(t, ds, f.e1.ID)); n != 0 {
			t.Errorf("reject must not touch custody, got %d active", n)
		}
	})
}

func TestRejectFallsBackToServiceable(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		ctx := context.Background()

		req := f.initiate(t, model.UnitHolder(f.coA.ID))

		// Corrupt the remembered status.
		stored, _ := store.GetTransfer(ctx, ds, req.ID)
		stored.PriorStatus = "lost-in-transit"
		if err := ds.Commit(ctx, docstore.NewBatch().Update(docstore.Transfers, stored.ID, stored)); err != nil {
			t.Fatal(err)
		}

		f.process(t, f.admin, req.ID, model.ActionReject)
		if got := f.equipmentStatus(t); got != model.StatusServiceable {
			t.Errorf("expected serviceable, got %q", got)
		}
	})
}

func TestConcurrentApprove(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		req := f.initiate(t, model.PersonnelHolder(f.p1.ID))

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.eng.Process(context.Background(), f.admin, req.ID, model.ActionApprove)
			}()
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case !apperr.Is(err, apperr.KindFailedPrecondition):
				t.Errorf("unexpected error %v", err)
			}
		}
		if ok != 1 {
			t.Fatalf("expected exactly 1 success, got %d", ok)
		}

		active := activeRecords(t, ds, f.e1.ID)
		if len(active) != 1 || active[0].Holder != model.PersonnelHolder(f.p1.ID) {
			t.Errorf("unexpected ledger %+v", active)
		}
		if got := f.equipmentStatus(t); got != model.StatusAssigned {
			t.Errorf("expected assigned, got %q", got)
		}
	})
}

func TestConcurrentApproveAndReject(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		req := f.initiate(t, model.UnitHolder(f.coA.ID))

		var wg sync.WaitGroup
		var approveErr, rejectErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = f.eng.Process(context.Background(), f.admin, req.ID, model.ActionApprove)
		}()
		go func() {
			defer wg.Done()
			_, rejectErr = f.eng.Process(context.Background(), f.leader, req.ID, model.ActionReject)
		}()
		wg.Wait()

		if (approveErr == nil) == (rejectErr == nil) {
			t.Fatalf("expected exactly one winner, got approve=%v reject=%v", approveErr, rejectErr)
		}

		got, _ := store.GetTransfer(context.Background(), ds, req.ID)
		status := f.equipmentStatus(t)
		active := activeRecords(t, ds, f.e1.ID)
		if approveErr == nil {
			if got.Status != model.TransferApproved || status != model.StatusAssigned || len(active) != 1 {
				t.Errorf("inconsistent approve: %s %s %d", got.Status, status, len(active))
			}
		} else {
			if got.Status != model.TransferRejected || status != model.StatusServiceable || len(active) != 0 {
				t.Errorf("inconsistent reject: %s %s %d", got.Status, status, len(active))
			}
		}
	})
}

func TestConcurrentInitiate(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.eng.Initiate(context.Background(), f.user, InitiateInput{
					EquipmentID: f.e1.ID,
					To:          model.UnitHolder(f.coA.ID),
				})
			}()
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case !apperr.Is(err, apperr.KindFailedPrecondition):
				t.Errorf("unexpected error %v", err)
			}
		}
		if ok != 1 {
			t.Fatalf("expected exactly 1 success, got %d", ok)
		}

		pending, _ := store.ListTransfers(context.Background(), ds, store.TransferFilter{Status: model.TransferPending})
		if len(pending) != 1 {
			t.Errorf("expected 1 pending request, got %d", len(pending))
		}
	})
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t, docstore.NewMemory())
	ctx := context.Background()
	to := model.UnitHolder(f.coA.ID)

	_, err := f.eng.Initiate(ctx, nil, InitiateInput{EquipmentID: f.e1.ID, To: to})
	wantKind(t, err, apperr.KindUnauthenticated)

	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{To: to})
	wantKind(t, err, apperr.KindInvalidArgument)

	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: f.e1.ID})
	wantKind(t, err, apperr.KindInvalidArgument)

	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: "missing", To: to})
	wantKind(t, err, apperr.KindNotFound)

	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: f.e1.ID, To: model.UnitHolder("missing")})
	wantKind(t, err, apperr.KindNotFound)

	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: f.e1.ID, To: model.PersonnelHolder("missing")})
	wantKind(t, err, apperr.KindNotFound)

	// Nothing was locked by the failed attempts.
	if got := f.equipmentStatus(t); got != model.StatusServiceable {
		t.Fatalf("expected serviceable, got %q", got)
	}

	req := f.initiate(t, to)
	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: f.e1.ID, To: model.UnitHolder(f.coB.ID)})
	wantKind(t, err, apperr.KindFailedPrecondition)

	f.process(t, f.admin, req.ID, model.ActionApprove)
	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: f.e1.ID, To: to})
	wantKind(t, err, apperr.KindFailedPrecondition)

	lost, _ := store.CreateEquipment(ctx, f.ds, store.EquipmentInput{Name: "Lost", Status: model.StatusMissing})
	_, err = f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: lost.ID, To: to})
	wantKind(t, err, apperr.KindFailedPrecondition)
}

func TestProcessValidation(t *testing.T) {
	f := newFixture(t, docstore.NewMemory())
	ctx := context.Background()
	req := f.initiate(t, model.UnitHolder(f.coA.ID))

	_, err := f.eng.Process(ctx, nil, req.ID, model.ActionApprove)
	wantKind(t, err, apperr.KindUnauthenticated)

	_, err = f.eng.Process(ctx, f.admin, req.ID, "archive")
	wantKind(t, err, apperr.KindInvalidArgument)

	_, err = f.eng.Process(ctx, f.admin, "", model.ActionApprove)
	wantKind(t, err, apperr.KindInvalidArgument)

	_, err = f.eng.Process(ctx, f.admin, "missing", model.ActionApprove)
	wantKind(t, err, apperr.KindNotFound)

	f.process(t, f.admin, req.ID, model.ActionReject)
	_, err = f.eng.Process(ctx, f.admin, req.ID, model.ActionApprove)
	wantKind(t, err, apperr.KindFailedPrecondition)
}

func TestProcessAuthorization(t *testing.T) {
	f := newFixture(t, docstore.NewMemory())
	ctx := context.Background()

	// Unheld equipment going to CompanyB: outside the leader's scope.
	toB := f.initiate(t, model.UnitHolder(f.coB.ID))
	_, err := f.eng.Process(ctx, f.user, toB.ID, model.ActionApprove)
	wantKind(t, err, apperr.KindPermissionDenied)
	_, err = f.eng.Process(ctx, f.leader, toB.ID, model.ActionApprove)
	wantKind(t, err, apperr.KindPermissionDenied)
	f.process(t, f.admin, toB.ID, model.ActionReject)

	// A person in the leader's platoon: the leader manages the destination.
	toP1 := f.initiate(t, model.PersonnelHolder(f.p1.ID))
	f.process(t, f.leader, toP1.ID, model.ActionApprove)

	// Held in PlatoonA1 via P1, going to CompanyB: the leader manages the
	// current holder.
	away := f.initiate(t, model.UnitHolder(f.coB.ID))
	f.process(t, f.leader, away.ID, model.ActionApprove)
}

func TestRecipientApproval(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds, WithRecipientApproval(true))
		ctx := context.Background()

		req := f.initiate(t, model.PersonnelHolder(f.p1.ID))
		if !req.RecipientApprovalRequired || req.RecipientUserID != f.recipient.UserID {
			t.Fatalf("expected recipient approval, got %+v", req)
		}

		_, err := f.eng.Process(ctx, f.admin, req.ID, model.ActionApprove)
		wantKind(t, err, apperr.KindFailedPrecondition)

		_, err = f.eng.ConfirmReceipt(ctx, f.user, req.ID)
		wantKind(t, err, apperr.KindPermissionDenied)

		confirmed, err := f.eng.ConfirmReceipt(ctx, f.recipient, req.ID)
		if err != nil {
			t.Fatalf("ConfirmReceipt: %v", err)
		}
		if !confirmed.RecipientApproved || confirmed.RecipientApprovedAt == nil {
			t.Errorf("expected confirmation, got %+v", confirmed)
		}

		f.process(t, f.admin, req.ID, model.ActionApprove)

		_, err = f.eng.ConfirmReceipt(ctx, f.recipient, req.ID)
		wantKind(t, err, apperr.KindFailedPrecondition)
	})
}

func TestRecipientApprovalRejectWithoutConfirmation(t *testing.T) {
	f := newFixture(t, docstore.NewMemory(), WithRecipientApproval(true))
	ctx := context.Background()

	req := f.initiate(t, model.PersonnelHolder(f.p1.ID))
	f.process(t, f.admin, req.ID, model.ActionReject)

	// Unit destinations never need confirmation.
	toUnit := f.initiate(t, model.UnitHolder(f.coA.ID))
	if toUnit.RecipientApprovalRequired {
		t.Error("unit transfers must not need recipient approval")
	}
	_, err := f.eng.ConfirmReceipt(ctx, f.recipient, toUnit.ID)
	wantKind(t, err, apperr.KindFailedPrecondition)
}

func TestIncoming(t *testing.T) {
	f := newFixture(t, docstore.NewMemory())
	ctx := context.Background()

	toP1 := f.initiate(t, model.PersonnelHolder(f.p1.ID))
	other, _ := store.CreateEquipment(ctx, f.ds, store.EquipmentInput{Name: "Generator"})
	toB, err := f.eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: other.ID, To: model.UnitHolder(f.coB.ID)})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	ids := func(p *model.Principal) []string {
		t.Helper()
		list, err := f.eng.Incoming(ctx, p)
		if err != nil {
			t.Fatalf("Incoming: %v", err)
		}
		var out []string
		for _, r := range list {
			out = append(out, r.ID)
		}
		slices.Sort(out)
		return out
	}

	if got := ids(f.recipient); !slices.Equal(got, []string{toP1.ID}) {
		t.Errorf("recipient: unexpected %v", got)
	}
	if got := ids(f.leader); !slices.Equal(got, []string{toP1.ID}) {
		t.Errorf("leader: unexpected %v", got)
	}
	if got := ids(f.user); len(got) != 0 {
		t.Errorf("user: unexpected %v", got)
	}
	want := []string{toP1.ID, toB.ID}
	slices.Sort(want)
	if got := ids(f.admin); !slices.Equal(got, want) {
		t.Errorf("admin: unexpected %v", got)
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t, docstore.NewMemory())
	ctx := context.Background()

	req := f.initiate(t, model.UnitHolder(f.coA.ID))
	f.process(t, f.admin, req.ID, model.ActionReject)
	f.initiate(t, model.UnitHolder(f.coB.ID))

	pending, err := f.eng.List(ctx, f.user, store.TransferFilter{Status: model.TransferPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending, got %d", len(pending))
	}

	all, _ := f.eng.List(ctx, f.user, store.TransferFilter{EquipmentID: f.e1.ID})
	if len(all) != 2 {
		t.Errorf("expected 2 for equipment, got %d", len(all))
	}

	_, err = f.eng.List(ctx, f.user, store.TransferFilter{Status: "cancelled"})
	wantKind(t, err, apperr.KindInvalidArgument)

	got, err := f.eng.Get(ctx, f.user, req.ID)
	if err != nil || got.Status != model.TransferRejected {
		t.Errorf("Get: %+v %v", got, err)
	}
	_, err = f.eng.Get(ctx, f.user, "missing")
	wantKind(t, err, apperr.KindNotFound)
}

func TestEventsAudience(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, docstore.NewMemory(), WithNotifier(rec))

	req := f.initiate(t, model.PersonnelHolder(f.p1.ID))
	f.process(t, f.leader, req.ID, model.ActionApprove)

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	created, approved := rec.events[0], rec.events[1]
	if created.Type != events.TransferCreated || approved.Type != events.TransferApproved {
		t.Errorf("unexpected event types %q, %q", created.Type, approved.Type)
	}
	for _, who := range []string{f.user.UserID, f.recipient.UserID, f.leader.UserID} {
		if !slices.Contains(created.Audience, who) {
			t.Errorf("expected %s in audience %v", who, created.Audience)
		}
	}
	if slices.Contains(created.Audience, f.admin.UserID) {
		t.Error("admins are not listed; the hub sends them everything")
	}
}

// interleaved runs before once, just ahead of the first commit made through
// it, to stand in for a concurrent writer.
type interleaved struct {
	docstore.Store
	once   sync.Once
	before func()
}

func (s *interleaved) Commit(ctx context.Context, b *docstore.Batch) error {
	s.once.Do(s.before)
	return s.Store.Commit(ctx, b)
}

func TestApproveToDeletedUnit(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		ctx := context.Background()
		req := f.initiate(t, model.UnitHolder(f.coB.ID))

		wantKind(t, store.DeleteUnit(ctx, ds, f.coB.ID), apperr.KindFailedPrecondition)

		// Removed behind the repository's back.
		if err := ds.Commit(ctx, docstore.NewBatch().Delete(docstore.Units, f.coB.ID)); err != nil {
			t.Fatal(err)
		}
		_, err := f.eng.Process(ctx, f.admin, req.ID, model.ActionApprove)
		wantKind(t, err, apperr.KindFailedPrecondition)
		if active := activeRecords(t, ds, f.e1.ID); len(active) != 0 {
			t.Fatalf("custody assigned to a deleted unit: %+v", active)
		}

		f.process(t, f.admin, req.ID, model.ActionReject)
		if got := f.equipmentStatus(t); got != model.StatusServiceable {
			t.Errorf("expected serviceable after reject, got %q", got)
		}
	})
}

func TestDestinationDeletedDuringApprove(t *testing.T) {
	tests := []struct {
		name string
		to   func(f *fixture) model.Holder
		del  func(f *fixture) *docstore.Batch
	}{
		{
			name: "unit",
			to:   func(f *fixture) model.Holder { return model.UnitHolder(f.coB.ID) },
			del:  func(f *fixture) *docstore.Batch { return docstore.NewBatch().Delete(docstore.Units, f.coB.ID) },
		},
		{
			name: "personnel",
			to:   func(f *fixture) model.Holder { return model.PersonnelHolder(f.p1.ID) },
			del:  func(f *fixture) *docstore.Batch { return docstore.NewBatch().Delete(docstore.Personnel, f.p1.ID) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends(t, func(t *testing.T, ds docstore.Store) {
				f := newFixture(t, ds)
				ctx := context.Background()
				req := f.initiate(t, tt.to(f))

				racy := &interleaved{Store: ds, before: func() {
					if err := ds.Commit(ctx, tt.del(f)); err != nil {
						t.Errorf("deleting destination: %v", err)
					}
				}}
				eng := New(racy, authz.New(ds))

				_, err := eng.Process(ctx, f.admin, req.ID, model.ActionApprove)
				wantKind(t, err, apperr.KindFailedPrecondition)
				if active := activeRecords(t, ds, f.e1.ID); len(active) != 0 {
					t.Errorf("custody assigned to a deleted holder: %+v", active)
				}
				got, _ := store.GetTransfer(ctx, ds, req.ID)
				if got.Status != model.TransferPending {
					t.Errorf("expected request to stay pending, got %q", got.Status)
				}
			})
		})
	}
}

func TestDestinationDeletedDuringInitiate(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		ctx := context.Background()

		racy := &interleaved{Store: ds, before: func() {
			if err := ds.Commit(ctx, docstore.NewBatch().Delete(docstore.Units, f.coB.ID)); err != nil {
				t.Errorf("deleting destination: %v", err)
			}
		}}
		eng := New(racy, authz.New(ds))

		_, err := eng.Initiate(ctx, f.user, InitiateInput{EquipmentID: f.e1.ID, To: model.UnitHolder(f.coB.ID)})
		wantKind(t, err, apperr.KindFailedPrecondition)
		if got := f.equipmentStatus(t); got != model.StatusServiceable {
			t.Errorf("expected equipment unlocked, got %q", got)
		}
	})
}

func TestConcurrentEquipmentEditsSurvive(t *testing.T) {
	backends(t, func(t *testing.T, ds docstore.Store) {
		f := newFixture(t, ds)
		ctx := context.Background()
		to := model.UnitHolder(f.coA.ID)

		rename := &interleaved{Store: ds, before: func() {
			if _, err := store.UpdateEquipment(ctx, ds, f.e1.ID, store.EquipmentInput{Name: "Radio PRC-152"}); err != nil {
				t.Errorf("UpdateEquipment: %v", err)
			}
		}}
		_, err := New(rename, authz.New(ds)).Initiate(ctx, f.user, InitiateInput{EquipmentID: f.e1.ID, To: to})
		wantKind(t, err, apperr.KindFailedPrecondition)

		req := f.initiate(t, to)
		photo := &interleaved{Store: ds, before: func() {
			if err := store.SetEquipmentHasPhoto(ctx, ds, f.e1.ID, true); err != nil {
				t.Errorf("SetEquipmentHasPhoto: %v", err)
			}
		}}
		_, err = New(photo, authz.New(ds)).Process(ctx, f.admin, req.ID, model.ActionApprove)
		wantKind(t, err, apperr.KindFailedPrecondition)

		f.process(t, f.admin, req.ID, model.ActionApprove)
		e, _ := store.GetEquipment(ctx, ds, f.e1.ID)
		if e.Name != "Radio PRC-152" || !e.HasPhoto || e.Status != model.StatusAssigned {
			t.Errorf("concurrent edits lost: name=%q photo=%v status=%q", e.Name, e.HasPhoto, e.Status)
		}
	})
}

func TestProcessResolvedRequestNeedsPermission(t *testing.T) {
	f := newFixture(t, docstore.NewMemory())
	ctx := context.Background()

	req := f.initiate(t, model.UnitHolder(f.coB.ID))
	f.process(t, f.admin, req.ID, model.ActionReject)

	_, err := f.eng.Process(ctx, f.user, req.ID, model.ActionApprove)
	wantKind(t, err, apperr.KindPermissionDenied)
	_, err = f.eng.Process(ctx, f.admin, req.ID, model.ActionApprove)
	wantKind(t, err, apperr.KindFailedPrecondition)
}

func TestIncomingIncludesManagedSource(t *testing.T) {
	f := newFixture(t, docstore.NewMemory())
	ctx := context.Background()

	// Held by P1 in the leader's company, heading outside it.
	held := f.initiate(t, model.PersonnelHolder(f.p1.ID))
	f.process(t, f.admin, held.ID, model.ActionApprove)
	away := f.initiate(t, model.UnitHolder(f.coB.ID))

	list, err := f.eng.Incoming(ctx, f.leader)
	if err != nil {
		t.Fatalf("Incoming: %v", err)
	}
	if len(list) != 1 || list[0].ID != away.ID {
		t.Errorf("expected the outgoing request, got %+v", list)
	}
	f.process(t, f.leader, away.ID, model.ActionApprove)
}
