package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/repository"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/service"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
	"go.uber.org/zap"
)

var ctx = context.Background()

const (
	admin   model.Identity = "admin"
	police  model.Identity = "police"
	analyst model.Identity = "analyst"
	outside model.Identity = "outsider"
)

type fixture struct {
	store    *repository.MemoryStore
	registry *service.Registry
	evidence *service.EvidenceService
	query    *service.QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	reg := service.NewRegistry(store, zap.NewNop())
	if err := reg.Initialize(ctx, admin); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for _, id := range []model.Identity{police, analyst} {
		if err := reg.AddAuthorizedUser(ctx, admin, id); err != nil {
			t.Fatalf("AddAuthorizedUser(%s): %v", id, err)
		}
	}
	return &fixture{
		store:    store,
		registry: reg,
		evidence: service.NewEvidenceService(store, reg, zap.NewNop()),
		query:    service.NewQueryService(store, zap.NewNop()),
	}
}

func (f *fixture) historyLen(t *testing.T, itemID string) int {
	t.Helper()
	h, err := f.query.HistoryOf(ctx, itemID)
	if errors.Is(err, model.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return len(h)
}

func TestRegistry_initialize(t *testing.T) {
	reg := service.NewRegistry(repository.NewMemoryStore(), zap.NewNop())

	if err := reg.Initialize(ctx, ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("empty admin: got %v, want ErrInvalidArgument", err)
	}
	if err := reg.Initialize(ctx, admin); err != nil {
		t.Fatal(err)
	}
	if err := reg.Initialize(ctx, admin); err != nil {
		t.Errorf("re-initialize with same admin: %v", err)
	}
	if err := reg.Initialize(ctx, "someone-else"); !errors.Is(err, model.ErrAdminAlreadySet) {
		t.Errorf("re-initialize with other admin: got %v, want ErrAdminAlreadySet", err)
	}
}

func TestRegistry_adminIsImplicitlyAuthorized(t *testing.T) {
	f := newFixture(t)

	ok, err := f.registry.IsAuthorized(ctx, admin)
	if err != nil || !ok {
		t.Errorf("admin should be authorized: %v %v", ok, err)
	}
	users, err := f.registry.AuthorizedUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range users {
		if u == admin {
			t.Error("admin should not be listed unless added explicitly")
		}
	}
}

func TestRegistry_addAuthorizedUser(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		caller  model.Identity
		target  model.Identity
		wantErr error
	}{
		{"admin adds new user", admin, "lawyer", nil},
		{"admin re-adds existing user", admin, police, nil},
		{"authorized non-admin", police, "lawyer", model.ErrPermissionDenied},
		{"stranger", outside, outside, model.ErrPermissionDenied},
		{"empty caller", "", "lawyer", model.ErrPermissionDenied},
		{"empty target", admin, "", model.ErrInvalidArgument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.registry.AddAuthorizedUser(ctx, tc.caller, tc.target)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	users, _ := f.registry.AuthorizedUsers(ctx)
	if len(users) != 3 {
		t.Errorf("expected 3 authorized users, got %v", users)
	}
	if ok, _ := f.registry.IsAuthorized(ctx, outside); ok {
		t.Error("outsider must not become authorized")
	}
}

func TestRegistry_emptyIdentityNeverAuthorized(t *testing.T) {
	f := newFixture(t)
	if err := f.registry.Authorize(ctx, ""); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestEvidence_unauthorizedCallersFailEveryMutation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); err != nil {
		t.Fatal(err)
	}

	ops := map[string]func() error{
		"add": func() error {
			_, err := f.evidence.AddEvidence(ctx, outside, "case-1", "item-2")
			return err
		},
		"checkout": func() error {
			_, err := f.evidence.CheckoutEvidence(ctx, outside, "item-1")
			return err
		},
		"checkin": func() error {
			_, err := f.evidence.CheckinEvidence(ctx, outside, "item-1")
			return err
		},
		"remove": func() error {
			_, err := f.evidence.RemoveEvidence(ctx, outside, "item-1", model.ReasonDestroyed, "")
			return err
		},
		"remove with invalid args": func() error {
			_, err := f.evidence.RemoveEvidence(ctx, outside, "", model.ReasonNone, "")
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, model.ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}

	if n := f.historyLen(t, "item-1"); n != 1 {
		t.Errorf("unauthorized calls must not append history, got %d entries", n)
	}
}

func TestEvidence_addValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.evidence.AddEvidence(ctx, analyst, "case-2", "item-1"); !errors.Is(err, model.ErrDuplicateItem) {
		t.Errorf("duplicate add: got %v, want ErrDuplicateItem", err)
	}
	if _, err := f.evidence.AddEvidence(ctx, police, "", "item-2"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("empty case: got %v, want ErrInvalidArgument", err)
	}
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("empty item: got %v, want ErrInvalidArgument", err)
	}
	if _, err := f.evidence.AddEvidence(ctx, police, "   ", "item-3"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("blank case: got %v, want ErrInvalidArgument", err)
	}
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "\t "); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("blank item: got %v, want ErrInvalidArgument", err)
	}
	if _, err := f.evidence.CheckoutEvidence(ctx, police, "  "); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("checkout blank item: got %v, want ErrInvalidArgument", err)
	}

	it, err := f.query.CurrentState(ctx, "item-1")
	if err != nil {
		t.Fatal(err)
	}
	if it.CaseID != "case-1" || it.Creator != police {
		t.Errorf("duplicate add must not modify the item: %+v", it)
	}
	cases, _ := f.query.ListCases(ctx)
	if len(cases) != 1 {
		t.Errorf("failed adds must not register cases: %v", cases)
	}
}

func TestEvidence_checkoutCheckin(t *testing.T) {
	f := newFixture(t)
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.evidence.CheckinEvidence(ctx, analyst, "item-1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("checkin of CHECKEDIN item: got %v, want ErrInvalidTransition", err)
	}
	if _, err := f.evidence.CheckoutEvidence(ctx, analyst, "item-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.evidence.CheckoutEvidence(ctx, police, "item-1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("double checkout: got %v, want ErrInvalidTransition", err)
	}
	if _, err := f.evidence.CheckoutEvidence(ctx, police, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("checkout of unknown item: got %v, want ErrNotFound", err)
	}
	if _, err := f.evidence.CheckinEvidence(ctx, police, ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("checkin with empty id: got %v, want ErrInvalidArgument", err)
	}

	e, err := f.evidence.CheckinEvidence(ctx, police, "item-1")
	if err != nil {
		t.Fatal(err)
	}
	if e.State != model.StateCheckedIn || e.Actor != police || e.Action != model.ActionCheckin {
		t.Errorf("unexpected entry: %+v", e)
	}
	if n := f.historyLen(t, "item-1"); n != 3 {
		t.Errorf("expected 3 entries, got %d", n)
	}
}

func TestEvidence_removeValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		actor      model.Identity
		item       string
		reason     model.RemovalReason
		releasedTo string
		wantErr    error
	}{
		{"reason NONE", police, "item-1", model.ReasonNone, "", model.ErrInvalidArgument},
		{"unknown reason", police, "item-1", model.RemovalReason("LOST"), "", model.ErrInvalidArgument},
		{"released without owner", police, "item-1", model.ReasonReleased, "   ", model.ErrInvalidArgument},
		{"empty item", police, "", model.ReasonDestroyed, "", model.ErrInvalidArgument},
		{"unknown item", police, "missing", model.ReasonDestroyed, "", model.ErrNotFound},
		{"non-creator", analyst, "item-1", model.ReasonDestroyed, "", model.ErrForbidden},
		{"admin is not the creator", admin, "item-1", model.ReasonDisposed, "", model.ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.evidence.RemoveEvidence(ctx, tc.actor, tc.item, tc.reason, tc.releasedTo)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	it, _ := f.query.CurrentState(ctx, "item-1")
	if it.State != model.StateCheckedIn || it.RemovalReason != model.ReasonNone {
		t.Errorf("rejected removals must leave the item untouched: %+v", it)
	}
	if n := f.historyLen(t, "item-1"); n != 1 {
		t.Errorf("rejected removals must not append history, got %d", n)
	}
}

func TestEvidence_removeFromEitherLiveState(t *testing.T) {
	f := newFixture(t)
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "in"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "out"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.evidence.CheckoutEvidence(ctx, analyst, "out"); err != nil {
		t.Fatal(err)
	}

	e, err := f.evidence.RemoveEvidence(ctx, police, "in", model.ReasonDestroyed, "ignored")
	if err != nil {
		t.Fatalf("remove from CHECKEDIN: %v", err)
	}
	if e.ReleasedTo != "" {
		t.Errorf("releasedTo should be discarded for DESTROYED, got %q", e.ReleasedTo)
	}

	e, err = f.evidence.RemoveEvidence(ctx, police, "out", model.ReasonReleased, "Owner X")
	if err != nil {
		t.Fatalf("remove from CHECKEDOUT: %v", err)
	}
	if e.State != model.StateRemoved || e.RemovalReason != model.ReasonReleased || e.ReleasedTo != "Owner X" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestEvidence_removedIsTerminal(t *testing.T) {
	f := newFixture(t)
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.evidence.RemoveEvidence(ctx, police, "item-1", model.ReasonDisposed, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := f.evidence.CheckoutEvidence(ctx, police, "item-1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("checkout after removal: got %v", err)
	}
	if _, err := f.evidence.CheckinEvidence(ctx, police, "item-1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("checkin after removal: got %v", err)
	}
	if _, err := f.evidence.RemoveEvidence(ctx, police, "item-1", model.ReasonDestroyed, ""); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("second removal: got %v", err)
	}
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); !errors.Is(err, model.ErrDuplicateItem) {
		t.Errorf("re-adding a removed item: got %v, want ErrDuplicateItem", err)
	}
	if n := f.historyLen(t, "item-1"); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestEvidence_roundTripHistory(t *testing.T) {
	f := newFixture(t)
	steps := []func() error{
		func() error { _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); return err },
		func() error { _, err := f.evidence.CheckoutEvidence(ctx, analyst, "item-1"); return err },
		func() error { _, err := f.evidence.CheckinEvidence(ctx, analyst, "item-1"); return err },
		func() error {
			_, err := f.evidence.RemoveEvidence(ctx, police, "item-1", model.ReasonReleased, "Owner X")
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	hist, err := f.query.HistoryOf(ctx, "item-1")
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		state model.State
		actor model.Identity
	}{
		{model.StateCheckedIn, police},
		{model.StateCheckedOut, analyst},
		{model.StateCheckedIn, analyst},
		{model.StateRemoved, police},
	}
	if len(hist) != len(want) {
		t.Fatalf("got %d entries, want %d", len(hist), len(want))
	}
	for i, w := range want {
		if hist[i].State != w.state || hist[i].Actor != w.actor {
			t.Errorf("entry %d: got (%s, %s), want (%s, %s)", i, hist[i].State, hist[i].Actor, w.state, w.actor)
		}
		if i > 0 && hist[i].Timestamp.Before(hist[i-1].Timestamp) {
			t.Errorf("entry %d timestamp goes backwards", i)
		}
	}
	last := hist[3]
	if last.RemovalReason != model.ReasonReleased || last.ReleasedTo != "Owner X" {
		t.Errorf("unexpected final entry: %+v", last)
	}

	res, err := f.query.VerifyLedger(ctx)
	if err != nil || !res.Valid || res.Entries != 4 {
		t.Errorf("VerifyLedger: %+v %v", res, err)
	}
}

func TestQuery_casesAndItems(t *testing.T) {
	f := newFixture(t)
	adds := []struct{ caseID, itemID string }{
		{"c2", "i1"}, {"c1", "i2"}, {"c2", "i3"},
	}
	for _, a := range adds {
		if _, err := f.evidence.AddEvidence(ctx, police, a.caseID, a.itemID); err != nil {
			t.Fatal(err)
		}
	}

	cases, err := f.query.ListCases(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 2 || cases[0] != "c2" || cases[1] != "c1" {
		t.Errorf("ListCases: got %v, want [c2 c1]", cases)
	}

	items, err := f.query.ItemsInCase(ctx, "c2")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ItemID != "i1" || items[1].ItemID != "i3" {
		t.Errorf("ItemsInCase(c2): unexpected %v", items)
	}
	if _, err := f.query.ItemsInCase(ctx, "c9"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown case: got %v", err)
	}
	if _, err := f.query.CurrentState(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("CurrentState of unknown item: got %v", err)
	}
	if _, err := f.query.HistoryOf(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("HistoryOf unknown item: got %v", err)
	}

	ov, err := f.query.LedgerOverview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ov.Entries != 3 || ov.Root == "" {
		t.Errorf("unexpected overview: %+v", ov)
	}
}

// A fresh ledger: admin authorizes P, P adds and moves an item through its
// lifecycle, and an outsider cannot touch it.
func TestScenario_adminAuthorizesPolice(t *testing.T) {
	store := repository.NewMemoryStore()
	reg := service.NewRegistry(store, zap.NewNop())
	ev := service.NewEvidenceService(store, reg, zap.NewNop())
	q := service.NewQueryService(store, zap.NewNop())

	if err := reg.Initialize(ctx, admin); err != nil {
		t.Fatal(err)
	}
	if _, err := ev.AddEvidence(ctx, police, "c-1", "e-1"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("P before authorization: got %v", err)
	}
	if err := reg.AddAuthorizedUser(ctx, admin, police); err != nil {
		t.Fatal(err)
	}
	if _, err := ev.AddEvidence(ctx, police, "c-1", "e-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ev.CheckoutEvidence(ctx, police, "e-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ev.CheckinEvidence(ctx, outside, "e-1"); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("outsider checkin: got %v", err)
	}
	if _, err := ev.RemoveEvidence(ctx, police, "e-1", model.ReasonDestroyed, ""); err != nil {
		t.Fatalf("remove from CHECKEDOUT: %v", err)
	}

	it, err := q.CurrentState(ctx, "e-1")
	if err != nil {
		t.Fatal(err)
	}
	if it.State != model.StateRemoved || it.RemovalReason != model.ReasonDestroyed {
		t.Errorf("unexpected final state: %+v", it)
	}
	hist, _ := q.HistoryOf(ctx, "e-1")
	if len(hist) != 3 {
		t.Errorf("expected 3 entries, got %d", len(hist))
	}
}

func TestEvidence_concurrentCheckoutHasOneWinner(t *testing.T) {
	f := newFixture(t)
	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); err != nil {
		t.Fatal(err)
	}

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.evidence.CheckoutEvidence(ctx, analyst, "item-1")
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case !errors.Is(err, model.ErrInvalidTransition):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one successful checkout, got %d", wins)
	}
	if n := f.historyLen(t, "item-1"); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

type recordingNotifier struct {
	actions []model.Action
}

func (r *recordingNotifier) Notify(_ context.Context, e *historylog.Entry) {
	r.actions = append(r.actions, e.Action)
}

func TestEvidence_notifierSeesAcceptedTransitionsOnly(t *testing.T) {
	f := newFixture(t)
	n := &recordingNotifier{}
	f.evidence.SetNotifier(n)

	if _, err := f.evidence.AddEvidence(ctx, police, "case-1", "item-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.evidence.CheckinEvidence(ctx, police, "item-1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.evidence.CheckoutEvidence(ctx, outside, "item-1"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.evidence.CheckoutEvidence(ctx, analyst, "item-1"); err != nil {
		t.Fatal(err)
	}

	want := []model.Action{model.ActionAdd, model.ActionCheckout}
	if len(n.actions) != len(want) || n.actions[0] != want[0] || n.actions[1] != want[1] {
		t.Errorf("notified %v, want %v", n.actions, want)
	}
}
