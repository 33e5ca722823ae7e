package order

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/logging"
	"ema-bracket-bot/types"
)

type stubExec struct {
	nextID    int
	modified  map[string]decimal.Decimal
	cancelled []string
	submitErr error
	modifyErr error
	cancelErr error
}

func (e *stubExec) SubmitBracketOrder(*types.OrderIntent) (string, error) {
	if e.submitErr != nil {
		return "", e.submitErr
	}
	e.nextID++
	return fmt.Sprintf("ord-%d", e.nextID), nil
}

func (e *stubExec) ModifyOrder(orderID string, newPrice decimal.Decimal) error {
	if e.modifyErr != nil {
		return e.modifyErr
	}
	if e.modified == nil {
		e.modified = make(map[string]decimal.Decimal)
	}
	e.modified[orderID] = newPrice
	return nil
}

func (e *stubExec) CancelOrder(orderID string) error {
	if e.cancelErr != nil {
		return e.cancelErr
	}
	e.cancelled = append(e.cancelled, orderID)
	return nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

var barTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func submitTestBracket(t *testing.T, m *Manager) *types.OrderIntent {
	t.Helper()
	intent := m.BuildIntent("EURUSD", types.Buy, 50_000,
		d("1.1005"), d("1.0910"), d("1.1100"), barTime, time.Minute)
	if err := m.SubmitBracket(intent); err != nil {
		t.Fatalf("SubmitBracket: %v", err)
	}
	return intent
}

func TestBuildIntentSetsExpiry(t *testing.T) {
	m := NewManager(&stubExec{}, logging.Nop{})
	intent := m.BuildIntent("EURUSD", types.Sell, 10_000,
		d("1.0945"), d("1.1080"), d("1.0810"), barTime, time.Minute)
	if intent.TimeInForce != "GTD" {
		t.Errorf("time in force = %s, want GTD", intent.TimeInForce)
	}
	if want := barTime.Add(time.Minute); !intent.ExpireAt.Equal(want) {
		t.Errorf("expire at = %s, want %s", intent.ExpireAt, want)
	}
}

func TestSubmitBracketRegistersLegs(t *testing.T) {
	m := NewManager(&stubExec{}, logging.Nop{})
	submitTestBracket(t, m)

	legs := m.WorkingLegs()
	if len(legs) != 3 {
		t.Fatalf("working legs = %d, want 3", len(legs))
	}
	wantRoles := []types.LegRole{types.RoleEntry, types.RoleStopLoss, types.RoleTakeProfit}
	for i, leg := range legs {
		if leg.Role != wantRoles[i] {
			t.Errorf("leg %d role = %s, want %s", i, leg.Role, wantRoles[i])
		}
	}
	if legs[0].Side != types.Buy {
		t.Errorf("entry side = %s, want Buy", legs[0].Side)
	}
	if legs[1].Side != types.Sell || legs[2].Side != types.Sell {
		t.Error("protective legs must carry the closing side")
	}
}

func TestSubmitBracketZeroQuantity(t *testing.T) {
	exec := &stubExec{}
	m := NewManager(exec, logging.Nop{})
	intent := m.BuildIntent("EURUSD", types.Buy, 0,
		d("1.1005"), d("1.0910"), d("1.1100"), barTime, time.Minute)
	err := m.SubmitBracket(intent)
	if !errors.Is(err, ErrZeroQuantity) {
		t.Fatalf("err = %v, want ErrZeroQuantity", err)
	}
	if exec.nextID != 0 {
		t.Error("a zero-quantity intent must never reach the venue")
	}
	if m.WorkingOrderCount() != 0 {
		t.Errorf("working orders = %d, want 0", m.WorkingOrderCount())
	}
}

func TestSubmitBracketRejected(t *testing.T) {
	exec := &stubExec{submitErr: errors.New("insufficient margin")}
	m := NewManager(exec, logging.Nop{})
	intent := m.BuildIntent("EURUSD", types.Buy, 50_000,
		d("1.1005"), d("1.0910"), d("1.1100"), barTime, time.Minute)
	if err := m.SubmitBracket(intent); err == nil {
		t.Fatal("expected rejection error")
	}
	if m.WorkingOrderCount() != 0 {
		t.Errorf("working orders = %d after rejection, want 0", m.WorkingOrderCount())
	}
}

func TestExpireStaleCancelsUnfilledEntry(t *testing.T) {
	exec := &stubExec{}
	m := NewManager(exec, logging.Nop{})
	intent := submitTestBracket(t, m)

	m.ExpireStale(intent.ExpireAt.Add(-time.Second))
	if len(exec.cancelled) != 0 {
		t.Fatal("entry cancelled before its expiry")
	}

	// The bar opening at the expiry could still fill the entry.
	m.ExpireStale(intent.ExpireAt)
	if len(exec.cancelled) != 0 {
		t.Fatal("entry cancelled while its final bar could still fill it")
	}

	m.ExpireStale(intent.ExpireAt.Add(time.Second))
	if len(exec.cancelled) != 1 || exec.cancelled[0] != "ord-1" {
		t.Fatalf("cancelled = %v, want the entry ord-1", exec.cancelled)
	}
	if m.WorkingOrderCount() != 0 {
		t.Errorf("working orders = %d after expiry, want 0", m.WorkingOrderCount())
	}
}

func TestExpireStaleIgnoresFilledEntry(t *testing.T) {
	exec := &stubExec{}
	m := NewManager(exec, logging.Nop{})
	intent := submitTestBracket(t, m)

	m.OnEntryFilled("ord-1")
	m.ExpireStale(intent.ExpireAt.Add(time.Hour))

	if len(exec.cancelled) != 0 {
		t.Fatal("protective legs of a filled entry must survive the expiry sweep")
	}
	if m.WorkingOrderCount() != 2 {
		t.Errorf("working orders = %d, want the stop and take-profit legs", m.WorkingOrderCount())
	}
}

func TestReconcileMarksEntryFilled(t *testing.T) {
	m := NewManager(&stubExec{}, logging.Nop{})
	submitTestBracket(t, m)

	m.Reconcile(false)
	if m.WorkingOrderCount() != 2 {
		t.Fatalf("working orders = %d, want the protective legs only", m.WorkingOrderCount())
	}
	for _, leg := range m.WorkingLegs() {
		if leg.Role == types.RoleEntry {
			t.Error("an open position means the entry is no longer working")
		}
	}
}

func TestReconcileClearsFinishedBracket(t *testing.T) {
	m := NewManager(&stubExec{}, logging.Nop{})
	submitTestBracket(t, m)
	m.Reconcile(false)

	m.Reconcile(true)
	if m.WorkingOrderCount() != 0 {
		t.Errorf("working orders = %d after the position closed, want 0", m.WorkingOrderCount())
	}
}

func TestReconcileKeepsRestingEntryWhileFlat(t *testing.T) {
	m := NewManager(&stubExec{}, logging.Nop{})
	submitTestBracket(t, m)

	m.Reconcile(true)
	if m.WorkingOrderCount() != 3 {
		t.Errorf("working orders = %d, an untriggered entry must survive", m.WorkingOrderCount())
	}
}

func TestOnLegClosedDropsSibling(t *testing.T) {
	m := NewManager(&stubExec{}, logging.Nop{})
	submitTestBracket(t, m)
	m.OnEntryFilled("ord-1")

	m.OnLegClosed("ord-1-sl")
	if m.WorkingOrderCount() != 0 {
		t.Errorf("working orders = %d, the take-profit must fall with its stop", m.WorkingOrderCount())
	}
}

func TestOnLegClosedUnknownOrder(t *testing.T) {
	m := NewManager(&stubExec{}, logging.Nop{})
	submitTestBracket(t, m)
	m.OnLegClosed("not-ours")
	if m.WorkingOrderCount() != 3 {
		t.Errorf("working orders = %d, unknown closures must not touch the registry", m.WorkingOrderCount())
	}
}

func TestTrailStopUpdatesRegistryAfterAck(t *testing.T) {
	exec := &stubExec{}
	m := NewManager(exec, logging.Nop{})
	submitTestBracket(t, m)
	stop := m.WorkingLegs()[1]

	if err := m.TrailStop(stop, d("1.0950")); err != nil {
		t.Fatalf("TrailStop: %v", err)
	}
	if !stop.Price.Equal(d("1.0950")) {
		t.Errorf("stop price = %s, want 1.0950", stop.Price)
	}
	if got := exec.modified["ord-1-sl"]; !got.Equal(d("1.0950")) {
		t.Errorf("venue saw price %s, want 1.0950", got)
	}
}

func TestTrailStopKeepsPriceOnRejection(t *testing.T) {
	exec := &stubExec{modifyErr: errors.New("too close to market")}
	m := NewManager(exec, logging.Nop{})
	submitTestBracket(t, m)
	stop := m.WorkingLegs()[1]

	if err := m.TrailStop(stop, d("1.0950")); err == nil {
		t.Fatal("expected modification error")
	}
	if !stop.Price.Equal(d("1.0910")) {
		t.Errorf("stop price = %s, a rejected modification must leave it untouched", stop.Price)
	}
}

func TestTrailStopRefusesNonStopLegs(t *testing.T) {
	exec := &stubExec{}
	m := NewManager(exec, logging.Nop{})
	submitTestBracket(t, m)

	for _, i := range []int{0, 2} {
		if err := m.TrailStop(m.WorkingLegs()[i], d("1.0950")); err == nil {
			t.Errorf("leg %d: trailing a %s leg must fail", i, m.WorkingLegs()[i].Role)
		}
	}
	if len(exec.modified) != 0 {
		t.Error("no modification may reach the venue for non-stop legs")
	}
}

func TestCancelAllClearsRegistry(t *testing.T) {
	exec := &stubExec{}
	m := NewManager(exec, logging.Nop{})
	submitTestBracket(t, m)

	m.CancelAll()
	if len(exec.cancelled) != 3 {
		t.Errorf("cancelled %d orders, want 3", len(exec.cancelled))
	}
	if m.WorkingOrderCount() != 0 {
		t.Errorf("working orders = %d, want 0", m.WorkingOrderCount())
	}
}
