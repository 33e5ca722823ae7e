package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func simBar(minute int, high, low, close string) types.Bar {
	return types.Bar{
		Symbol:    "XAUUSD",
		Open:      d(close),
		High:      d(high),
		Low:       d(low),
		Close:     d(close),
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func submitLong(t *testing.T, b *PaperBroker, expire time.Time) string {
	t.Helper()
	id, err := b.SubmitBracketOrder(&types.OrderIntent{
		Symbol:          "XAUUSD",
		Side:            types.Buy,
		Quantity:        14,
		EntryPrice:      d("102"),
		StopLossPrice:   d("95"),
		TakeProfitPrice: d("109"),
		ExpireAt:        expire,
	})
	if err != nil {
		t.Fatalf("SubmitBracketOrder: %v", err)
	}
	return id
}

func TestEntryTriggersOnTouch(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	submitLong(t, b, t0.Add(time.Hour))

	if events := b.Advance(simBar(0, "101", "99", "100")); len(events) != 0 {
		t.Fatalf("events below the trigger: %v", events)
	}
	events := b.Advance(simBar(1, "102", "100", "101"))
	if len(events) != 1 || events[0].Kind != EventEntryFilled {
		t.Fatalf("events = %v, want a single fill on first touch", events)
	}
	if !events[0].Price.Equal(d("102")) {
		t.Errorf("fill price = %s, want the trigger 102", events[0].Price)
	}
	if flat, _ := b.IsFlat(); flat {
		t.Error("broker should hold a position after the fill")
	}
}

func TestStopTestedBeforeTakeProfit(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	submitLong(t, b, t0.Add(time.Hour))
	b.Advance(simBar(0, "102", "100", "101"))

	// The bar spans both protective prices; the stop wins.
	events := b.Advance(simBar(1, "110", "94", "100"))
	if len(events) != 1 || events[0].Kind != EventStopHit {
		t.Fatalf("events = %v, want the stop to resolve the conflicted bar", events)
	}
	equity, _ := b.FreeEquity()
	if !equity.Equal(d("99902")) {
		t.Errorf("equity = %s, want 99902 after a 7-point loss on 14 units", equity)
	}
}

func TestTakeProfitClosesWinner(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	submitLong(t, b, t0.Add(time.Hour))
	b.Advance(simBar(0, "102", "100", "101"))

	events := b.Advance(simBar(1, "109.5", "101", "109"))
	if len(events) != 1 || events[0].Kind != EventTakeProfitHit {
		t.Fatalf("events = %v, want the target fill", events)
	}
	equity, _ := b.FreeEquity()
	if !equity.Equal(d("100098")) {
		t.Errorf("equity = %s, want 100098 after a 7-point gain on 14 units", equity)
	}
}

func TestEntryFillsOnExpiryBoundaryBar(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	submitLong(t, b, t0.Add(time.Minute))

	// The bar opening exactly at the expiry is the entry's live window;
	// a touch during it must fill, not lapse.
	events := b.Advance(simBar(1, "103", "100", "102"))
	if len(events) != 1 || events[0].Kind != EventEntryFilled {
		t.Fatalf("events = %v, want a fill on the boundary bar", events)
	}
	if flat, _ := b.IsFlat(); flat {
		t.Error("broker should hold a position after the boundary-bar fill")
	}
}

func TestExpiryOnUntouchedBoundaryBar(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	submitLong(t, b, t0.Add(time.Minute))

	events := b.Advance(simBar(1, "101", "99", "100"))
	if len(events) != 1 || events[0].Kind != EventExpired {
		t.Fatalf("events = %v, want expiry after an untouched window", events)
	}
	if flat, _ := b.IsFlat(); !flat {
		t.Error("broker must stay flat after an expired entry")
	}
}

func TestExpiryBeforeLateTouch(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	submitLong(t, b, t0.Add(time.Minute))

	// The bar lies wholly past the live window; a stale price must not fill.
	events := b.Advance(simBar(2, "103", "100", "102"))
	if len(events) != 1 || events[0].Kind != EventExpired {
		t.Fatalf("events = %v, want expiry only", events)
	}
	if flat, _ := b.IsFlat(); !flat {
		t.Error("broker must stay flat after an expired entry")
	}
}

func TestShortBracket(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	_, err := b.SubmitBracketOrder(&types.OrderIntent{
		Symbol:          "XAUUSD",
		Side:            types.Sell,
		Quantity:        10,
		EntryPrice:      d("98"),
		StopLossPrice:   d("104"),
		TakeProfitPrice: d("92"),
		ExpireAt:        t0.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SubmitBracketOrder: %v", err)
	}

	events := b.Advance(simBar(0, "100", "98", "99"))
	if len(events) != 1 || events[0].Kind != EventEntryFilled {
		t.Fatalf("events = %v, want a fill when the low touches the trigger", events)
	}
	events = b.Advance(simBar(1, "99", "91.5", "92"))
	if len(events) != 1 || events[0].Kind != EventTakeProfitHit {
		t.Fatalf("events = %v, want the short target", events)
	}
	equity, _ := b.FreeEquity()
	if !equity.Equal(d("100060")) {
		t.Errorf("equity = %s, want 100060 after a 6-point short gain on 10 units", equity)
	}
}

func TestModifyTrailsStopOnOpenPosition(t *testing.T) {
	b := NewPaperBroker(100_000, 0)
	id := submitLong(t, b, t0.Add(time.Hour))
	b.Advance(simBar(0, "102", "100", "101"))

	if err := b.ModifyOrder(id+"-sl", d("96")); err != nil {
		t.Fatalf("ModifyOrder: %v", err)
	}
	events := b.Advance(simBar(1, "101", "95.5", "96"))
	if len(events) != 1 || events[0].Kind != EventStopHit || !events[0].Price.Equal(d("96")) {
		t.Fatalf("events = %v, want the trailed stop at 96", events)
	}
}

func TestCommissionCharged(t *testing.T) {
	// 1 bp per fill on a 102 entry and 109 exit of 14 units.
	b := NewPaperBroker(100_000, 1.0)
	submitLong(t, b, t0.Add(time.Hour))
	b.Advance(simBar(0, "102", "100", "101"))
	b.Advance(simBar(1, "110", "102", "109"))

	equity, _ := b.FreeEquity()
	want := d("100098").Sub(d("102").Mul(d("14")).Div(d("10000"))).
		Sub(d("109").Mul(d("14")).Div(d("10000")))
	if !equity.Equal(want) {
		t.Errorf("equity = %s, want %s with commission", equity, want)
	}
}
