package backtest

import (
	"testing"

	"ema-bracket-bot/config"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/types"
)

func runnerConfig() *config.Config {
	return &config.Config{
		Symbol:            "XAUUSD",
		FastEMAPeriod:     2,
		SlowEMAPeriod:     3,
		ATRPeriod:         2,
		SpreadWindow:      5,
		RiskBps:           10,
		StopATRMultiple:   2,
		EntryBufferTicks:  0,
		CommissionRateBps: 0,
		HardPositionLimit: 20_000_000,
		LotUnitSize:       1,
		EntryExpirySec:    3600,
		BacktestEquity:    100_000,
		BacktestSpread:    1.0,
	}
}

func runnerInstrument() *types.InstrumentInfo {
	return &types.InstrumentInfo{
		Symbol:         "XAUUSD",
		QuoteCurrency:  "USD",
		TickSize:       d("0.01"),
		PricePrecision: 2,
		MinQty:         1,
		QtyStep:        1,
	}
}

func TestRunnerFillsAndStopsOut(t *testing.T) {
	r, err := NewRunner(runnerConfig(), logging.Nop{}, runnerInstrument())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	// Three flat warm-up bars place a long bracket (entry 102, stop 95),
	// the fourth fills it and trails the stop to 96, the fifth stops out.
	bars := []types.Bar{
		simBar(0, "101", "99", "100"),
		simBar(1, "101", "99", "100"),
		simBar(2, "101", "99", "100"),
		simBar(3, "103", "101", "102"),
		simBar(4, "97", "95.5", "96.5"),
	}
	report, err := r.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Bars != 5 {
		t.Errorf("bars = %d, want 5", report.Bars)
	}
	if report.BracketsSubmitted != 2 {
		t.Errorf("brackets = %d, want 2 (re-entry after the stop-out)", report.BracketsSubmitted)
	}
	if report.EntriesFilled != 1 {
		t.Errorf("filled = %d, want 1", report.EntriesFilled)
	}
	if report.StopOuts != 1 || report.TakeProfits != 0 {
		t.Errorf("stops = %d targets = %d, want 1 and 0", report.StopOuts, report.TakeProfits)
	}
	// 14 units lost 6 points after the trailed stop at 96.
	if !report.FinalEquity.Equal(d("99916")) {
		t.Errorf("final equity = %s, want 99916", report.FinalEquity)
	}
	if report.Return().Sign() >= 0 {
		t.Errorf("return = %s%%, want negative", report.Return())
	}
}

func TestRunnerFillsAtDefaultExpiry(t *testing.T) {
	cfg := runnerConfig()
	cfg.EntryExpirySec = 60
	r, err := NewRunner(cfg, logging.Nop{}, runnerInstrument())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	// With one-minute bars and a one-minute expiry the bracket placed on
	// bar 2 is live exactly for bar 3, which touches the 102 trigger.
	bars := []types.Bar{
		simBar(0, "101", "99", "100"),
		simBar(1, "101", "99", "100"),
		simBar(2, "101", "99", "100"),
		simBar(3, "103", "101", "102"),
	}
	report, err := r.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.EntriesFilled != 1 {
		t.Errorf("filled = %d, want 1", report.EntriesFilled)
	}
	if report.Expired != 0 {
		t.Errorf("expired = %d, want 0", report.Expired)
	}
	if report.BracketsSubmitted != 1 {
		t.Errorf("brackets = %d, want 1", report.BracketsSubmitted)
	}
}

func TestRunnerExpiresUntouchedEntries(t *testing.T) {
	cfg := runnerConfig()
	cfg.EntryExpirySec = 60
	r, err := NewRunner(cfg, logging.Nop{}, runnerInstrument())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	// The entry rests at 102 while every bar tops out at 101; each bracket
	// dies at the next bar and is re-placed.
	bars := []types.Bar{
		simBar(0, "101", "99", "100"),
		simBar(1, "101", "99", "100"),
		simBar(2, "101", "99", "100"),
		simBar(3, "101", "99", "100"),
		simBar(4, "101", "99", "100"),
		simBar(5, "101", "99", "100"),
	}
	report, err := r.Run(bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.EntriesFilled != 0 {
		t.Errorf("filled = %d, want 0", report.EntriesFilled)
	}
	if report.BracketsSubmitted != 4 || report.Expired != 3 {
		t.Errorf("brackets = %d expired = %d, want 4 and 3",
			report.BracketsSubmitted, report.Expired)
	}
	if !report.FinalEquity.Equal(d("100000")) {
		t.Errorf("final equity = %s, unfilled entries must not move equity", report.FinalEquity)
	}
}
