package strategy

import (
	"github.com/shopspring/decimal"

	"ema-bracket-bot/internal/utils"
)

// FixedRiskSizer converts an account equity and a per-trade risk budget into
// an integer unit quantity. The quantity is chosen so the loss on a
// stop-out, including the estimated round-trip commission, stays at or
// below the budget.
type FixedRiskSizer struct {
	CommissionRateBps float64 // commission per unit of entry notional
	HardPositionLimit int64   // absolute unit ceiling per trade
	LotUnitSize       int64   // result is a multiple of this
}

// Calculate returns the number of units to trade. A zero return means the
// trade cannot be sized within the budget and must be skipped: the risk
// distance is not positive, equity is too small for a single lot, or the
// per-unit risk exceeds the whole budget.
func (s *FixedRiskSizer) Calculate(equity decimal.Decimal, riskBps float64,
	entry, stop, fxRate decimal.Decimal) int64 {

	if equity.Sign() <= 0 || fxRate.Sign() <= 0 || riskBps <= 0 {
		return 0
	}

	riskAmount := equity.Mul(decimal.NewFromFloat(riskBps)).
		Div(decimal.NewFromInt(10_000))

	distance := entry.Sub(stop).Abs()
	if distance.Sign() <= 0 {
		return 0
	}

	// Per-unit cost of a stop-out in account currency: the stop distance
	// plus commission on the entry notional.
	commission := entry.Mul(decimal.NewFromFloat(s.CommissionRateBps)).
		Div(decimal.NewFromInt(10_000))
	riskPerUnit := distance.Add(commission).Mul(fxRate)
	if riskPerUnit.Sign() <= 0 {
		return 0
	}

	qty := riskAmount.Div(riskPerUnit).IntPart()
	qty = utils.FloorToLot(qty, s.LotUnitSize)
	if s.HardPositionLimit > 0 && qty > s.HardPositionLimit {
		qty = s.HardPositionLimit
	}
	return qty
}
