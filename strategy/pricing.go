package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/internal/utils"
	"ema-bracket-bot/types"
)

// BracketPrices holds the three rounded legs of one bracket. TakeProfit is
// placed exactly one risk distance beyond the entry, so after rounding the
// reward never differs from the risk by more than one price increment.
type BracketPrices struct {
	Entry      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// buildBracket derives entry, stop-loss and take-profit prices from the
// triggering bar.
//
// A buy enters on a stop above the bar high, padded by the entry buffer and
// the larger of average and current spread, with the stop-loss below the bar
// low by the volatility buffer. A sell enters on a stop below the bar low
// padded by the entry buffer alone; its stop-loss sits above the bar high by
// the volatility buffer plus the spread. All legs are rounded half-to-even
// at the instrument's price precision; a bracket whose rounded risk distance
// is not positive is rejected as degenerate.
func buildBracket(side types.Side, bar types.Bar, entryBuffer decimal.Decimal,
	spreadBuffer, volBuffer float64, precision int32) (BracketPrices, error) {

	spread := decimal.NewFromFloat(spreadBuffer)
	vol := decimal.NewFromFloat(volBuffer)

	var entry, stop decimal.Decimal
	switch side {
	case types.Buy:
		entry = bar.High.Add(entryBuffer).Add(spread)
		stop = bar.Low.Sub(vol)
	case types.Sell:
		entry = bar.Low.Sub(entryBuffer)
		stop = bar.High.Add(vol).Add(spread)
	default:
		return BracketPrices{}, fmt.Errorf("unknown side %q", side)
	}

	entry = utils.RoundPrice(entry, precision)
	stop = utils.RoundPrice(stop, precision)

	risk := entry.Sub(stop)
	if side == types.Sell {
		risk = risk.Neg()
	}
	if risk.Sign() <= 0 {
		return BracketPrices{}, fmt.Errorf("%w: entry %s stop %s",
			ErrDegenerateBracket, entry, stop)
	}

	var tp decimal.Decimal
	if side == types.Buy {
		tp = entry.Add(risk)
	} else {
		tp = entry.Sub(risk)
	}

	return BracketPrices{
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: utils.RoundPrice(tp, precision),
	}, nil
}
