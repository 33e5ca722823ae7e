package strategy

import "errors"

// Sentinel errors for the conditions that make the strategy skip a decision
// cycle. Every one of them is recoverable: the caller logs, leaves state
// untouched and waits for the next bar. Callers distinguish them with
// errors.Is.
var (
	// ErrWarmingUp means the indicators or the spread window have not
	// accumulated enough data yet.
	ErrWarmingUp = errors.New("warming up: indicators or spread window not ready")

	// ErrLowLiquidity means volatility is too small relative to the
	// average spread for a bracket to clear its own costs.
	ErrLowLiquidity = errors.New("liquidity too low: volatility below spread threshold")

	// ErrDegenerateBracket means the computed entry and stop collapsed to
	// a non-positive risk distance after rounding.
	ErrDegenerateBracket = errors.New("degenerate bracket: non-positive risk distance")

	// ErrNoExchangeRate means the quote-to-account conversion rate is
	// unavailable this cycle.
	ErrNoExchangeRate = errors.New("no exchange rate for quote currency")
)
