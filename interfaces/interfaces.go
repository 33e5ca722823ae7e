package interfaces

import (
	"github.com/shopspring/decimal"

	"ema-bracket-bot/types"
)

// Account exposes the account-side reads the strategy needs per decision
// cycle. FreeEquity and ExchangeRate are snapshot reads: the strategy calls
// each at most once per bar so two concurrent strategy instances sharing an
// account cannot race between a read and a submission.
type Account interface {
	FreeEquity() (decimal.Decimal, error)
	// ExchangeRate converts the instrument's quote currency into the
	// account currency. side selects the ask (buying) or bid (selling)
	// rate. An error means the rate is unavailable and the caller must
	// skip the signal.
	ExchangeRate(quoteCurrency string, side types.Side) (decimal.Decimal, error)
	IsFlat() (bool, error)
}

// Execution routes order intents to the venue. Rejections are returned as
// errors and surfaced to the caller; no retries happen at this level.
type Execution interface {
	// SubmitBracketOrder places the entry with its linked stop-loss and
	// take-profit legs and returns the venue order id of the entry.
	SubmitBracketOrder(intent *types.OrderIntent) (string, error)
	// ModifyOrder replaces the price of a working order; quantity is
	// unchanged.
	ModifyOrder(orderID string, newPrice decimal.Decimal) error
	CancelOrder(orderID string) error
}

// InstrumentProvider supplies instrument metadata at startup
type InstrumentProvider interface {
	GetInstrumentInfo(symbol string) (*types.InstrumentInfo, error)
}

// StatusSource is implemented by the strategy for the status server
type StatusSource interface {
	Snapshot() types.StatusSnapshot
}
