package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents an order side
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Opposite returns the opposite side
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// LegRole identifies the role of an order leg inside a bracket
type LegRole string

const (
	RoleEntry      LegRole = "Entry"
	RoleStopLoss   LegRole = "StopLoss"
	RoleTakeProfit LegRole = "TakeProfit"
)

// Signal represents a trading signal direction
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

// String returns the signal name
func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Bar is an immutable OHLC snapshot for one closed candle
type Bar struct {
	Symbol    string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// QuoteTick is a single top-of-book quote update
type QuoteTick struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// InstrumentInfo holds instrument metadata fetched at startup
type InstrumentInfo struct {
	Symbol         string
	QuoteCurrency  string
	TickSize       decimal.Decimal
	PricePrecision int32
	MinQty         int64
	QtyStep        int64
}

// OrderIntent is a fully priced and sized bracket ready for submission.
// The entry is a stop order with a short GTD expiry; the stop-loss and
// take-profit legs are one-cancels-other children of the entry fill.
type OrderIntent struct {
	Symbol          string
	Side            Side
	Quantity        int64
	EntryPrice      decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	TimeInForce     string // "GTD"
	ExpireAt        time.Time
}

// WorkingStopLeg is one live protective leg of an open bracket. The trailing
// sweep mutates Price in place; Role distinguishes stop-loss legs (which may
// be trailed) from take-profit legs (which must never be touched).
type WorkingStopLeg struct {
	OrderID  string
	Role     LegRole
	Side     Side
	Price    decimal.Decimal
	Quantity int64
}

// SignalSnapshot holds the latest evaluated signal for status reporting.
type SignalSnapshot struct {
	Signal     string    `json:"signal"`
	FastTrend  float64   `json:"fastTrend"`
	SlowTrend  float64   `json:"slowTrend"`
	ClosePrice string    `json:"closePrice"`
	Time       time.Time `json:"time"`
}

// IndicatorSnapshot holds the latest indicator values for status reporting.
type IndicatorSnapshot struct {
	Time      time.Time `json:"time"`
	FastEMA   float64   `json:"fastEma"`
	SlowEMA   float64   `json:"slowEma"`
	ATR       float64   `json:"atr"`
	AvgSpread float64   `json:"avgSpread"`
	CurSpread float64   `json:"curSpread"`
	Ready     bool      `json:"ready"`
}

// BracketSnapshot holds the last submitted bracket for status reporting.
type BracketSnapshot struct {
	Side       string    `json:"side"`
	Quantity   int64     `json:"quantity"`
	Entry      string    `json:"entry"`
	StopLoss   string    `json:"stopLoss"`
	TakeProfit string    `json:"takeProfit"`
	ExpireAt   time.Time `json:"expireAt"`
	Time       time.Time `json:"time"`
}

// TrailingSnapshot holds the last trailing-stop replacement for status reporting.
type TrailingSnapshot struct {
	OrderID  string    `json:"orderId"`
	OldPrice string    `json:"oldPrice"`
	NewPrice string    `json:"newPrice"`
	Time     time.Time `json:"time"`
}

// StatusSnapshot aggregates everything the status server exposes.
type StatusSnapshot struct {
	Symbol     string            `json:"symbol"`
	BarCount   uint64            `json:"barCount"`
	Signal     *SignalSnapshot   `json:"signal,omitempty"`
	Indicators IndicatorSnapshot `json:"indicators"`
	Bracket    *BracketSnapshot  `json:"bracket,omitempty"`
	Trailing   *TrailingSnapshot `json:"trailing,omitempty"`
}
