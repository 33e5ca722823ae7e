package constants

// Time in force
const (
	GoodTillDate    = "GTD"
	GoodTillCancel  = "GTC"
	ImmediateOrKill = "IOC"
)

// Default indicator periods
const (
	DefaultFastEMAPeriod = 10
	DefaultSlowEMAPeriod = 20
	DefaultATRPeriod     = 20
	DefaultSpreadWindow  = 100
)

// Risk management defaults (ema-cross reference parameters)
const (
	DefaultRiskBps           = 10.0
	DefaultStopATRMultiple   = 2.0
	DefaultCommissionRateBps = 0.15
	DefaultHardPositionLimit = 20_000_000
	DefaultLotUnitSize       = 10_000
	DefaultEntryBufferTicks  = 3
)

// LiquidityRatioThreshold gates entries: ATR must be at least this many
// average spreads for the instrument to be considered tradable. The
// boundary itself is accepted.
const LiquidityRatioThreshold = 2.0
