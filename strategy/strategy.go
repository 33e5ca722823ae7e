package strategy

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/config"
	"ema-bracket-bot/indicators"
	"ema-bracket-bot/interfaces"
	"ema-bracket-bot/internal/constants"
	"ema-bracket-bot/internal/utils"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/order"
	"ema-bracket-bot/types"
)

// Trader drives one EMA-cross bracket strategy for a single instrument.
// All hooks run on one goroutine; the only concurrent reader is the status
// server, which goes through Snapshot.
type Trader struct {
	cfg    *config.Config
	logger logging.LoggerInterface

	account     interfaces.Account
	instruments interfaces.InstrumentProvider
	orders      *order.Manager

	fastEMA *indicators.EMA
	slowEMA *indicators.EMA
	atr     *indicators.ATR
	spreads *indicators.SpreadAnalyzer
	sizer   *FixedRiskSizer

	instrument  *types.InstrumentInfo
	entryBuffer decimal.Decimal
	precision   int32
	expiry      time.Duration

	barCount uint64

	mu             sync.RWMutex
	lastIndicators types.IndicatorSnapshot
	lastSignal     *types.SignalSnapshot
	lastBracket    *types.BracketSnapshot
	lastTrailing   *types.TrailingSnapshot
}

// NewTrader validates the configuration and wires the strategy together.
// A trader never runs with an invalid configuration.
func NewTrader(cfg *config.Config, logger logging.LoggerInterface,
	account interfaces.Account, exec interfaces.Execution,
	instruments interfaces.InstrumentProvider) (*Trader, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Trader{
		cfg:         cfg,
		logger:      logger,
		account:     account,
		instruments: instruments,
		orders:      order.NewManager(exec, logger),
		fastEMA:     indicators.NewEMA(cfg.FastEMAPeriod),
		slowEMA:     indicators.NewEMA(cfg.SlowEMAPeriod),
		atr:         indicators.NewATR(cfg.ATRPeriod),
		spreads:     indicators.NewSpreadAnalyzer(cfg.SpreadWindow),
		sizer: &FixedRiskSizer{
			CommissionRateBps: cfg.CommissionRateBps,
			HardPositionLimit: cfg.HardPositionLimit,
			LotUnitSize:       cfg.LotUnitSize,
		},
		expiry: time.Duration(cfg.EntryExpirySec) * time.Second,
	}, nil
}

// OnStart fetches instrument metadata and derives the price precision and
// entry buffer from its tick size.
func (t *Trader) OnStart() error {
	info, err := t.instruments.GetInstrumentInfo(t.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("instrument bootstrap failed for %s: %w", t.cfg.Symbol, err)
	}
	t.instrument = info
	t.precision = info.PricePrecision
	if t.precision == 0 {
		t.precision = utils.PrecisionFromTick(info.TickSize)
	}
	t.entryBuffer = info.TickSize.Mul(decimal.NewFromInt(int64(t.cfg.EntryBufferTicks)))

	t.logger.Info("Strategy started: %s tick=%s precision=%d entryBuffer=%s",
		info.Symbol, info.TickSize, t.precision, t.entryBuffer)
	return nil
}

// WarmUp replays historical closed bars into the indicators without
// evaluating anything, so the first live bar can already trade. Warm-up
// bars do not count as decision cycles.
func (t *Trader) WarmUp(bars []types.Bar) {
	for _, bar := range bars {
		closePrice := bar.Close.InexactFloat64()
		t.fastEMA.Update(closePrice)
		t.slowEMA.Update(closePrice)
		t.atr.Update(bar.High.InexactFloat64(), bar.Low.InexactFloat64(), closePrice)
	}
	t.logger.Info("Warmed indicators with %d historical bars", len(bars))
}

// OnQuoteTick feeds the spread window. Quotes never trigger decisions.
func (t *Trader) OnQuoteTick(q types.QuoteTick) {
	t.spreads.Update(q.Bid.InexactFloat64(), q.Ask.InexactFloat64())
}

// OnBar is the decision cycle: update indicators, expire stale entries,
// reconcile the leg registry against the position, evaluate the signal,
// and trail any working stop. Reconciliation runs on every bar, including
// gated ones, so finished brackets never linger in the registry. All skip
// conditions are returned as sentinel errors after logging; the bar stream
// keeps flowing.
func (t *Trader) OnBar(bar types.Bar) error {
	closePrice := bar.Close.InexactFloat64()
	t.fastEMA.Update(closePrice)
	t.slowEMA.Update(closePrice)
	t.atr.Update(bar.High.InexactFloat64(), bar.Low.InexactFloat64(), closePrice)
	t.recordIndicators(bar)

	t.orders.ExpireStale(bar.Timestamp)

	flat, flatErr := t.account.IsFlat()
	if flatErr == nil {
		t.orders.Reconcile(flat)
	}

	err := t.evaluate(bar, flat, flatErr)
	switch {
	case err == nil:
	case errors.Is(err, ErrWarmingUp):
		t.logger.Debug("Skipping bar %d: %v", t.barCount, err)
	case errors.Is(err, ErrLowLiquidity):
		t.logger.Info("Skipping bar %d: %v", t.barCount, err)
	default:
		t.logger.Warning("Skipping bar %d: %v", t.barCount, err)
	}

	t.checkTrailingStops(bar)
	return err
}

// ready reports whether every indicator has enough history and the spread
// window has produced a usable average.
func (t *Trader) ready() bool {
	return t.fastEMA.Ready() && t.slowEMA.Ready() && t.atr.Ready() &&
		t.spreads.Ready() && t.spreads.Average() > 0
}

func (t *Trader) evaluate(bar types.Bar, flat bool, flatErr error) error {
	if !t.ready() {
		return ErrWarmingUp
	}

	avgSpread := t.spreads.Average()
	vol := t.atr.Value()
	ratio := vol / avgSpread
	if ratio < constants.LiquidityRatioThreshold {
		return fmt.Errorf("%w: ATR/spread %.2f", ErrLowLiquidity, ratio)
	}

	if flatErr != nil {
		return fmt.Errorf("position state unavailable: %w", flatErr)
	}
	if !flat || t.orders.WorkingOrderCount() > 0 {
		t.logger.Debug("Holding: position open or orders working")
		return nil
	}

	fast, slow := t.fastEMA.Value(), t.slowEMA.Value()
	signal := types.SignalSell
	if fast >= slow { // a tie counts as bullish
		signal = types.SignalBuy
	}
	t.recordSignal(signal, fast, slow, bar)

	side := types.Buy
	if signal == types.SignalSell {
		side = types.Sell
	}
	return t.enter(side, bar, math.Max(avgSpread, t.spreads.Current()),
		vol*t.cfg.StopATRMultiple)
}

// enter prices, sizes and submits one bracket. Equity and the exchange rate
// are each read exactly once per cycle.
func (t *Trader) enter(side types.Side, bar types.Bar, spreadBuffer, volBuffer float64) error {
	prices, err := buildBracket(side, bar, t.entryBuffer, spreadBuffer, volBuffer, t.precision)
	if err != nil {
		return err
	}

	fxRate, err := t.account.ExchangeRate(t.instrument.QuoteCurrency, side)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoExchangeRate, err)
	}
	equity, err := t.account.FreeEquity()
	if err != nil {
		return fmt.Errorf("equity unavailable: %w", err)
	}

	qty := t.sizer.Calculate(equity, t.cfg.RiskBps, prices.Entry, prices.StopLoss, fxRate)
	if qty == 0 {
		return fmt.Errorf("%w: equity %s risk %.1fbps", order.ErrZeroQuantity, equity, t.cfg.RiskBps)
	}

	intent := t.orders.BuildIntent(t.cfg.Symbol, side, qty,
		prices.Entry, prices.StopLoss, prices.TakeProfit, bar.Timestamp, t.expiry)
	if err := t.orders.SubmitBracket(intent); err != nil {
		return err
	}
	t.recordBracket(intent, bar)
	return nil
}

// checkTrailingStops walks every working leg and tightens stop-loss legs
// that the latest bar allows. Entry and take-profit legs are skipped, not
// a reason to stop the sweep; a leg without a role is logged and skipped
// too. A stop only ever moves toward the market, never away.
func (t *Trader) checkTrailingStops(bar types.Bar) {
	if !t.ready() {
		return
	}
	volBuffer := t.atr.Value() * t.cfg.StopATRMultiple
	spreadBuffer := math.Max(t.spreads.Average(), t.spreads.Current())

	for _, leg := range t.orders.WorkingLegs() {
		if leg.Role == "" {
			t.logger.Warning("Working leg %s has no role, skipping", leg.OrderID)
			continue
		}
		if leg.Role != types.RoleStopLoss {
			continue
		}

		var candidate decimal.Decimal
		tighten := false
		if leg.Side == types.Sell {
			// Protecting a long: raise the stop under the bar low.
			candidate = utils.RoundPrice(
				bar.Low.Sub(decimal.NewFromFloat(volBuffer)), t.precision)
			tighten = candidate.GreaterThan(leg.Price)
		} else {
			// Protecting a short: lower the stop over the bar high.
			candidate = utils.RoundPrice(
				bar.High.Add(decimal.NewFromFloat(volBuffer)).
					Add(decimal.NewFromFloat(spreadBuffer)), t.precision)
			tighten = candidate.LessThan(leg.Price)
		}
		if !tighten {
			continue
		}

		oldPrice := leg.Price
		if err := t.orders.TrailStop(leg, candidate); err != nil {
			t.logger.Error("Trailing stop replacement failed: %v", err)
			continue
		}
		t.recordTrailing(leg.OrderID, oldPrice, candidate, bar)
	}
}

// OnStop cancels every working order and leaves indicator state intact.
func (t *Trader) OnStop() {
	t.logger.Info("Strategy stopping, cancelling %d working orders", t.orders.WorkingOrderCount())
	t.orders.CancelAll()
}

// OnReset returns the strategy to its pre-start state for a fresh run.
func (t *Trader) OnReset() {
	t.fastEMA.Reset()
	t.slowEMA.Reset()
	t.atr.Reset()
	t.spreads.Reset()
	t.orders.Reset()

	t.mu.Lock()
	t.barCount = 0
	t.lastIndicators = types.IndicatorSnapshot{}
	t.lastSignal = nil
	t.lastBracket = nil
	t.lastTrailing = nil
	t.mu.Unlock()
	t.logger.Info("Strategy reset")
}

// OnDispose releases nothing beyond what OnStop already did; it exists so
// the runner has a final hook after the last reset.
func (t *Trader) OnDispose() {
	t.logger.Info("Strategy disposed after %d bars", t.barCount)
}

// Orders exposes the order manager for the live event loop
func (t *Trader) Orders() *order.Manager {
	return t.orders
}

// Snapshot implements interfaces.StatusSource.
func (t *Trader) Snapshot() types.StatusSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return types.StatusSnapshot{
		Symbol:     t.cfg.Symbol,
		BarCount:   t.barCount,
		Signal:     t.lastSignal,
		Indicators: t.lastIndicators,
		Bracket:    t.lastBracket,
		Trailing:   t.lastTrailing,
	}
}

func (t *Trader) recordIndicators(bar types.Bar) {
	t.mu.Lock()
	t.barCount++
	t.lastIndicators = types.IndicatorSnapshot{
		Time:      bar.Timestamp,
		FastEMA:   t.fastEMA.Value(),
		SlowEMA:   t.slowEMA.Value(),
		ATR:       t.atr.Value(),
		AvgSpread: t.spreads.Average(),
		CurSpread: t.spreads.Current(),
		Ready:     t.ready(),
	}
	t.mu.Unlock()
}

func (t *Trader) recordSignal(signal types.Signal, fast, slow float64, bar types.Bar) {
	t.mu.Lock()
	t.lastSignal = &types.SignalSnapshot{
		Signal:     signal.String(),
		FastTrend:  fast,
		SlowTrend:  slow,
		ClosePrice: bar.Close.String(),
		Time:       bar.Timestamp,
	}
	t.mu.Unlock()
}

func (t *Trader) recordBracket(intent *types.OrderIntent, bar types.Bar) {
	t.mu.Lock()
	t.lastBracket = &types.BracketSnapshot{
		Side:       string(intent.Side),
		Quantity:   intent.Quantity,
		Entry:      intent.EntryPrice.String(),
		StopLoss:   intent.StopLossPrice.String(),
		TakeProfit: intent.TakeProfitPrice.String(),
		ExpireAt:   intent.ExpireAt,
		Time:       bar.Timestamp,
	}
	t.mu.Unlock()
}

func (t *Trader) recordTrailing(orderID string, oldPrice, newPrice decimal.Decimal, bar types.Bar) {
	t.mu.Lock()
	t.lastTrailing = &types.TrailingSnapshot{
		OrderID:  orderID,
		OldPrice: oldPrice.String(),
		NewPrice: newPrice.String(),
		Time:     bar.Timestamp,
	}
	t.mu.Unlock()
}
