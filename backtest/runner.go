package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/config"
	"ema-bracket-bot/interfaces"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/strategy"
	"ema-bracket-bot/types"
)

// Report summarises one backtest run
type Report struct {
	Bars              int
	BracketsSubmitted int
	EntriesFilled     int
	StopOuts          int
	TakeProfits       int
	Expired           int
	StartingEquity    decimal.Decimal
	FinalEquity       decimal.Decimal
}

// Return is the net return over the run as a percentage
func (r *Report) Return() decimal.Decimal {
	if r.StartingEquity.Sign() <= 0 {
		return decimal.Zero
	}
	return r.FinalEquity.Sub(r.StartingEquity).
		Div(r.StartingEquity).Mul(decimal.NewFromInt(100))
}

func (r *Report) String() string {
	return fmt.Sprintf(
		"bars=%d brackets=%d filled=%d stops=%d targets=%d expired=%d equity=%s->%s (%s%%)",
		r.Bars, r.BracketsSubmitted, r.EntriesFilled, r.StopOuts, r.TakeProfits,
		r.Expired, r.StartingEquity, r.FinalEquity, r.Return().Round(2))
}

type staticInstruments struct {
	info *types.InstrumentInfo
}

var _ interfaces.InstrumentProvider = staticInstruments{}

func (s staticInstruments) GetInstrumentInfo(string) (*types.InstrumentInfo, error) {
	return s.info, nil
}

// countingExec wraps the paper broker to count submissions for the report
type countingExec struct {
	*PaperBroker
	submitted int
}

func (e *countingExec) SubmitBracketOrder(intent *types.OrderIntent) (string, error) {
	id, err := e.PaperBroker.SubmitBracketOrder(intent)
	if err == nil {
		e.submitted++
	}
	return id, err
}

// Runner replays historical bars through a fresh strategy against the paper
// broker. Quote ticks are synthesised around each bar close with the
// configured spread, since bar files carry no book data.
type Runner struct {
	cfg    *config.Config
	logger logging.LoggerInterface
	trader *strategy.Trader
	broker *PaperBroker
	exec   *countingExec
}

// NewRunner wires a strategy to a paper broker for the given instrument
func NewRunner(cfg *config.Config, logger logging.LoggerInterface,
	info *types.InstrumentInfo) (*Runner, error) {

	broker := NewPaperBroker(cfg.BacktestEquity, cfg.CommissionRateBps)
	exec := &countingExec{PaperBroker: broker}
	trader, err := strategy.NewTrader(cfg, logger, broker, exec, staticInstruments{info})
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:    cfg,
		logger: logger,
		trader: trader,
		broker: broker,
		exec:   exec,
	}, nil
}

// Trader exposes the strategy under test
func (r *Runner) Trader() *strategy.Trader {
	return r.trader
}

// Run replays the bars in order and returns the report. Fills for orders
// resting from earlier bars are applied before the strategy sees the bar.
func (r *Runner) Run(bars []types.Bar) (*Report, error) {
	if err := r.trader.OnStart(); err != nil {
		return nil, err
	}

	report := &Report{StartingEquity: decimal.NewFromFloat(r.cfg.BacktestEquity)}
	halfSpread := decimal.NewFromFloat(r.cfg.BacktestSpread).Div(decimal.NewFromInt(2))
	orders := r.trader.Orders()

	for _, bar := range bars {
		for _, ev := range r.broker.Advance(bar) {
			switch ev.Kind {
			case EventEntryFilled:
				report.EntriesFilled++
				orders.OnEntryFilled(ev.OrderID)
				r.logger.Info("Entry %s filled at %s", ev.OrderID, ev.Price)
			case EventStopHit:
				report.StopOuts++
				orders.OnLegClosed(ev.OrderID)
				r.logger.Info("Stop %s hit at %s", ev.OrderID, ev.Price)
			case EventTakeProfitHit:
				report.TakeProfits++
				orders.OnLegClosed(ev.OrderID)
				r.logger.Info("Target %s hit at %s", ev.OrderID, ev.Price)
			case EventExpired:
				report.Expired++
				orders.OnLegClosed(ev.OrderID)
				r.logger.Info("Entry %s expired unfilled", ev.OrderID)
			}
		}

		r.trader.OnQuoteTick(types.QuoteTick{
			Symbol:    bar.Symbol,
			Bid:       bar.Close.Sub(halfSpread),
			Ask:       bar.Close.Add(halfSpread),
			Timestamp: bar.Timestamp,
		})
		r.trader.OnBar(bar)
		report.Bars++
	}

	r.trader.OnStop()
	r.trader.OnDispose()
	report.BracketsSubmitted = r.exec.submitted
	report.FinalEquity, _ = r.broker.FreeEquity()
	return report, nil
}
