package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/interfaces"
	"ema-bracket-bot/types"
)

// EventKind classifies a simulated fill or cancellation
type EventKind int

const (
	EventEntryFilled EventKind = iota
	EventStopHit
	EventTakeProfitHit
	EventExpired
)

// Event is one order-state change produced while advancing a bar
type Event struct {
	Kind    EventKind
	OrderID string
	Price   decimal.Decimal
}

type paperBracket struct {
	id       string
	side     types.Side
	qty      int64
	trigger  decimal.Decimal
	stopLoss decimal.Decimal
	takeProf decimal.Decimal
	expireAt time.Time
}

type paperPosition struct {
	bracket *paperBracket
	entry   decimal.Decimal
}

// PaperBroker is a deterministic single-position venue simulation. Stop
// entries trigger on first touch; once in a position the stop-loss is
// tested before the take-profit on any bar that touches both, so a
// conflicted bar always resolves to the worse outcome.
type PaperBroker struct {
	equity            decimal.Decimal
	commissionRateBps decimal.Decimal

	working  *paperBracket
	position *paperPosition
	nextID   int
}

var (
	_ interfaces.Account   = (*PaperBroker)(nil)
	_ interfaces.Execution = (*PaperBroker)(nil)
)

// NewPaperBroker creates a paper broker with the given starting equity
func NewPaperBroker(startingEquity float64, commissionRateBps float64) *PaperBroker {
	return &PaperBroker{
		equity:            decimal.NewFromFloat(startingEquity),
		commissionRateBps: decimal.NewFromFloat(commissionRateBps),
	}
}

// FreeEquity implements interfaces.Account.
func (b *PaperBroker) FreeEquity() (decimal.Decimal, error) {
	return b.equity, nil
}

// ExchangeRate implements interfaces.Account. Simulations run with the
// account held in the instrument's quote currency.
func (b *PaperBroker) ExchangeRate(string, types.Side) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

// IsFlat implements interfaces.Account.
func (b *PaperBroker) IsFlat() (bool, error) {
	return b.position == nil, nil
}

// SubmitBracketOrder implements interfaces.Execution.
func (b *PaperBroker) SubmitBracketOrder(intent *types.OrderIntent) (string, error) {
	if b.working != nil || b.position != nil {
		return "", fmt.Errorf("paper broker holds one bracket at a time")
	}
	b.nextID++
	b.working = &paperBracket{
		id:       fmt.Sprintf("sim-%d", b.nextID),
		side:     intent.Side,
		qty:      intent.Quantity,
		trigger:  intent.EntryPrice,
		stopLoss: intent.StopLossPrice,
		takeProf: intent.TakeProfitPrice,
		expireAt: intent.ExpireAt,
	}
	return b.working.id, nil
}

// ModifyOrder implements interfaces.Execution.
func (b *PaperBroker) ModifyOrder(orderID string, newPrice decimal.Decimal) error {
	br := b.bracketFor(orderID)
	if br == nil {
		return fmt.Errorf("unknown order %s", orderID)
	}
	switch {
	case strings.HasSuffix(orderID, "-sl"):
		br.stopLoss = newPrice
	case strings.HasSuffix(orderID, "-tp"):
		br.takeProf = newPrice
	default:
		br.trigger = newPrice
	}
	return nil
}

// CancelOrder implements interfaces.Execution. Cancelling the entry of an
// untriggered bracket removes the whole bracket; cancelling anything
// already gone is a no-op, as on a real venue after a fill race.
func (b *PaperBroker) CancelOrder(orderID string) error {
	if b.working != nil && orderID == b.working.id {
		b.working = nil
	}
	return nil
}

func (b *PaperBroker) bracketFor(orderID string) *paperBracket {
	base := strings.TrimSuffix(strings.TrimSuffix(orderID, "-sl"), "-tp")
	if b.working != nil && b.working.id == base {
		return b.working
	}
	if b.position != nil && b.position.bracket.id == base {
		return b.position.bracket
	}
	return nil
}

// Advance runs one bar through the simulation and returns what happened,
// in order. The entry stays triggerable through the bar that opens at its
// expiry; it lapses once that bar passes untouched, or on any later bar.
// The trigger is checked before the protective legs, so an entry that fills
// on the bar can also stop out on the same bar.
func (b *PaperBroker) Advance(bar types.Bar) []Event {
	var events []Event

	if b.working != nil {
		br := b.working
		switch {
		case bar.Timestamp.After(br.expireAt):
			b.working = nil
			events = append(events, Event{Kind: EventExpired, OrderID: br.id})
		case b.triggered(br, bar):
			b.working = nil
			b.position = &paperPosition{bracket: br, entry: br.trigger}
			b.charge(br.trigger, br.qty)
			events = append(events, Event{Kind: EventEntryFilled, OrderID: br.id, Price: br.trigger})
		case !bar.Timestamp.Before(br.expireAt):
			b.working = nil
			events = append(events, Event{Kind: EventExpired, OrderID: br.id})
		}
	}

	if b.position != nil {
		events = append(events, b.checkExits(bar)...)
	}
	return events
}

func (b *PaperBroker) triggered(br *paperBracket, bar types.Bar) bool {
	if br.side == types.Buy {
		return bar.High.GreaterThanOrEqual(br.trigger)
	}
	return bar.Low.LessThanOrEqual(br.trigger)
}

func (b *PaperBroker) checkExits(bar types.Bar) []Event {
	pos := b.position
	br := pos.bracket

	var exit decimal.Decimal
	var kind EventKind
	var legID string
	switch {
	case br.side == types.Buy && bar.Low.LessThanOrEqual(br.stopLoss):
		exit, kind, legID = br.stopLoss, EventStopHit, br.id+"-sl"
	case br.side == types.Sell && bar.High.GreaterThanOrEqual(br.stopLoss):
		exit, kind, legID = br.stopLoss, EventStopHit, br.id+"-sl"
	case br.side == types.Buy && bar.High.GreaterThanOrEqual(br.takeProf):
		exit, kind, legID = br.takeProf, EventTakeProfitHit, br.id+"-tp"
	case br.side == types.Sell && bar.Low.LessThanOrEqual(br.takeProf):
		exit, kind, legID = br.takeProf, EventTakeProfitHit, br.id+"-tp"
	default:
		return nil
	}

	qty := decimal.NewFromInt(br.qty)
	pnl := exit.Sub(pos.entry).Mul(qty)
	if br.side == types.Sell {
		pnl = pnl.Neg()
	}
	b.equity = b.equity.Add(pnl)
	b.charge(exit, br.qty)
	b.position = nil

	return []Event{{Kind: kind, OrderID: legID, Price: exit}}
}

// charge deducts commission on one fill's notional
func (b *PaperBroker) charge(price decimal.Decimal, qty int64) {
	fee := price.Mul(decimal.NewFromInt(qty)).
		Mul(b.commissionRateBps).Div(decimal.NewFromInt(10_000))
	b.equity = b.equity.Sub(fee)
}
