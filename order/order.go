package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/interfaces"
	"ema-bracket-bot/internal/constants"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/types"
)

// ErrZeroQuantity is returned when a bracket with no size reaches the
// manager. Zero means "insufficient equity or excessive risk distance" and
// the order must not be submitted.
var ErrZeroQuantity = errors.New("zero quantity: insufficient equity or excessive risk distance")

// bracket tracks one submitted entry with its linked protective legs
type bracket struct {
	entryID  string
	expireAt time.Time
	legIDs   []string
}

// Manager assembles bracket intents, submits them through the execution
// interface and keeps the registry of working legs that the trailing sweep
// iterates. One strategy instance owns one manager; no internal locking.
type Manager struct {
	exec   interfaces.Execution
	logger logging.LoggerInterface

	legs     []*types.WorkingStopLeg
	brackets map[string]*bracket // keyed by entry order id
}

// NewManager creates a new order manager
func NewManager(exec interfaces.Execution, logger logging.LoggerInterface) *Manager {
	return &Manager{
		exec:     exec,
		logger:   logger,
		brackets: make(map[string]*bracket),
	}
}

// BuildIntent assembles an order intent for a sized, priced bracket. The
// entry is a stop order that self-cancels one bar period after the
// triggering bar so a stale price can never fill on a gapping market.
func (m *Manager) BuildIntent(symbol string, side types.Side, quantity int64,
	entry, stopLoss, takeProfit decimal.Decimal, barTime time.Time, expiry time.Duration) *types.OrderIntent {
	return &types.OrderIntent{
		Symbol:          symbol,
		Side:            side,
		Quantity:        quantity,
		EntryPrice:      entry,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		TimeInForce:     constants.GoodTillDate,
		ExpireAt:        barTime.Add(expiry),
	}
}

// SubmitBracket submits the intent and registers its working legs. The
// stop-loss and take-profit legs are one-cancels-other children of the
// entry: when one closes the sibling is dropped with it.
func (m *Manager) SubmitBracket(intent *types.OrderIntent) error {
	if intent.Quantity == 0 {
		return ErrZeroQuantity
	}

	entryID, err := m.exec.SubmitBracketOrder(intent)
	if err != nil {
		return fmt.Errorf("bracket submission rejected: %w", err)
	}

	slID := entryID + "-sl"
	tpID := entryID + "-tp"

	m.legs = append(m.legs,
		&types.WorkingStopLeg{
			OrderID:  entryID,
			Role:     types.RoleEntry,
			Side:     intent.Side,
			Price:    intent.EntryPrice,
			Quantity: intent.Quantity,
		},
		&types.WorkingStopLeg{
			OrderID:  slID,
			Role:     types.RoleStopLoss,
			Side:     intent.Side.Opposite(),
			Price:    intent.StopLossPrice,
			Quantity: intent.Quantity,
		},
		&types.WorkingStopLeg{
			OrderID:  tpID,
			Role:     types.RoleTakeProfit,
			Side:     intent.Side.Opposite(),
			Price:    intent.TakeProfitPrice,
			Quantity: intent.Quantity,
		},
	)
	m.brackets[entryID] = &bracket{
		entryID:  entryID,
		expireAt: intent.ExpireAt,
		legIDs:   []string{entryID, slID, tpID},
	}

	m.logger.Info("Bracket submitted: %s %d @ entry %s SL %s TP %s (expires %s)",
		intent.Side, intent.Quantity,
		intent.EntryPrice, intent.StopLossPrice, intent.TakeProfitPrice,
		intent.ExpireAt.Format(time.RFC3339))
	return nil
}

// WorkingLegs returns all working legs in submission order
func (m *Manager) WorkingLegs() []*types.WorkingStopLeg {
	return m.legs
}

// WorkingOrderCount returns the number of working legs
func (m *Manager) WorkingOrderCount() int {
	return len(m.legs)
}

// TrailStop replaces the price of a working stop-loss leg. The modification
// is price-only; quantity is untouched. The registry is updated only after
// the venue acknowledges.
func (m *Manager) TrailStop(leg *types.WorkingStopLeg, newPrice decimal.Decimal) error {
	if leg.Role != types.RoleStopLoss {
		return fmt.Errorf("refusing to trail %s leg %s", leg.Role, leg.OrderID)
	}
	if err := m.exec.ModifyOrder(leg.OrderID, newPrice); err != nil {
		return fmt.Errorf("stop modification rejected: %w", err)
	}
	m.logger.Info("Trailing stop %s: %s -> %s", leg.OrderID, leg.Price, newPrice)
	leg.Price = newPrice
	return nil
}

// ExpireStale cancels entry orders whose GTD expiry has passed without a
// fill and drops their linked legs. The bar opening exactly at the expiry
// can still fill the entry, so cancellation waits until the window is
// wholly past. Venues that enforce GTD natively will already have
// cancelled theirs; the registry still has to converge.
func (m *Manager) ExpireStale(now time.Time) {
	for entryID, br := range m.brackets {
		if !m.hasLeg(entryID) {
			continue // entry already filled or removed
		}
		if !now.After(br.expireAt) {
			continue
		}
		if err := m.exec.CancelOrder(entryID); err != nil {
			m.logger.Error("Failed to cancel expired entry %s: %v", entryID, err)
			continue
		}
		m.logger.Info("Entry %s expired unfilled, bracket cancelled", entryID)
		m.removeBracket(entryID)
	}
}

// Reconcile converges the registry with the observed position state for
// venues that report fills only through the position. A working entry while
// a position is open means the entry filled; protective legs outliving a
// flat position mean the bracket finished and can be dropped. An entry
// resting while flat is simply untriggered and stays.
func (m *Manager) Reconcile(flat bool) {
	for entryID := range m.brackets {
		entryWorking := m.hasLeg(entryID)
		switch {
		case !flat && entryWorking:
			m.logger.Info("Entry %s filled, protective legs active", entryID)
			m.removeLeg(entryID)
		case flat && !entryWorking:
			m.logger.Info("Position closed, clearing bracket of %s", entryID)
			m.removeBracket(entryID)
		}
	}
}

// OnEntryFilled removes the filled entry leg, leaving the protective legs
// working.
func (m *Manager) OnEntryFilled(entryID string) {
	m.removeLeg(entryID)
}

// OnLegClosed removes a closed protective leg and its one-cancels-other
// sibling, ending the bracket.
func (m *Manager) OnLegClosed(orderID string) {
	for entryID, br := range m.brackets {
		for _, id := range br.legIDs {
			if id == orderID {
				m.removeBracket(entryID)
				return
			}
		}
	}
	// Not one of ours; nothing to do.
}

// CancelAll cancels every working leg, used on shutdown
func (m *Manager) CancelAll() {
	for _, leg := range m.legs {
		if err := m.exec.CancelOrder(leg.OrderID); err != nil {
			m.logger.Error("Failed to cancel %s leg %s: %v", leg.Role, leg.OrderID, err)
		}
	}
	m.legs = nil
	m.brackets = make(map[string]*bracket)
}

// Reset drops all registry state without touching the venue
func (m *Manager) Reset() {
	m.legs = nil
	m.brackets = make(map[string]*bracket)
}

func (m *Manager) hasLeg(orderID string) bool {
	for _, leg := range m.legs {
		if leg.OrderID == orderID {
			return true
		}
	}
	return false
}

func (m *Manager) removeLeg(orderID string) {
	for i, leg := range m.legs {
		if leg.OrderID == orderID {
			m.legs = append(m.legs[:i], m.legs[i+1:]...)
			return
		}
	}
}

func (m *Manager) removeBracket(entryID string) {
	br, ok := m.brackets[entryID]
	if !ok {
		return
	}
	for _, id := range br.legIDs {
		m.removeLeg(id)
	}
	delete(m.brackets, entryID)
}
