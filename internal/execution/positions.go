package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// PositionStore persists position-book snapshots for crash recovery.
type PositionStore interface {
	UpsertPaperPosition(automationID int, symbol string, quantity, averageCost decimal.Decimal, openedAt time.Time) error
	DeletePaperPosition(automationID int, symbol string) error
}

type positionKey struct {
	automationID int
	symbol       string
}

type position struct {
	quantity    decimal.Decimal
	averageCost decimal.Decimal
	openedAt    time.Time
}

// PositionBook tracks running average-cost positions keyed by
// (automation, symbol). It is owned by the order fulfillment layer; no
// automation's position state is visible to another.
type PositionBook struct {
	mu        sync.Mutex
	positions map[positionKey]position
}

// NewPositionBook creates an empty position book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[positionKey]position)}
}

// Restore seeds the book from persisted snapshots.
func (b *PositionBook) Restore(snapshots []*models.PaperPosition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range snapshots {
		key := positionKey{automationID: s.AutomationID, symbol: s.Symbol}
		b.positions[key] = position{quantity: s.Quantity, averageCost: s.AverageCost, openedAt: s.OpenedAt}
	}
}

// ApplyBuy folds a buy fill into the average cost for the key.
func (b *PositionBook) ApplyBuy(automationID int, symbol string, quantity, price decimal.Decimal) (newQuantity, averageCost decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := positionKey{automationID: automationID, symbol: symbol}
	pos := b.positions[key]
	if pos.quantity.IsZero() {
		pos.openedAt = time.Now()
	}

	totalCost := pos.averageCost.Mul(pos.quantity).Add(price.Mul(quantity))
	pos.quantity = pos.quantity.Add(quantity)
	pos.averageCost = totalCost.Div(pos.quantity)
	b.positions[key] = pos

	return pos.quantity, pos.averageCost
}

// ApplySell reduces the position and returns the realized P&L
// (executedPrice - averageCost) x quantity. Selling more than is held, or
// with no position at all, is an error.
func (b *PositionBook) ApplySell(automationID int, symbol string, quantity, price decimal.Decimal) (pnl, remaining decimal.Decimal, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := positionKey{automationID: automationID, symbol: symbol}
	pos, ok := b.positions[key]
	if !ok || pos.quantity.IsZero() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no position to close for %s", symbol)
	}
	if quantity.GreaterThan(pos.quantity) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sell quantity %s exceeds position %s for %s",
			quantity.String(), pos.quantity.String(), symbol)
	}

	pnl = price.Sub(pos.averageCost).Mul(quantity)
	pos.quantity = pos.quantity.Sub(quantity)
	if pos.quantity.IsZero() {
		delete(b.positions, key)
	} else {
		b.positions[key] = pos
	}

	return pnl, pos.quantity, nil
}

// AverageCost returns the held quantity and average cost for a key.
func (b *PositionBook) AverageCost(automationID int, symbol string) (quantity, averageCost decimal.Decimal, held bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[positionKey{automationID: automationID, symbol: symbol}]
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return pos.quantity, pos.averageCost, true
}

// OpenedAt returns when the position for a key was first opened.
func (b *PositionBook) OpenedAt(automationID int, symbol string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[positionKey{automationID: automationID, symbol: symbol}]
	if !ok {
		return time.Time{}, false
	}
	return pos.openedAt, true
}
