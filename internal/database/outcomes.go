package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// CreateTradeOutcome inserts a closure record for an order
func (db *DB) CreateTradeOutcome(o *models.TradeOutcome) error {
	query := `
		INSERT INTO trade_outcomes (
			order_id, decision_id, automation_id, user_id, symbol,
			entry_price, exit_price, quantity, pnl, pnl_percent, capital,
			holding_period_hours, exit_reason, user_override, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query,
		o.OrderID, o.DecisionID, o.AutomationID, o.UserID, o.Symbol,
		o.EntryPrice, o.ExitPrice, o.Quantity, o.Pnl, o.PnlPercent, o.Capital,
		o.HoldingPeriodHours, o.ExitReason, o.UserOverride, now,
	).Scan(&o.ID)

	if err != nil {
		return fmt.Errorf("failed to create trade outcome: %w", err)
	}
	o.CreatedAt = now
	return nil
}

// OutcomeExistsForOrder reports whether a closure record is already present
func (db *DB) OutcomeExistsForOrder(orderID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM trade_outcomes WHERE order_id = $1)`
	var exists bool
	err := db.conn.QueryRow(query, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check trade outcome existence: %w", err)
	}
	return exists, nil
}

// GetTradeOutcomeByOrder retrieves the closure record for an order
func (db *DB) GetTradeOutcomeByOrder(orderID int) (*models.TradeOutcome, error) {
	query := `
		SELECT id, order_id, decision_id, automation_id, user_id, symbol,
		       entry_price, exit_price, quantity, pnl, pnl_percent, capital,
		       holding_period_hours, exit_reason, user_override, created_at
		FROM trade_outcomes
		WHERE order_id = $1
	`
	var o models.TradeOutcome
	var decisionID sql.NullInt64

	err := db.conn.QueryRow(query, orderID).Scan(
		&o.ID, &o.OrderID, &decisionID, &o.AutomationID, &o.UserID, &o.Symbol,
		&o.EntryPrice, &o.ExitPrice, &o.Quantity, &o.Pnl, &o.PnlPercent, &o.Capital,
		&o.HoldingPeriodHours, &o.ExitReason, &o.UserOverride, &o.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trade outcome not found for order: %d", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade outcome: %w", err)
	}
	if decisionID.Valid {
		id := int(decisionID.Int64)
		o.DecisionID = &id
	}
	return &o, nil
}

// WinRateStats aggregates a user's closed-trade performance over a window
type WinRateStats struct {
	Trades       int             `json:"trades"`
	Wins         int             `json:"wins"`
	WinRate      float64         `json:"win_rate"`
	AvgReturnPct decimal.Decimal `json:"avg_return_pct"`
}

// GetWinRateStats returns a user's win rate and average return since a cutoff
func (db *DB) GetWinRateStats(userID string, since time.Time) (*WinRateStats, error) {
	query := `
		SELECT
			COUNT(*) as trades,
			COUNT(*) FILTER (WHERE pnl > 0) as wins,
			COALESCE(AVG(pnl_percent), 0) as avg_return_pct
		FROM trade_outcomes
		WHERE user_id = $1 AND created_at >= $2
	`
	var s WinRateStats
	err := db.conn.QueryRow(query, userID, since).Scan(&s.Trades, &s.Wins, &s.AvgReturnPct)
	if err != nil {
		return nil, fmt.Errorf("failed to get win rate stats: %w", err)
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return &s, nil
}
