package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// CreateOrder inserts a new order record
func (db *DB) CreateOrder(o *models.Order) error {
	query := `
		INSERT INTO orders (
			automation_id, decision_id, idempotency_key, symbol, exchange,
			side, order_type, quantity, price, trigger_price, trigger_reason,
			status, executed_price, executed_quantity, pnl, paper_trade,
			broker_order_id, status_reason, placed_at, executed_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		RETURNING id
	`
	now := time.Now()
	if o.PlacedAt.IsZero() {
		o.PlacedAt = now
	}

	err := db.conn.QueryRow(query,
		o.AutomationID, o.DecisionID, o.IdempotencyKey, o.Symbol, o.Exchange,
		o.Side, o.OrderType, o.Quantity, o.Price, o.TriggerPrice, o.TriggerReason,
		o.Status, o.ExecutedPrice, o.ExecutedQuantity, o.Pnl, o.PaperTrade,
		o.BrokerOrderID, o.StatusReason, o.PlacedAt, o.ExecutedAt, now,
	).Scan(&o.ID)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	o.CreatedAt = now
	return nil
}

const orderColumns = `
	id, automation_id, decision_id, idempotency_key, symbol, exchange,
	side, order_type, quantity, price, trigger_price, trigger_reason,
	status, executed_price, executed_quantity, pnl, paper_trade,
	broker_order_id, status_reason, placed_at, executed_at, created_at
`

// GetOrderByID retrieves an order by ID
func (db *DB) GetOrderByID(id int) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return db.scanSingleOrder(db.conn.QueryRow(query, id))
}

// GetOrdersByAutomation retrieves orders for an automation, newest first
func (db *DB) GetOrdersByAutomation(automationID int, limit int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE automation_id = $1 ORDER BY placed_at DESC LIMIT $2`
	return db.scanOrders(db.conn.Query(query, automationID, limit))
}

// GetPendingApprovalOrders retrieves orders awaiting manual approval for a user
func (db *DB) GetPendingApprovalOrders(userID string) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		  AND automation_id IN (SELECT id FROM automations WHERE user_id = $2)
		ORDER BY placed_at
	`
	return db.scanOrders(db.conn.Query(query, models.OrderStatusPendingApproval, userID))
}

// GetOpenOrdersByAutomation retrieves resting orders still awaiting a fill
// (unfilled limit and stop orders), oldest first
func (db *DB) GetOpenOrdersByAutomation(automationID int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE automation_id = $1 AND status = $2 ORDER BY placed_at`
	return db.scanOrders(db.conn.Query(query, automationID, models.OrderStatusOpen))
}

func (db *DB) scanSingleOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	var decisionID sql.NullInt64
	var triggerReason, brokerOrderID, statusReason sql.NullString
	var executedAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.AutomationID, &decisionID, &o.IdempotencyKey, &o.Symbol, &o.Exchange,
		&o.Side, &o.OrderType, &o.Quantity, &o.Price, &o.TriggerPrice, &triggerReason,
		&o.Status, &o.ExecutedPrice, &o.ExecutedQuantity, &o.Pnl, &o.PaperTrade,
		&brokerOrderID, &statusReason, &o.PlacedAt, &executedAt, &o.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	applyOrderNulls(&o, decisionID, triggerReason, brokerOrderID, statusReason, executedAt)
	return &o, nil
}

func (db *DB) scanOrders(rows *sql.Rows, err error) ([]*models.Order, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		var decisionID sql.NullInt64
		var triggerReason, brokerOrderID, statusReason sql.NullString
		var executedAt sql.NullTime

		err := rows.Scan(
			&o.ID, &o.AutomationID, &decisionID, &o.IdempotencyKey, &o.Symbol, &o.Exchange,
			&o.Side, &o.OrderType, &o.Quantity, &o.Price, &o.TriggerPrice, &triggerReason,
			&o.Status, &o.ExecutedPrice, &o.ExecutedQuantity, &o.Pnl, &o.PaperTrade,
			&brokerOrderID, &statusReason, &o.PlacedAt, &executedAt, &o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		applyOrderNulls(&o, decisionID, triggerReason, brokerOrderID, statusReason, executedAt)
		orders = append(orders, &o)
	}

	return orders, nil
}

func applyOrderNulls(o *models.Order, decisionID sql.NullInt64, triggerReason, brokerOrderID, statusReason sql.NullString, executedAt sql.NullTime) {
	if decisionID.Valid {
		id := int(decisionID.Int64)
		o.DecisionID = &id
	}
	if triggerReason.Valid {
		o.TriggerReason = triggerReason.String
	}
	if brokerOrderID.Valid {
		o.BrokerOrderID = brokerOrderID.String
	}
	if statusReason.Valid {
		o.StatusReason = statusReason.String
	}
	if executedAt.Valid {
		o.ExecutedAt = &executedAt.Time
	}
}

// UpdateOrderExecution persists the fill result for an order
func (db *DB) UpdateOrderExecution(o *models.Order) error {
	query := `
		UPDATE orders SET
			status = $2, executed_price = $3, executed_quantity = $4, pnl = $5,
			broker_order_id = $6, status_reason = $7, executed_at = $8
		WHERE id = $1
	`
	result, err := db.conn.Exec(query,
		o.ID, o.Status, o.ExecutedPrice, o.ExecutedQuantity, o.Pnl,
		o.BrokerOrderID, o.StatusReason, o.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order execution: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("order not found: %d", o.ID)
	}
	return nil
}

// UpdateOrderRequest modifies price/quantity of an order still awaiting approval
func (db *DB) UpdateOrderRequest(id int, quantity, price decimal.Decimal) error {
	query := `
		UPDATE orders SET quantity = $2, price = $3
		WHERE id = $1 AND status = $4
	`
	result, err := db.conn.Exec(query, id, quantity, price, models.OrderStatusPendingApproval)
	if err != nil {
		return fmt.Errorf("failed to modify order: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("order not pending approval: %d", id)
	}
	return nil
}

// StatusTransition describes an automation status change that must commit
// together with an order write.
type StatusTransition struct {
	AutomationID int
	From         []string
	To           string
	Reason       string
	Actor        string
}

// UpdateOrderExecutionWithTransition persists a fill and the consequential
// automation status transition in a single transaction. The order write and
// the transition commit together or not at all.
func (db *DB) UpdateOrderExecutionWithTransition(o *models.Order, t *StatusTransition) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE orders SET
			status = $2, executed_price = $3, executed_quantity = $4, pnl = $5,
			broker_order_id = $6, status_reason = $7, executed_at = $8
		WHERE id = $1
	`
	if _, err := tx.Exec(query,
		o.ID, o.Status, o.ExecutedPrice, o.ExecutedQuantity, o.Pnl,
		o.BrokerOrderID, o.StatusReason, o.ExecutedAt,
	); err != nil {
		return fmt.Errorf("failed to update order execution: %w", err)
	}

	if t != nil {
		var current string
		err = tx.QueryRow(`SELECT status FROM automations WHERE id = $1 FOR UPDATE`, t.AutomationID).Scan(&current)
		if err != nil {
			return fmt.Errorf("failed to lock automation: %w", err)
		}
		switch {
		case current == t.To:
			// Already there, nothing to do.
		case !transitionAllowed(current, t.From):
			log.WithFields(log.Fields{
				"automation_id": t.AutomationID,
				"current":       current,
				"requested":     t.To,
			}).Warn("dropping automation transition from unexpected status")
		default:
			now := time.Now()
			timestampColumn := ""
			if t.To == models.StatusCompleted {
				timestampColumn = ", completed_at = $3"
			}
			update := `UPDATE automations SET status = $2, updated_at = $3` + timestampColumn + ` WHERE id = $1`
			if _, err := tx.Exec(update, t.AutomationID, t.To, now); err != nil {
				return fmt.Errorf("failed to transition automation: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO automation_events (automation_id, from_status, to_status, reason, actor, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, t.AutomationID, current, t.To, t.Reason, t.Actor, now)
			if err != nil {
				return fmt.Errorf("failed to record automation event: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order transaction: %w", err)
	}
	return nil
}

// transitionAllowed reports whether the locked status is a legal source
// for the requested transition. The automation may have moved (e.g. a user
// pause) between the fill and this commit; the order write still lands but
// the transition is dropped rather than forcing an illegal edge.
func transitionAllowed(current string, from []string) bool {
	for _, f := range from {
		if current == f {
			return true
		}
	}
	return false
}

// GetDailyRealizedLoss returns the absolute sum of negative realized P&L
// across an account's orders for the given day
func (db *DB) GetDailyRealizedLoss(accountID string, day time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(ABS(SUM(o.pnl)), 0)
		FROM orders o
		JOIN automations a ON a.id = o.automation_id
		WHERE a.account_id = $1
		  AND o.pnl IS NOT NULL AND o.pnl < 0
		  AND o.executed_at >= $2 AND o.executed_at < $3
	`
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var loss decimal.Decimal
	err := db.conn.QueryRow(query, accountID, start, start.AddDate(0, 0, 1)).Scan(&loss)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get daily realized loss: %w", err)
	}
	return loss, nil
}

// GetDailyTradeCount returns the number of executed orders for an automation today
func (db *DB) GetDailyTradeCount(automationID int, day time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE automation_id = $1
		  AND status = $2
		  AND executed_at >= $3 AND executed_at < $4
	`
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var count int
	err := db.conn.QueryRow(query, automationID, models.OrderStatusComplete, start, start.AddDate(0, 0, 1)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get daily trade count: %w", err)
	}
	return count, nil
}

// GetCumulativeRealizedLoss returns the absolute sum of negative realized
// P&L over the automation's lifetime
func (db *DB) GetCumulativeRealizedLoss(automationID int) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(ABS(SUM(pnl)), 0)
		FROM orders
		WHERE automation_id = $1 AND pnl IS NOT NULL AND pnl < 0
	`
	var loss decimal.Decimal
	err := db.conn.QueryRow(query, automationID).Scan(&loss)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cumulative realized loss: %w", err)
	}
	return loss, nil
}

// GetRealizedPnl returns the net realized P&L over the automation's lifetime
func (db *DB) GetRealizedPnl(automationID int) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM orders
		WHERE automation_id = $1 AND pnl IS NOT NULL
	`
	var pnl decimal.Decimal
	err := db.conn.QueryRow(query, automationID).Scan(&pnl)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get realized pnl: %w", err)
	}
	return pnl, nil
}

// AutomationSummary aggregates order activity for one automation
type AutomationSummary struct {
	AutomationID  int             `json:"automation_id"`
	Status        string          `json:"status"`
	TotalOrders   int             `json:"total_orders"`
	OpenOrders    int             `json:"open_orders"`
	ClosedTrades  int             `json:"closed_trades"`
	WinningTrades int             `json:"winning_trades"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	WinRate       decimal.Decimal `json:"win_rate"`
}

// GetAutomationSummary returns the per-automation status summary
func (db *DB) GetAutomationSummary(automationID int) (*AutomationSummary, error) {
	query := `
		SELECT
			a.status,
			COUNT(o.id) as total_orders,
			COUNT(o.id) FILTER (WHERE o.status IN ($2, $3)) as open_orders,
			COUNT(o.id) FILTER (WHERE o.pnl IS NOT NULL) as closed_trades,
			COUNT(o.id) FILTER (WHERE o.pnl > 0) as winning_trades,
			COALESCE(SUM(o.pnl), 0) as realized_pnl
		FROM automations a
		LEFT JOIN orders o ON o.automation_id = a.id
		WHERE a.id = $1
		GROUP BY a.status
	`
	var s AutomationSummary
	s.AutomationID = automationID
	err := db.conn.QueryRow(query, automationID, models.OrderStatusOpen, models.OrderStatusPendingApproval).Scan(
		&s.Status, &s.TotalOrders, &s.OpenOrders, &s.ClosedTrades, &s.WinningTrades, &s.RealizedPnl,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("automation not found: %d", automationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation summary: %w", err)
	}

	if s.ClosedTrades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.WinningTrades)).
			Div(decimal.NewFromInt(int64(s.ClosedTrades))).
			Mul(decimal.NewFromInt(100))
	}
	return &s, nil
}
