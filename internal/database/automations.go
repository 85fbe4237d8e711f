package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// CreateAutomation inserts a new automation in pending status
func (db *DB) CreateAutomation(a *models.Automation) error {
	query := `
		INSERT INTO automations (
			user_id, account_id, profit_target_percent, max_loss_percent,
			timeframe_days, risk_tolerance, symbols, strategy_rules,
			trading_mode, approval_mode, capital, status, confidence,
			live_consent_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	now := time.Now()
	if a.Status == "" {
		a.Status = models.StatusPending
	}

	var rules interface{}
	if len(a.StrategyRules) > 0 {
		rules = []byte(a.StrategyRules)
	}

	err := db.conn.QueryRow(query,
		a.UserID, a.AccountID, a.ProfitTargetPercent, a.MaxLossPercent,
		a.TimeframeDays, a.RiskTolerance, pq.Array(a.Symbols), rules,
		a.TradingMode, a.ApprovalMode, a.Capital, a.Status, a.Confidence,
		a.LiveConsentAt, now, now,
	).Scan(&a.ID)

	if err != nil {
		return fmt.Errorf("failed to create automation: %w", err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

const automationColumns = `
	id, user_id, account_id, profit_target_percent, max_loss_percent,
	timeframe_days, risk_tolerance, symbols, strategy_rules,
	trading_mode, approval_mode, capital, status, confidence,
	live_consent_at, approved_at, activated_at, completed_at, created_at, updated_at
`

// GetAutomationByID retrieves an automation by ID
func (db *DB) GetAutomationByID(id int) (*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = $1`
	return db.scanSingleAutomation(db.conn.QueryRow(query, id))
}

// GetAutomationsByStatus retrieves all automations in a given status
func (db *DB) GetAutomationsByStatus(status string) ([]*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE status = $1 ORDER BY id`
	return db.scanAutomations(db.conn.Query(query, status))
}

// GetAutomationsByUser retrieves all automations owned by a user
func (db *DB) GetAutomationsByUser(userID string) ([]*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE user_id = $1 ORDER BY created_at DESC`
	return db.scanAutomations(db.conn.Query(query, userID))
}

func (db *DB) scanSingleAutomation(row *sql.Row) (*models.Automation, error) {
	var a models.Automation
	var rules []byte
	var liveConsentAt, approvedAt, activatedAt, completedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.UserID, &a.AccountID, &a.ProfitTargetPercent, &a.MaxLossPercent,
		&a.TimeframeDays, &a.RiskTolerance, pq.Array(&a.Symbols), &rules,
		&a.TradingMode, &a.ApprovalMode, &a.Capital, &a.Status, &a.Confidence,
		&liveConsentAt, &approvedAt, &activatedAt, &completedAt, &a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("automation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}

	a.StrategyRules = rules
	if liveConsentAt.Valid {
		a.LiveConsentAt = &liveConsentAt.Time
	}
	if approvedAt.Valid {
		a.ApprovedAt = &approvedAt.Time
	}
	if activatedAt.Valid {
		a.ActivatedAt = &activatedAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}

	return &a, nil
}

func (db *DB) scanAutomations(rows *sql.Rows, err error) ([]*models.Automation, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}
	defer rows.Close()

	var automations []*models.Automation
	for rows.Next() {
		var a models.Automation
		var rules []byte
		var liveConsentAt, approvedAt, activatedAt, completedAt sql.NullTime

		err := rows.Scan(
			&a.ID, &a.UserID, &a.AccountID, &a.ProfitTargetPercent, &a.MaxLossPercent,
			&a.TimeframeDays, &a.RiskTolerance, pq.Array(&a.Symbols), &rules,
			&a.TradingMode, &a.ApprovalMode, &a.Capital, &a.Status, &a.Confidence,
			&liveConsentAt, &approvedAt, &activatedAt, &completedAt, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		a.StrategyRules = rules
		if liveConsentAt.Valid {
			a.LiveConsentAt = &liveConsentAt.Time
		}
		if approvedAt.Valid {
			a.ApprovedAt = &approvedAt.Time
		}
		if activatedAt.Valid {
			a.ActivatedAt = &activatedAt.Time
		}
		if completedAt.Valid {
			a.CompletedAt = &completedAt.Time
		}

		automations = append(automations, &a)
	}

	return automations, nil
}

// TransitionAutomation atomically moves an automation from one status to
// another and records an audit row in the same transaction. It returns
// false without error when the automation is already in the target status,
// which makes repeated pause/complete calls idempotent.
func (db *DB) TransitionAutomation(id int, from []string, to, reason, actor string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT status FROM automations WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("automation not found: %d", id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock automation: %w", err)
	}

	if current == to {
		return false, nil
	}

	allowed := false
	for _, f := range from {
		if current == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, fmt.Errorf("invalid transition %s -> %s for automation %d", current, to, id)
	}

	now := time.Now()
	timestampColumn := ""
	switch to {
	case models.StatusApproved:
		timestampColumn = ", approved_at = $3"
	case models.StatusActive:
		timestampColumn = ", activated_at = $3"
	case models.StatusCompleted:
		timestampColumn = ", completed_at = $3"
	}

	query := `UPDATE automations SET status = $2, updated_at = $3` + timestampColumn + ` WHERE id = $1`
	if _, err := tx.Exec(query, id, to, now); err != nil {
		return false, fmt.Errorf("failed to update automation status: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO automation_events (automation_id, from_status, to_status, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, current, to, reason, actor, now)
	if err != nil {
		return false, fmt.Errorf("failed to record automation event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transition: %w", err)
	}
	return true, nil
}

// GetAutomationEvents retrieves the audit trail for an automation
func (db *DB) GetAutomationEvents(automationID int) ([]*models.AutomationEvent, error) {
	query := `
		SELECT id, automation_id, from_status, to_status, reason, actor, created_at
		FROM automation_events
		WHERE automation_id = $1
		ORDER BY id
	`
	rows, err := db.conn.Query(query, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation events: %w", err)
	}
	defer rows.Close()

	var events []*models.AutomationEvent
	for rows.Next() {
		var e models.AutomationEvent
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.AutomationID, &e.FromStatus, &e.ToStatus, &reason, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan automation event: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		events = append(events, &e)
	}
	return events, nil
}

// DeleteAutomation removes an automation and, via cascade, its orders
func (db *DB) DeleteAutomation(id int) error {
	result, err := db.conn.Exec(`DELETE FROM automations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("automation not found: %d", id)
	}
	return nil
}
