package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// CreateDecision inserts a decision supplied by the AI decision source,
// together with its attributions
func (db *DB) CreateDecision(d *models.Decision) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin decision transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var payload interface{}
	if len(d.Payload) > 0 {
		payload = []byte(d.Payload)
	}

	err = tx.QueryRow(`
		INSERT INTO decisions (user_id, automation_id, decision_type, payload, regime, regime_confidence, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, d.UserID, d.AutomationID, d.DecisionType, payload, d.Regime, d.RegimeConfidence, d.Confidence, now).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}

	for i := range d.Attributions {
		attr := &d.Attributions[i]
		attr.DecisionID = d.ID
		err = tx.QueryRow(`
			INSERT INTO decision_attributions (decision_id, source, symbol, weight, detail, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, d.ID, attr.Source, attr.Symbol, attr.Weight, attr.Detail, now).Scan(&attr.ID)
		if err != nil {
			return fmt.Errorf("failed to create attribution: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}
	d.CreatedAt = now
	return nil
}

// GetDecisionByID retrieves a decision with its attributions
func (db *DB) GetDecisionByID(id int) (*models.Decision, error) {
	query := `
		SELECT id, user_id, automation_id, decision_type, payload, regime, regime_confidence, confidence, created_at
		FROM decisions
		WHERE id = $1
	`
	d, err := db.scanSingleDecision(db.conn.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	if err := db.loadAttributions(d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetLatestDecisionForAutomation retrieves the most recent decision
// attached to an automation, or nil when none exists
func (db *DB) GetLatestDecisionForAutomation(automationID int) (*models.Decision, error) {
	query := `
		SELECT id, user_id, automation_id, decision_type, payload, regime, regime_confidence, confidence, created_at
		FROM decisions
		WHERE automation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	d, err := db.scanSingleDecision(db.conn.QueryRow(query, automationID))
	if err != nil {
		if err == errDecisionNotFound {
			return nil, nil
		}
		return nil, err
	}
	if err := db.loadAttributions(d); err != nil {
		return nil, err
	}
	return d, nil
}

var errDecisionNotFound = fmt.Errorf("decision not found")

func (db *DB) scanSingleDecision(row *sql.Row) (*models.Decision, error) {
	var d models.Decision
	var automationID sql.NullInt64
	var payload []byte

	err := row.Scan(&d.ID, &d.UserID, &automationID, &d.DecisionType, &payload,
		&d.Regime, &d.RegimeConfidence, &d.Confidence, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	d.Payload = payload
	if automationID.Valid {
		id := int(automationID.Int64)
		d.AutomationID = &id
	}
	return &d, nil
}

func (db *DB) loadAttributions(d *models.Decision) error {
	rows, err := db.conn.Query(`
		SELECT id, decision_id, source, symbol, weight, detail, updated_at
		FROM decision_attributions
		WHERE decision_id = $1
		ORDER BY id
	`, d.ID)
	if err != nil {
		return fmt.Errorf("failed to query attributions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Attribution
		var symbol, detail sql.NullString
		if err := rows.Scan(&a.ID, &a.DecisionID, &a.Source, &symbol, &a.Weight, &detail, &a.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan attribution: %w", err)
		}
		if symbol.Valid {
			a.Symbol = symbol.String
		}
		if detail.Valid {
			a.Detail = detail.String
		}
		d.Attributions = append(d.Attributions, a)
	}
	return nil
}

// UpdateAttributionWeight persists an adjusted attribution weight
func (db *DB) UpdateAttributionWeight(id int, weight float64) error {
	result, err := db.conn.Exec(`
		UPDATE decision_attributions SET weight = $2, updated_at = $3 WHERE id = $1
	`, id, weight, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update attribution weight: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("attribution not found: %d", id)
	}
	return nil
}

// UpdateDecisionConfidence persists an adjusted decision confidence
func (db *DB) UpdateDecisionConfidence(id int, confidence float64) error {
	result, err := db.conn.Exec(`
		UPDATE decisions SET confidence = $2 WHERE id = $1
	`, id, confidence)
	if err != nil {
		return fmt.Errorf("failed to update decision confidence: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("decision not found: %d", id)
	}
	return nil
}
