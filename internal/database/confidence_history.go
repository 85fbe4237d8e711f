package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// CreateConfidenceHistory appends a confidence mutation row. The ledger is
// append-only: there are deliberately no update or delete operations.
func (db *DB) CreateConfidenceHistory(h *models.ConfidenceHistory) error {
	query := `
		INSERT INTO confidence_history (
			decision_id, original_confidence, adjusted_confidence,
			trigger, actor, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query,
		h.DecisionID, h.OriginalConfidence, h.AdjustedConfidence,
		h.Trigger, h.Actor, h.Note, now,
	).Scan(&h.ID)

	if err != nil {
		return fmt.Errorf("failed to create confidence history: %w", err)
	}
	h.CreatedAt = now
	return nil
}

// GetConfidenceHistoryByDecision retrieves the ledger for a decision, oldest first
func (db *DB) GetConfidenceHistoryByDecision(decisionID int) ([]*models.ConfidenceHistory, error) {
	query := `
		SELECT id, decision_id, original_confidence, adjusted_confidence,
		       trigger, actor, note, created_at
		FROM confidence_history
		WHERE decision_id = $1
		ORDER BY id
	`
	rows, err := db.conn.Query(query, decisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query confidence history: %w", err)
	}
	defer rows.Close()

	var history []*models.ConfidenceHistory
	for rows.Next() {
		var h models.ConfidenceHistory
		var note sql.NullString
		if err := rows.Scan(&h.ID, &h.DecisionID, &h.OriginalConfidence, &h.AdjustedConfidence,
			&h.Trigger, &h.Actor, &note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan confidence history: %w", err)
		}
		if note.Valid {
			h.Note = note.String
		}
		history = append(history, &h)
	}
	return history, nil
}
