package database

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// UpsertPaperPosition persists a position-book snapshot for one
// (automation, symbol) key
func (db *DB) UpsertPaperPosition(automationID int, symbol string, quantity, averageCost decimal.Decimal, openedAt time.Time) error {
	query := `
		INSERT INTO paper_positions (automation_id, symbol, quantity, average_cost, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (automation_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_cost = EXCLUDED.average_cost,
			opened_at = EXCLUDED.opened_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := db.conn.Exec(query, automationID, symbol, quantity, averageCost, openedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert paper position: %w", err)
	}
	return nil
}

// DeletePaperPosition removes a snapshot once a position fully closes
func (db *DB) DeletePaperPosition(automationID int, symbol string) error {
	_, err := db.conn.Exec(`DELETE FROM paper_positions WHERE automation_id = $1 AND symbol = $2`, automationID, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete paper position: %w", err)
	}
	return nil
}

// GetAllPaperPositions loads every snapshot, used to rebuild the in-memory
// book on startup
func (db *DB) GetAllPaperPositions() ([]*models.PaperPosition, error) {
	query := `
		SELECT id, automation_id, symbol, quantity, average_cost, opened_at, updated_at
		FROM paper_positions
		ORDER BY automation_id, symbol
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query paper positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.PaperPosition
	for rows.Next() {
		var p models.PaperPosition
		if err := rows.Scan(&p.ID, &p.AutomationID, &p.Symbol, &p.Quantity, &p.AverageCost, &p.OpenedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan paper position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, nil
}
