package models

import (
	"encoding/json"
	"time"
)

// Decision type constants
const (
	DecisionStockSelection  = "stock_selection"
	DecisionPortfolioAction = "portfolio_action"
)

// Market regime labels, ordered roughly by risk. RegimeHighVolatility is
// the highest-risk label and blocks unattended execution.
const (
	RegimeBull           = "bull"
	RegimeBear           = "bear"
	RegimeConsolidation  = "consolidation"
	RegimeHighVolatility = "high_volatility"
)

// Decision is one AI-attributable judgment that produced one or more
// orders. The core only consumes decisions, it never generates them.
type Decision struct {
	ID               int             `json:"id"`
	UserID           string          `json:"user_id"`
	AutomationID     *int            `json:"automation_id,omitempty"`
	DecisionType     string          `json:"decision_type"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Regime           string          `json:"regime"`
	RegimeConfidence float64         `json:"regime_confidence"`
	Confidence       float64         `json:"confidence"`
	Attributions     []Attribution   `json:"attributions,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ReferencedSymbols extracts the symbol universe named by the decision payload.
func (d *Decision) ReferencedSymbols() []string {
	if len(d.Payload) == 0 {
		return nil
	}
	var payload struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		return nil
	}
	return payload.Symbols
}

// Attribution is a weighted link from a decision to one contributing
// data source. Weights are non-negative and adjusted post-hoc by
// observed trade outcomes.
type Attribution struct {
	ID         int       `json:"id"`
	DecisionID int       `json:"decision_id"`
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol,omitempty"`
	Weight     float64   `json:"weight"`
	Detail     string    `json:"detail,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
