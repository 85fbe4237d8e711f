package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exit reason constants
const (
	ExitTargetReached = "target_reached"
	ExitStopLoss      = "stop_loss"
	ExitSignal        = "signal"
	ExitManual        = "manual"
)

// Confidence history trigger constants
const (
	TriggerTradeOutcome = "trade_outcome"
	TriggerManualReview = "manual_review"
)

// Confidence history actor constants
const (
	ActorSystem = "system"
	ActorHuman  = "human"
)

// TradeOutcome links a closed order back to its originating decision.
// Created once, when the position fully closes.
type TradeOutcome struct {
	ID                 int             `json:"id"`
	OrderID            int             `json:"order_id"`
	DecisionID         *int            `json:"decision_id,omitempty"`
	AutomationID       int             `json:"automation_id"`
	UserID             string          `json:"user_id"`
	Symbol             string          `json:"symbol"`
	EntryPrice         decimal.Decimal `json:"entry_price"`
	ExitPrice          decimal.Decimal `json:"exit_price"`
	Quantity           decimal.Decimal `json:"quantity"`
	Pnl                decimal.Decimal `json:"pnl"`
	PnlPercent         decimal.Decimal `json:"pnl_percent"`
	Capital            decimal.Decimal `json:"capital"`
	HoldingPeriodHours int             `json:"holding_period_hours"`
	ExitReason         string          `json:"exit_reason"`
	UserOverride       bool            `json:"user_override"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ConfidenceHistory is one append-only row recording a confidence
// mutation (or a declined one) for a decision. Rows are never updated
// or deleted.
type ConfidenceHistory struct {
	ID                 int       `json:"id"`
	DecisionID         int       `json:"decision_id"`
	OriginalConfidence float64   `json:"original_confidence"`
	AdjustedConfidence float64   `json:"adjusted_confidence"`
	Trigger            string    `json:"trigger"`
	Actor              string    `json:"actor"`
	Note               string    `json:"note,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// PaperPosition is a persisted snapshot of the paper-trading position
// book, used to rebuild average cost after a restart.
type PaperPosition struct {
	ID           int             `json:"id"`
	AutomationID int             `json:"automation_id"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	OpenedAt     time.Time       `json:"opened_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
