package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order side constants
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order type constants
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeSL     = "SL"
	OrderTypeSLM    = "SL-M"
)

// Order status constants
const (
	OrderStatusPendingApproval = "PENDING_APPROVAL"
	OrderStatusOpen            = "OPEN"
	OrderStatusComplete        = "COMPLETE"
	OrderStatusRejected        = "REJECTED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusFailed          = "FAILED"
)

// Order represents one simulated or real trade instruction tied to
// an automation. Pnl stays null until the position closes; a SELL that
// closes a tracked position always carries a non-null pnl.
type Order struct {
	ID               int                 `json:"id"`
	AutomationID     int                 `json:"automation_id"`
	DecisionID       *int                `json:"decision_id,omitempty"`
	IdempotencyKey   string              `json:"idempotency_key"`
	Symbol           string              `json:"symbol"`
	Exchange         string              `json:"exchange"`
	Side             string              `json:"side"`
	OrderType        string              `json:"order_type"`
	Quantity         decimal.Decimal     `json:"quantity"`
	Price            decimal.Decimal     `json:"price"`
	TriggerPrice     decimal.NullDecimal `json:"trigger_price,omitempty"`
	TriggerReason    string              `json:"trigger_reason,omitempty"`
	Status           string              `json:"status"`
	ExecutedPrice    decimal.NullDecimal `json:"executed_price,omitempty"`
	ExecutedQuantity decimal.Decimal     `json:"executed_quantity"`
	Pnl              decimal.NullDecimal `json:"pnl,omitempty"`
	PaperTrade       bool                `json:"paper_trade"`
	BrokerOrderID    string              `json:"broker_order_id,omitempty"`
	StatusReason     string              `json:"status_reason,omitempty"`
	PlacedAt         time.Time           `json:"placed_at"`
	ExecutedAt       *time.Time          `json:"executed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// IsClosing reports whether a completed order realizes P&L.
func (o *Order) IsClosing() bool {
	return o.Side == SideSell && o.Status == OrderStatusComplete && o.Pnl.Valid
}
