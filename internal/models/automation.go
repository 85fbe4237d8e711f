package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Automation status constants
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusPaused    = "paused"
	StatusRejected  = "rejected"
)

// Trading mode constants
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Approval mode constants
const (
	ApprovalAuto   = "auto"
	ApprovalManual = "manual"
)

// Risk tolerance constants
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// Automation represents one user-approved strategy instance under
// lifecycle management.
type Automation struct {
	ID                  int             `json:"id"`
	UserID              string          `json:"user_id"`
	AccountID           string          `json:"account_id"`
	ProfitTargetPercent decimal.Decimal `json:"profit_target_percent"`
	MaxLossPercent      decimal.Decimal `json:"max_loss_percent"`
	TimeframeDays       int             `json:"timeframe_days"`
	RiskTolerance       string          `json:"risk_tolerance"`
	Symbols             []string        `json:"symbols"`
	StrategyRules       json.RawMessage `json:"strategy_rules,omitempty"`
	TradingMode         string          `json:"trading_mode"`
	ApprovalMode        string          `json:"approval_mode"`
	Capital             decimal.Decimal `json:"capital"`
	Status              string          `json:"status"`
	Confidence          float64         `json:"confidence"`
	LiveConsentAt       *time.Time      `json:"live_consent_at,omitempty"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	ActivatedAt         *time.Time      `json:"activated_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Validate checks goal parameters against the allowed ranges.
func (a *Automation) Validate() error {
	if !a.ProfitTargetPercent.IsPositive() {
		return fmt.Errorf("profit_target_percent must be positive")
	}
	if !a.MaxLossPercent.IsPositive() {
		return fmt.Errorf("max_loss_percent must be positive")
	}
	if a.TimeframeDays < 1 || a.TimeframeDays > 365 {
		return fmt.Errorf("timeframe_days must be between 1 and 365")
	}
	if !a.Capital.IsPositive() {
		return fmt.Errorf("capital must be positive")
	}
	switch a.RiskTolerance {
	case RiskLow, RiskModerate, RiskHigh:
	default:
		return fmt.Errorf("invalid risk_tolerance: %s", a.RiskTolerance)
	}
	switch a.TradingMode {
	case ModePaper, ModeLive:
	default:
		return fmt.Errorf("invalid trading_mode: %s", a.TradingMode)
	}
	switch a.ApprovalMode {
	case ApprovalAuto, ApprovalManual:
	default:
		return fmt.Errorf("invalid approval_mode: %s", a.ApprovalMode)
	}
	if len(a.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	return nil
}

// CanActivate reports whether the automation may enter the active state.
// Live mode additionally requires recorded consent.
func (a *Automation) CanActivate() error {
	if a.Status != StatusApproved {
		return fmt.Errorf("cannot activate automation in status %s", a.Status)
	}
	if a.TradingMode == ModeLive && a.LiveConsentAt == nil {
		return fmt.Errorf("live trading requires recorded consent")
	}
	return nil
}

// IsTerminal reports whether no further trading can happen without
// an explicit resume.
func (a *Automation) IsTerminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusRejected
}

// AutomationEvent is one audit row for a lifecycle transition.
type AutomationEvent struct {
	ID           int       `json:"id"`
	AutomationID int       `json:"automation_id"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	Reason       string    `json:"reason,omitempty"`
	Actor        string    `json:"actor"`
	CreatedAt    time.Time `json:"created_at"`
}
