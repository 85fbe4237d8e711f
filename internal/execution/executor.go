package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/marketdata"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Fill is the terminal result of executing one order. OpenedAt is set on
// closing SELLs to when the position being closed was first opened.
type Fill struct {
	Status           string
	ExecutedPrice    decimal.NullDecimal
	ExecutedQuantity decimal.Decimal
	Pnl              decimal.NullDecimal
	OpenedAt         *time.Time
	BrokerOrderID    string
	Reason           string
}

// Executor executes one order against current market data. The paper
// simulator and the live router implement the same contract so downstream
// consumers are execution-mode agnostic.
type Executor interface {
	Execute(ctx context.Context, order *models.Order, quote marketdata.Quote) (*Fill, error)
}
