package signal

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/marketdata"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Candidate is one proposed trade. A nil candidate means no trade this tick.
type Candidate struct {
	Symbol    string
	Side      string
	OrderType string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Reason    string
}

// Strategy turns market data plus strategy rules into a trade decision.
type Strategy interface {
	Evaluate(a *models.Automation, quotes map[string]marketdata.Quote) (*Candidate, error)
}

// momentumRules are the per-automation overrides parsed out of the
// serialized strategy rules.
type momentumRules struct {
	BuyAbovePercent  *float64 `json:"buy_above_percent"`
	SellBelowPercent *float64 `json:"sell_below_percent"`
}

// Momentum is the baseline strategy: intraday change beyond the buy
// threshold yields a BUY candidate, below the sell threshold a SELL.
// Position sizing is risk-proportional to the automation's capital.
type Momentum struct {
	thresholds config.SignalThresholds
}

// NewMomentum creates the baseline momentum strategy.
func NewMomentum(thresholds config.SignalThresholds) *Momentum {
	return &Momentum{thresholds: thresholds}
}

// Evaluate scans the automation's symbol universe and returns the single
// strongest candidate, or nil when no symbol crosses a threshold. Symbols
// without market data are silently skipped.
func (m *Momentum) Evaluate(a *models.Automation, quotes map[string]marketdata.Quote) (*Candidate, error) {
	buyAbove := m.thresholds.BuyAboveChangePercent
	sellBelow := m.thresholds.SellBelowChangePercent

	if len(a.StrategyRules) > 0 {
		var rules momentumRules
		if err := json.Unmarshal(a.StrategyRules, &rules); err == nil {
			if rules.BuyAbovePercent != nil {
				buyAbove = *rules.BuyAbovePercent
			}
			if rules.SellBelowPercent != nil {
				sellBelow = *rules.SellBelowPercent
			}
		}
	}

	var best *Candidate
	var bestStrength float64

	for _, symbol := range a.Symbols {
		quote, ok := quotes[symbol]
		if !ok || !quote.LastPrice.IsPositive() {
			continue
		}

		var side string
		switch {
		case quote.ChangePercent > buyAbove:
			side = models.SideBuy
		case quote.ChangePercent < sellBelow:
			side = models.SideSell
		default:
			continue
		}

		strength := math.Abs(quote.ChangePercent)
		if best != nil && strength <= bestStrength {
			continue
		}

		quantity, err := m.size(a, quote.LastPrice)
		if err != nil {
			return nil, err
		}

		best = &Candidate{
			Symbol:    symbol,
			Side:      side,
			OrderType: models.OrderTypeMarket,
			Price:     quote.LastPrice,
			Quantity:  quantity,
			Reason:    fmt.Sprintf("momentum: %s moved %.2f%% intraday", symbol, quote.ChangePercent),
		}
		bestStrength = strength
	}

	return best, nil
}

// size computes floor(capital x riskFraction / price), with a minimum of
// one share once a signal fires.
func (m *Momentum) size(a *models.Automation, price decimal.Decimal) (decimal.Decimal, error) {
	fraction, ok := m.thresholds.RiskFractions[a.RiskTolerance]
	if !ok {
		return decimal.Zero, fmt.Errorf("no risk fraction for tolerance %q", a.RiskTolerance)
	}

	riskBudget := a.Capital.Mul(decimal.NewFromFloat(fraction))
	quantity := riskBudget.Div(price).Floor()
	if quantity.LessThan(decimal.NewFromInt(1)) {
		quantity = decimal.NewFromInt(1)
	}
	return quantity, nil
}
