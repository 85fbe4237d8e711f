package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Check name constants, in evaluation order.
const (
	CheckDailyLoss   = "daily_loss_limit"
	CheckTradeCount  = "daily_trade_limit"
	CheckMaxLoss     = "max_loss_ratio"
	CheckDataMissing = "history_unavailable"
)

// MaxLossReason is the pause reason recorded when check 3 trips.
const MaxLossReason = "max loss reached"

// History supplies the order aggregates the governor evaluates.
type History interface {
	GetDailyRealizedLoss(accountID string, day time.Time) (decimal.Decimal, error)
	GetDailyTradeCount(automationID int, day time.Time) (int, error)
	GetCumulativeRealizedLoss(automationID int) (decimal.Decimal, error)
}

// Pauser requests a paused transition from the lifecycle manager. The
// governor never writes status itself.
type Pauser interface {
	Pause(automationID int, reason, actor string) error
}

// Verdict is the governor's answer for one automation on one tick.
type Verdict struct {
	CanTrade bool   `json:"can_trade"`
	Check    string `json:"check,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Governor is a stateless evaluator of per-automation and per-account
// trading limits. Checks run in a fixed order and short-circuit on the
// first failure; missing history fails closed.
type Governor struct {
	history History
	pauser  Pauser
	limits  config.RiskLimits
	now     func() time.Time
	log     *log.Entry
}

// NewGovernor creates a risk governor.
func NewGovernor(history History, pauser Pauser, limits config.RiskLimits) *Governor {
	return &Governor{
		history: history,
		pauser:  pauser,
		limits:  limits,
		now:     time.Now,
		log:     log.WithField("component", "risk"),
	}
}

// Evaluate answers whether the automation may trade on this tick.
func (g *Governor) Evaluate(ctx context.Context, a *models.Automation) Verdict {
	today := g.now()

	// Check 1: account-level daily realized-loss cap.
	dailyLoss, err := g.history.GetDailyRealizedLoss(a.AccountID, today)
	if err != nil {
		return g.failClosed(a, "daily realized loss unavailable", err)
	}
	if dailyLoss.GreaterThanOrEqual(decimal.NewFromFloat(g.limits.MaxDailyLoss)) {
		return Verdict{
			CanTrade: false,
			Check:    CheckDailyLoss,
			Reason:   "daily loss limit reached: " + dailyLoss.StringFixed(2),
		}
	}

	// Check 2: per-automation daily trade-count cap.
	tradeCount, err := g.history.GetDailyTradeCount(a.ID, today)
	if err != nil {
		return g.failClosed(a, "daily trade count unavailable", err)
	}
	if tradeCount >= g.limits.MaxDailyTrades {
		return Verdict{
			CanTrade: false,
			Check:    CheckTradeCount,
			Reason:   "daily trade limit reached",
		}
	}

	// Check 3: cumulative loss ratio against the automation's max loss.
	// The only check with a side effect: crossing it auto-pauses.
	cumulativeLoss, err := g.history.GetCumulativeRealizedLoss(a.ID)
	if err != nil {
		return g.failClosed(a, "cumulative loss unavailable", err)
	}
	ratioPct, ok := g.lossRatioPercent(a, cumulativeLoss)
	if !ok {
		return g.failClosed(a, "loss ratio denominator is zero", nil)
	}
	if ratioPct.GreaterThanOrEqual(a.MaxLossPercent) {
		if err := g.pauser.Pause(a.ID, MaxLossReason, models.ActorSystem); err != nil {
			g.log.WithField("automation_id", a.ID).WithError(err).Error("auto-pause request failed")
		}
		return Verdict{
			CanTrade: false,
			Check:    CheckMaxLoss,
			Reason:   MaxLossReason + ": loss ratio " + ratioPct.StringFixed(2) + "%",
		}
	}

	return Verdict{CanTrade: true}
}

// lossRatioPercent computes cumulative realized loss as a percentage of
// the configured denominator. The upstream system divides by the profit
// target amount rather than capital, so that stays the default policy.
func (g *Governor) lossRatioPercent(a *models.Automation, loss decimal.Decimal) (decimal.Decimal, bool) {
	var denominator decimal.Decimal
	switch g.limits.LossRatioDenominator {
	case config.LossRatioDenomCapital:
		denominator = a.Capital
	default:
		denominator = a.Capital.Mul(a.ProfitTargetPercent).Div(decimal.NewFromInt(100))
	}
	if denominator.IsZero() {
		return decimal.Zero, false
	}
	return loss.Div(denominator).Mul(decimal.NewFromInt(100)), true
}

func (g *Governor) failClosed(a *models.Automation, reason string, err error) Verdict {
	g.log.WithFields(log.Fields{"automation_id": a.ID, "reason": reason}).
		WithError(err).Warn("risk check failed closed")
	return Verdict{
		CanTrade: false,
		Check:    CheckDataMissing,
		Reason:   "risk data unavailable, trading denied: " + reason,
	}
}
