package feedback

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Store is the persistence surface the feedback engine needs.
type Store interface {
	OutcomeExistsForOrder(orderID int) (bool, error)
	CreateTradeOutcome(o *models.TradeOutcome) error
	GetDecisionByID(id int) (*models.Decision, error)
	UpdateAttributionWeight(id int, weight float64) error
	UpdateDecisionConfidence(id int, confidence float64) error
	CreateConfidenceHistory(h *models.ConfidenceHistory) error
}

// Closure describes one fully closed position handed to the feedback loop.
type Closure struct {
	Order      *models.Order
	Automation *models.Automation
	EntryPrice decimal.Decimal
	ExitReason string
	OpenedAt   time.Time
}

// Engine closes the loop between trade outcomes and decision confidence.
// Profitable trades nudge confidence and attribution weights up, losing
// trades nudge them down; large swings are queued for human review
// instead of applied.
type Engine struct {
	store Store
	cfg   config.FeedbackConfig
	log   *log.Entry
}

// New creates a feedback engine.
func New(store Store, cfg config.FeedbackConfig) *Engine {
	return &Engine{
		store: store,
		cfg:   cfg,
		log:   log.WithField("component", "feedback"),
	}
}

// OnTradeClose records the outcome of a closed order and propagates it
// back to the originating decision. Safe to call more than once for the
// same order: only the first call has any effect.
func (e *Engine) OnTradeClose(c Closure) (*models.TradeOutcome, error) {
	order := c.Order
	if !order.IsClosing() {
		return nil, fmt.Errorf("order %d is not a closing trade", order.ID)
	}

	exists, err := e.store.OutcomeExistsForOrder(order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check outcome existence: %w", err)
	}
	if exists {
		e.log.WithField("order_id", order.ID).Debug("outcome already recorded, skipping")
		return nil, nil
	}

	outcome := e.buildOutcome(c)
	if err := e.store.CreateTradeOutcome(outcome); err != nil {
		return nil, err
	}

	if order.DecisionID != nil {
		if err := e.adjustDecision(*order.DecisionID, outcome); err != nil {
			// The outcome row is the source of truth; a failed adjustment
			// must not roll the trade record back.
			e.log.WithFields(log.Fields{
				"order_id":    order.ID,
				"decision_id": *order.DecisionID,
			}).WithError(err).Warn("decision adjustment failed")
		}
	}

	return outcome, nil
}

func (e *Engine) buildOutcome(c Closure) *models.TradeOutcome {
	order := c.Order
	pnl := order.Pnl.Decimal
	costBasis := c.EntryPrice.Mul(order.ExecutedQuantity)

	pnlPercent := decimal.Zero
	if costBasis.IsPositive() {
		pnlPercent = pnl.Div(costBasis).Mul(decimal.NewFromInt(100))
	}

	holdingHours := 0
	if !c.OpenedAt.IsZero() && order.ExecutedAt != nil {
		holdingHours = int(order.ExecutedAt.Sub(c.OpenedAt).Hours())
	}

	return &models.TradeOutcome{
		OrderID:            order.ID,
		DecisionID:         order.DecisionID,
		AutomationID:       order.AutomationID,
		UserID:             c.Automation.UserID,
		Symbol:             order.Symbol,
		EntryPrice:         c.EntryPrice,
		ExitPrice:          order.ExecutedPrice.Decimal,
		Quantity:           order.ExecutedQuantity,
		Pnl:                pnl,
		PnlPercent:         pnlPercent,
		Capital:            c.Automation.Capital,
		HoldingPeriodHours: holdingHours,
		ExitReason:         c.ExitReason,
		UserOverride:       c.ExitReason == models.ExitManual,
	}
}

// adjustDecision reweights the decision's attributions and either applies
// a dampened confidence adjustment or queues it for manual review.
func (e *Engine) adjustDecision(decisionID int, outcome *models.TradeOutcome) error {
	decision, err := e.store.GetDecisionByID(decisionID)
	if err != nil {
		return err
	}

	profitable := outcome.Pnl.IsPositive()
	if err := e.reweightAttributions(decision, profitable); err != nil {
		return err
	}

	adjusted := e.adjustedConfidence(decision.Confidence, outcome, profitable)
	if adjusted == decision.Confidence {
		return nil
	}

	history := &models.ConfidenceHistory{
		DecisionID:         decision.ID,
		OriginalConfidence: decision.Confidence,
		AdjustedConfidence: adjusted,
	}

	if e.autoApplicable(decision.Confidence, adjusted, outcome.Capital) {
		if err := e.store.UpdateDecisionConfidence(decision.ID, adjusted); err != nil {
			return err
		}
		history.Trigger = models.TriggerTradeOutcome
		history.Actor = models.ActorSystem
		history.Note = fmt.Sprintf("order %d closed with pnl %s", outcome.OrderID, outcome.Pnl.StringFixed(2))
	} else {
		// Large or high-stakes adjustments are recorded but not applied.
		history.Trigger = models.TriggerManualReview
		history.Actor = models.ActorSystem
		history.Note = fmt.Sprintf("adjustment from order %d held for review", outcome.OrderID)
	}

	return e.store.CreateConfidenceHistory(history)
}

func (e *Engine) reweightAttributions(decision *models.Decision, profitable bool) error {
	factor := e.cfg.LossWeightFactor
	if profitable {
		factor = e.cfg.ProfitWeightFactor
	}
	for _, attr := range decision.Attributions {
		if err := e.store.UpdateAttributionWeight(attr.ID, attr.Weight*factor); err != nil {
			return err
		}
	}
	return nil
}

// adjustedConfidence computes the dampened post-trade confidence: a base
// delta grown with the magnitude of the return, signed by profitability,
// dampened, and clamped into the allowed band.
func (e *Engine) adjustedConfidence(current float64, outcome *models.TradeOutcome, profitable bool) float64 {
	pnlPct, _ := outcome.PnlPercent.Abs().Float64()
	delta := e.cfg.MinDelta + math.Min(pnlPct/100, 1)*(e.cfg.MaxDelta-e.cfg.MinDelta)
	if !profitable {
		delta = -delta
	}

	adjusted := current + delta*e.cfg.Dampening
	if adjusted < e.cfg.MinConfidence {
		adjusted = e.cfg.MinConfidence
	}
	if adjusted > e.cfg.MaxConfidence {
		adjusted = e.cfg.MaxConfidence
	}
	return adjusted
}

// autoApplicable reports whether an adjustment is small and low-stakes
// enough to apply without a human in the loop.
func (e *Engine) autoApplicable(current, adjusted float64, capital decimal.Decimal) bool {
	if capital.GreaterThanOrEqual(decimal.NewFromFloat(e.cfg.AutoUpdateMaxCap)) {
		return false
	}
	if current == 0 {
		return false
	}
	relativeChange := math.Abs(adjusted-current) / current
	return relativeChange < e.cfg.AutoUpdateMaxChange
}
