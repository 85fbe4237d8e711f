package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/database"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/events"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/execution"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/feedback"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/gatekeeper"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/lifecycle"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/marketdata"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/risk"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/signal"
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetAutomationsByStatus(status string) ([]*models.Automation, error)
	GetAutomationByID(id int) (*models.Automation, error)
	CreateOrder(o *models.Order) error
	GetOrderByID(id int) (*models.Order, error)
	GetOpenOrdersByAutomation(automationID int) ([]*models.Order, error)
	UpdateOrderExecutionWithTransition(o *models.Order, t *database.StatusTransition) error
	GetRealizedPnl(automationID int) (decimal.Decimal, error)
	GetLatestDecisionForAutomation(automationID int) (*models.Decision, error)
}

// Governor answers whether an automation may trade on this tick.
type Governor interface {
	Evaluate(ctx context.Context, a *models.Automation) risk.Verdict
}

// Gate answers whether a decision may execute unattended.
type Gate interface {
	Evaluate(ctx context.Context, decision *models.Decision, userID string) gatekeeper.Result
}

// Feedback closes the loop after a position closes.
type Feedback interface {
	OnTradeClose(c feedback.Closure) (*models.TradeOutcome, error)
}

// Engine drives the periodic evaluate-and-execute loop over all active
// automations. Each tick enumerates active automations and processes them
// through a bounded worker pool; a per-automation lock guarantees at most
// one in-flight evaluation per automation, and a busy tick is skipped
// rather than queued.
type Engine struct {
	store     Store
	quotes    marketdata.Source
	governor  Governor
	strategy  signal.Strategy
	gate      Gate
	paper     execution.Executor
	live      execution.Executor
	feedback  Feedback
	publisher *events.Publisher
	cfg       config.EngineConfig

	cron *cron.Cron

	mu    sync.Mutex
	locks map[int]*sync.Mutex

	log *log.Entry
}

// New wires the engine together.
func New(
	store Store,
	quotes marketdata.Source,
	governor Governor,
	strategy signal.Strategy,
	gate Gate,
	paper, live execution.Executor,
	fb Feedback,
	publisher *events.Publisher,
	cfg config.EngineConfig,
) *Engine {
	return &Engine{
		store:     store,
		quotes:    quotes,
		governor:  governor,
		strategy:  strategy,
		gate:      gate,
		paper:     paper,
		live:      live,
		feedback:  fb,
		publisher: publisher,
		cfg:       cfg,
		locks:     make(map[int]*sync.Mutex),
		log:       log.WithField("component", "engine"),
	}
}

// Start begins the periodic execution loop.
func (e *Engine) Start() error {
	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	spec := fmt.Sprintf("@every %ds", e.cfg.IntervalSeconds)
	if _, err := e.cron.AddFunc(spec, e.tick); err != nil {
		return fmt.Errorf("failed to schedule engine tick: %w", err)
	}

	e.cron.Start()
	e.log.WithField("interval_seconds", e.cfg.IntervalSeconds).Info("engine started")
	return nil
}

// Stop halts the scheduler and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	if e.cron == nil {
		return
	}
	<-e.cron.Stop().Done()
	e.log.Info("engine stopped")
}

// tick processes every active automation through the worker pool.
func (e *Engine) tick() {
	ctx := context.Background()

	active, err := e.store.GetAutomationsByStatus(models.StatusActive)
	if err != nil {
		e.log.WithError(err).Error("failed to list active automations")
		return
	}
	if len(active) == 0 {
		return
	}

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	for _, a := range active {
		a := a
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.processAutomation(ctx, a)
		}()
	}
	wg.Wait()
}

// processAutomation runs one automation through the full pipeline:
// risk governor, signal evaluation, confidence gate, execution, feedback.
func (e *Engine) processAutomation(ctx context.Context, a *models.Automation) {
	lock := e.automationLock(a.ID)
	if !lock.TryLock() {
		e.log.WithField("automation_id", a.ID).Debug("automation busy, skipping tick")
		return
	}
	defer lock.Unlock()

	logger := e.log.WithField("automation_id", a.ID)

	verdict := e.governor.Evaluate(ctx, a)
	if !verdict.CanTrade {
		logger.WithFields(log.Fields{"check": verdict.Check, "reason": verdict.Reason}).
			Info("risk governor denied trading")
		return
	}

	quotes, err := e.quotes.Quotes(ctx, a.Symbols)
	if err != nil {
		logger.WithError(err).Warn("quote fetch failed")
		return
	}
	quotes = marketdata.FilterStale(quotes, time.Now())

	e.settleRestingOrders(ctx, a, quotes)

	candidate, err := e.strategy.Evaluate(a, quotes)
	if err != nil {
		logger.WithError(err).Error("strategy evaluation failed")
		return
	}
	if candidate == nil {
		return
	}

	order := e.buildOrder(a, candidate)

	if hold, reason := e.requiresApproval(ctx, a, order); hold {
		order.Status = models.OrderStatusPendingApproval
		order.StatusReason = reason
		if err := e.store.CreateOrder(order); err != nil {
			logger.WithError(err).Error("failed to queue order for approval")
			return
		}
		logger.WithFields(log.Fields{"order_id": order.ID, "reason": reason}).
			Info("order queued for manual approval")
		return
	}

	order.Status = models.OrderStatusOpen
	if err := e.store.CreateOrder(order); err != nil {
		logger.WithError(err).Error("failed to create order")
		return
	}

	e.executeOrder(ctx, a, order, quotes[order.Symbol])
}

// ExecuteApproved executes an order a human released from the approval
// queue. The risk governor re-evaluates at release time: conditions may
// have changed since the order was queued.
func (e *Engine) ExecuteApproved(ctx context.Context, orderID int) error {
	order, err := e.store.GetOrderByID(orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPendingApproval {
		return fmt.Errorf("order %d is not awaiting approval", orderID)
	}

	a, err := e.store.GetAutomationByID(order.AutomationID)
	if err != nil {
		return err
	}
	if a.Status != models.StatusActive {
		return fmt.Errorf("automation %d is not active", a.ID)
	}

	lock := e.automationLock(a.ID)
	lock.Lock()
	defer lock.Unlock()

	verdict := e.governor.Evaluate(ctx, a)
	if !verdict.CanTrade {
		return fmt.Errorf("risk governor denied execution: %s", verdict.Reason)
	}

	quotes, err := e.quotes.Quotes(ctx, []string{order.Symbol})
	if err != nil {
		return fmt.Errorf("quote fetch failed: %w", err)
	}
	quotes = marketdata.FilterStale(quotes, time.Now())
	quote, ok := quotes[order.Symbol]
	if !ok {
		return fmt.Errorf("no fresh quote for %s", order.Symbol)
	}

	order.Status = models.OrderStatusOpen
	e.executeOrder(ctx, a, order, quote)
	return nil
}

func (e *Engine) buildOrder(a *models.Automation, c *signal.Candidate) *models.Order {
	return &models.Order{
		AutomationID:   a.ID,
		IdempotencyKey: uuid.NewString(),
		Symbol:         c.Symbol,
		Exchange:       "NSE",
		Side:           c.Side,
		OrderType:      c.OrderType,
		Quantity:       c.Quantity,
		Price:          c.Price,
		TriggerReason:  c.Reason,
		PaperTrade:     a.TradingMode == models.ModePaper,
		PlacedAt:       time.Now(),
	}
}

// requiresApproval decides whether an order must wait for a human. Manual
// approval mode always holds; auto mode holds when the confidence gate
// does not approve unattended execution.
func (e *Engine) requiresApproval(ctx context.Context, a *models.Automation, order *models.Order) (bool, string) {
	if a.ApprovalMode == models.ApprovalManual {
		return true, "manual approval mode"
	}

	decision, err := e.store.GetLatestDecisionForAutomation(a.ID)
	if err != nil {
		e.log.WithField("automation_id", a.ID).WithError(err).Warn("decision lookup failed")
		return true, "decision lookup failed"
	}
	if decision != nil {
		order.DecisionID = &decision.ID
	}

	result := e.gate.Evaluate(ctx, decision, a.UserID)
	if !result.Approved {
		return true, fmt.Sprintf("%s: %s", result.Check, result.Reason)
	}
	for _, w := range result.Warnings {
		e.log.WithField("automation_id", a.ID).Warn(w)
	}
	return false, ""
}

// settleRestingOrders re-evaluates unfilled limit and stop orders against
// fresh quotes. Runs under the same per-automation lock as new signal
// evaluation, so a resting order cannot race its own replacement.
func (e *Engine) settleRestingOrders(ctx context.Context, a *models.Automation, quotes map[string]marketdata.Quote) {
	resting, err := e.store.GetOpenOrdersByAutomation(a.ID)
	if err != nil {
		e.log.WithField("automation_id", a.ID).WithError(err).Warn("resting order lookup failed")
		return
	}

	for _, order := range resting {
		quote, ok := quotes[order.Symbol]
		if !ok {
			continue
		}
		fill, err := e.executorFor(a).Execute(ctx, order, quote)
		if err != nil {
			e.log.WithFields(log.Fields{"automation_id": a.ID, "order_id": order.ID}).
				WithError(err).Warn("resting order re-evaluation failed")
			continue
		}
		if fill.Status == models.OrderStatusOpen {
			continue
		}
		e.applyFill(ctx, a, order, fill)
	}
}

func (e *Engine) executorFor(a *models.Automation) execution.Executor {
	if a.TradingMode == models.ModeLive {
		return e.live
	}
	return e.paper
}

// executeOrder runs the fill, persists it together with any consequential
// status transition, and feeds closed trades back into the decision loop.
func (e *Engine) executeOrder(ctx context.Context, a *models.Automation, order *models.Order, quote marketdata.Quote) {
	logger := e.log.WithFields(log.Fields{"automation_id": a.ID, "order_id": order.ID})

	fill, err := e.executorFor(a).Execute(ctx, order, quote)
	if err != nil {
		logger.WithError(err).Error("execution failed")
		order.Status = models.OrderStatusFailed
		order.StatusReason = err.Error()
		if persistErr := e.store.UpdateOrderExecutionWithTransition(order, nil); persistErr != nil {
			logger.WithError(persistErr).Error("failed to persist failed order")
		}
		return
	}

	e.applyFill(ctx, a, order, fill)
}

// applyFill persists a fill result and its consequences.
func (e *Engine) applyFill(ctx context.Context, a *models.Automation, order *models.Order, fill *execution.Fill) {
	logger := e.log.WithFields(log.Fields{"automation_id": a.ID, "order_id": order.ID})

	order.Status = fill.Status
	order.ExecutedPrice = fill.ExecutedPrice
	order.ExecutedQuantity = fill.ExecutedQuantity
	order.Pnl = fill.Pnl
	order.BrokerOrderID = fill.BrokerOrderID
	if fill.Reason != "" {
		order.StatusReason = fill.Reason
	}
	if fill.Status == models.OrderStatusComplete {
		now := time.Now()
		order.ExecutedAt = &now
	}

	transition := e.completionTransition(a, fill)
	if err := e.store.UpdateOrderExecutionWithTransition(order, transition); err != nil {
		logger.WithError(err).Error("failed to persist order execution")
		return
	}

	logger.WithFields(log.Fields{"status": order.Status, "symbol": order.Symbol}).
		Info("order executed")
	e.publisher.PublishOrderExecuted(ctx, order)

	if transition != nil {
		e.publisher.AutomationCompleted(a.ID, transition.Reason)
	}

	if order.IsClosing() {
		exitReason := models.ExitSignal
		if transition != nil {
			exitReason = models.ExitTargetReached
		}
		e.closeTrade(ctx, a, order, fill.OpenedAt, exitReason)
	}
}

// completionTransition returns the completed transition when this fill
// pushes lifetime realized P&L across the profit target, so the order
// write and the completion commit atomically.
func (e *Engine) completionTransition(a *models.Automation, fill *execution.Fill) *database.StatusTransition {
	if fill.Status != models.OrderStatusComplete || !fill.Pnl.Valid {
		return nil
	}

	realized, err := e.store.GetRealizedPnl(a.ID)
	if err != nil {
		e.log.WithField("automation_id", a.ID).WithError(err).Warn("realized pnl lookup failed")
		return nil
	}

	target := a.Capital.Mul(a.ProfitTargetPercent).Div(decimal.NewFromInt(100))
	if realized.Add(fill.Pnl.Decimal).GreaterThanOrEqual(target) {
		return lifecycle.CompletionRequest(a.ID, "profit target reached")
	}
	return nil
}

// closeTrade records the outcome and publishes it. The entry price is
// recovered from the fill arithmetic: pnl = (exit - entry) x quantity.
func (e *Engine) closeTrade(ctx context.Context, a *models.Automation, order *models.Order, openedAt *time.Time, exitReason string) {
	logger := e.log.WithFields(log.Fields{"automation_id": a.ID, "order_id": order.ID})

	entryPrice := order.ExecutedPrice.Decimal
	if order.ExecutedQuantity.IsPositive() {
		entryPrice = order.ExecutedPrice.Decimal.Sub(order.Pnl.Decimal.Div(order.ExecutedQuantity))
	}

	closure := feedback.Closure{
		Order:      order,
		Automation: a,
		EntryPrice: entryPrice,
		ExitReason: exitReason,
	}
	if openedAt != nil {
		closure.OpenedAt = *openedAt
	}

	outcome, err := e.feedback.OnTradeClose(closure)
	if err != nil {
		logger.WithError(err).Error("trade outcome recording failed")
		return
	}
	if outcome != nil {
		e.publisher.PublishTradeOutcomeRecorded(ctx, outcome)
	}
}

func (e *Engine) automationLock(automationID int) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[automationID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[automationID] = lock
	}
	return lock
}
