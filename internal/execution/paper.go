package execution

import (
	"context"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/marketdata"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Paper simulates order fills without real capital. MARKET orders fill
// with modeled slippage, LIMIT orders fill at the stated price with a
// fixed probability, and SL/SL-M orders fill only once the observed price
// has crossed the trigger.
type Paper struct {
	cfg   config.PaperConfig
	book  *PositionBook
	store PositionStore
	rng   func() float64
	log   *log.Entry
}

// NewPaper creates a paper simulator backed by the given position book.
// A nil store disables snapshot persistence.
func NewPaper(cfg config.PaperConfig, book *PositionBook, store PositionStore) *Paper {
	return &Paper{
		cfg:   cfg,
		book:  book,
		store: store,
		rng:   rand.Float64,
		log:   log.WithField("component", "paper"),
	}
}

// Execute simulates one order. Orders that cannot fill yet stay OPEN;
// a SELL without a tracked position is REJECTED.
func (p *Paper) Execute(ctx context.Context, order *models.Order, quote marketdata.Quote) (*Fill, error) {
	switch order.OrderType {
	case models.OrderTypeMarket:
		return p.fillMarket(order, quote), nil
	case models.OrderTypeLimit:
		return p.fillLimit(order, quote), nil
	case models.OrderTypeSL, models.OrderTypeSLM:
		return p.fillStop(order, quote), nil
	default:
		return &Fill{
			Status: models.OrderStatusRejected,
			Reason: "unsupported order type " + order.OrderType,
		}, nil
	}
}

func (p *Paper) fillMarket(order *models.Order, quote marketdata.Quote) *Fill {
	price := p.slippedPrice(order.Side, quote)
	return p.settle(order, price)
}

func (p *Paper) fillLimit(order *models.Order, quote marketdata.Quote) *Fill {
	if p.rng() >= p.cfg.LimitFillProbability {
		return &Fill{Status: models.OrderStatusOpen, Reason: "limit order not filled"}
	}
	return p.settle(order, order.Price)
}

func (p *Paper) fillStop(order *models.Order, quote marketdata.Quote) *Fill {
	if !order.TriggerPrice.Valid {
		return &Fill{Status: models.OrderStatusRejected, Reason: "stop order without trigger price"}
	}
	trigger := order.TriggerPrice.Decimal

	crossed := false
	switch order.Side {
	case models.SideBuy:
		crossed = quote.LastPrice.GreaterThanOrEqual(trigger)
	case models.SideSell:
		crossed = quote.LastPrice.LessThanOrEqual(trigger)
	}
	if !crossed {
		return &Fill{Status: models.OrderStatusOpen, Reason: "trigger not crossed"}
	}

	if order.OrderType == models.OrderTypeSLM {
		return p.settle(order, p.slippedPrice(order.Side, quote))
	}
	return p.settle(order, trigger)
}

// settle applies the fill to the position book and computes realized P&L
// for closing SELLs.
func (p *Paper) settle(order *models.Order, price decimal.Decimal) *Fill {
	fill := &Fill{
		Status:           models.OrderStatusComplete,
		ExecutedPrice:    decimal.NewNullDecimal(price),
		ExecutedQuantity: order.Quantity,
	}

	switch order.Side {
	case models.SideBuy:
		quantity, averageCost := p.book.ApplyBuy(order.AutomationID, order.Symbol, order.Quantity, price)
		p.snapshot(order.AutomationID, order.Symbol, quantity, averageCost)
	case models.SideSell:
		openedAt, _ := p.book.OpenedAt(order.AutomationID, order.Symbol)
		pnl, remaining, err := p.book.ApplySell(order.AutomationID, order.Symbol, order.Quantity, price)
		if err != nil {
			return &Fill{Status: models.OrderStatusRejected, Reason: err.Error()}
		}
		fill.Pnl = decimal.NewNullDecimal(pnl)
		if !openedAt.IsZero() {
			fill.OpenedAt = &openedAt
		}
		if remaining.IsZero() {
			p.dropSnapshot(order.AutomationID, order.Symbol)
		} else {
			_, averageCost, _ := p.book.AverageCost(order.AutomationID, order.Symbol)
			p.snapshot(order.AutomationID, order.Symbol, remaining, averageCost)
		}
	default:
		return &Fill{Status: models.OrderStatusRejected, Reason: "unsupported side " + order.Side}
	}

	return fill
}

// slippedPrice models execution slippage: base slippage scaled up by
// intraday volatility, penalized for thin volume, capped. BUYs pay the
// slippage, SELLs concede it.
func (p *Paper) slippedPrice(side string, quote marketdata.Quote) decimal.Decimal {
	slippagePct := p.cfg.BaseSlippagePct * (1 + math.Abs(quote.ChangePercent)/5)
	if quote.Volume > 0 && quote.Volume < p.cfg.LowVolumeThreshold {
		slippagePct *= p.cfg.LowVolumePenalty
	}
	if slippagePct > p.cfg.MaxSlippagePct {
		slippagePct = p.cfg.MaxSlippagePct
	}

	factor := decimal.NewFromFloat(slippagePct / 100)
	adjustment := quote.LastPrice.Mul(factor)
	if side == models.SideSell {
		return quote.LastPrice.Sub(adjustment)
	}
	return quote.LastPrice.Add(adjustment)
}

func (p *Paper) snapshot(automationID int, symbol string, quantity, averageCost decimal.Decimal) {
	if p.store == nil {
		return
	}
	openedAt, _ := p.book.OpenedAt(automationID, symbol)
	if err := p.store.UpsertPaperPosition(automationID, symbol, quantity, averageCost, openedAt); err != nil {
		p.log.WithField("automation_id", automationID).WithError(err).Warn("position snapshot failed")
	}
}

func (p *Paper) dropSnapshot(automationID int, symbol string) {
	if p.store == nil {
		return
	}
	if err := p.store.DeletePaperPosition(automationID, symbol); err != nil {
		p.log.WithField("automation_id", automationID).WithError(err).Warn("position snapshot delete failed")
	}
}
