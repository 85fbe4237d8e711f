package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/broker"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/marketdata"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// AccountResolver maps an automation to its broker account.
type AccountResolver interface {
	AccountID(automationID int) (string, error)
}

// Live routes orders to the broker. It keeps the same position book
// contract as the paper simulator so realized P&L on closing SELLs is
// computed identically in both modes.
type Live struct {
	broker   broker.Broker
	creds    broker.CredentialsProvider
	accounts AccountResolver
	book     *PositionBook
	store    PositionStore
	log      *log.Entry
}

// NewLive creates a live order router.
func NewLive(b broker.Broker, creds broker.CredentialsProvider, accounts AccountResolver, book *PositionBook, store PositionStore) *Live {
	return &Live{
		broker:   b,
		creds:    creds,
		accounts: accounts,
		book:     book,
		store:    store,
		log:      log.WithField("component", "live"),
	}
}

// Execute places the order with the broker. Broker rejections come back
// as a FAILED fill, not an error; only infrastructure problems error out.
func (l *Live) Execute(ctx context.Context, order *models.Order, quote marketdata.Quote) (*Fill, error) {
	accountID, err := l.accounts.AccountID(order.AutomationID)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	creds, err := l.creds.Credentials(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	req := broker.OrderRequest{
		Symbol:    order.Symbol,
		Exchange:  order.Exchange,
		Side:      order.Side,
		OrderType: order.OrderType,
		Quantity:  order.Quantity,
		Price:     order.Price,
		Tag:       order.IdempotencyKey,
	}
	if order.TriggerPrice.Valid {
		req.TriggerPrice = order.TriggerPrice.Decimal
	}

	placement, err := l.broker.PlaceOrder(ctx, creds, req)
	if err != nil {
		var brokerErr *broker.Error
		if errors.As(err, &brokerErr) {
			l.log.WithFields(log.Fields{
				"automation_id": order.AutomationID,
				"code":          brokerErr.Code,
			}).Warn("broker rejected order")
			return &Fill{
				Status: models.OrderStatusFailed,
				Reason: brokerErr.Message,
			}, nil
		}
		return nil, fmt.Errorf("place order: %w", err)
	}

	fill := &Fill{
		Status:        mapBrokerStatus(placement.Status),
		BrokerOrderID: placement.BrokerOrderID,
	}
	if fill.Status != models.OrderStatusComplete {
		return fill, nil
	}

	executedPrice := placement.ExecutedPrice
	if executedPrice.IsZero() {
		executedPrice = quote.LastPrice
	}
	executedQuantity := placement.ExecutedQuantity
	if executedQuantity.IsZero() {
		executedQuantity = order.Quantity
	}
	fill.ExecutedPrice = decimal.NewNullDecimal(executedPrice)
	fill.ExecutedQuantity = executedQuantity

	switch order.Side {
	case models.SideBuy:
		quantity, averageCost := l.book.ApplyBuy(order.AutomationID, order.Symbol, executedQuantity, executedPrice)
		l.snapshot(order.AutomationID, order.Symbol, quantity, averageCost)
	case models.SideSell:
		openedAt, _ := l.book.OpenedAt(order.AutomationID, order.Symbol)
		pnl, remaining, err := l.book.ApplySell(order.AutomationID, order.Symbol, executedQuantity, executedPrice)
		if err != nil {
			// The fill already happened at the broker. Record it without
			// P&L rather than failing the trade.
			l.log.WithField("automation_id", order.AutomationID).WithError(err).Warn("untracked sell, pnl unavailable")
			return fill, nil
		}
		fill.Pnl = decimal.NewNullDecimal(pnl)
		if !openedAt.IsZero() {
			fill.OpenedAt = &openedAt
		}
		if remaining.IsZero() {
			l.dropSnapshot(order.AutomationID, order.Symbol)
		} else {
			_, averageCost, _ := l.book.AverageCost(order.AutomationID, order.Symbol)
			l.snapshot(order.AutomationID, order.Symbol, remaining, averageCost)
		}
	}

	return fill, nil
}

func mapBrokerStatus(status string) string {
	switch status {
	case "COMPLETE", "FILLED":
		return models.OrderStatusComplete
	case "REJECTED":
		return models.OrderStatusRejected
	case "CANCELLED":
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusOpen
	}
}

func (l *Live) snapshot(automationID int, symbol string, quantity, averageCost decimal.Decimal) {
	if l.store == nil {
		return
	}
	openedAt, _ := l.book.OpenedAt(automationID, symbol)
	if err := l.store.UpsertPaperPosition(automationID, symbol, quantity, averageCost, openedAt); err != nil {
		l.log.WithField("automation_id", automationID).WithError(err).Warn("position snapshot failed")
	}
}

func (l *Live) dropSnapshot(automationID int, symbol string) {
	if l.store == nil {
		return
	}
	if err := l.store.DeletePaperPosition(automationID, symbol); err != nil {
		l.log.WithField("automation_id", automationID).WithError(err).Warn("position snapshot delete failed")
	}
}
