package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/marketdata"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

type mockPositionStore struct {
	upserts      int
	deletes      int
	lastOpenedAt time.Time
	failing      bool
}

func (m *mockPositionStore) UpsertPaperPosition(automationID int, symbol string, quantity, averageCost decimal.Decimal, openedAt time.Time) error {
	m.upserts++
	m.lastOpenedAt = openedAt
	if m.failing {
		return assert.AnError
	}
	return nil
}

func (m *mockPositionStore) DeletePaperPosition(automationID int, symbol string) error {
	m.deletes++
	if m.failing {
		return assert.AnError
	}
	return nil
}

func testQuote(price float64, changePercent float64, volume int64) marketdata.Quote {
	return marketdata.Quote{
		Symbol:        "RELIANCE",
		LastPrice:     decimal.NewFromFloat(price),
		ChangePercent: changePercent,
		Volume:        volume,
		Timestamp:     time.Now(),
	}
}

func marketOrder(side string) *models.Order {
	return &models.Order{
		ID:           1,
		AutomationID: 1,
		Symbol:       "RELIANCE",
		Side:         side,
		OrderType:    models.OrderTypeMarket,
		Quantity:     decimal.NewFromInt(4),
		Price:        decimal.NewFromInt(100),
	}
}

func newTestPaper(book *PositionBook, store PositionStore) *Paper {
	return NewPaper(config.DefaultPaperConfig(), book, store)
}

func TestPaperMarketFill(t *testing.T) {
	ctx := context.Background()

	t.Run("calm market buy pays base slippage", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)

		fill, err := paper.Execute(ctx, marketOrder(models.SideBuy), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusComplete, fill.Status)
		require.True(t, fill.ExecutedPrice.Valid)
		// 0.10% base slippage on a flat, liquid symbol.
		assert.True(t, decimal.NewFromFloat(100.10).Equal(fill.ExecutedPrice.Decimal),
			"got %s", fill.ExecutedPrice.Decimal)
	})

	t.Run("volatile symbol widens slippage", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)

		// 5% intraday move doubles the base slippage to 0.20%.
		fill, err := paper.Execute(ctx, marketOrder(models.SideBuy), testQuote(100, 5, 500000))
		require.NoError(t, err)
		assert.True(t, decimal.NewFromFloat(100.20).Equal(fill.ExecutedPrice.Decimal),
			"got %s", fill.ExecutedPrice.Decimal)
	})

	t.Run("thin volume is penalized", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)

		// 0.10% x 1.5 low-volume penalty.
		fill, err := paper.Execute(ctx, marketOrder(models.SideBuy), testQuote(100, 0, 50000))
		require.NoError(t, err)
		executed, _ := fill.ExecutedPrice.Decimal.Float64()
		assert.InDelta(t, 100.15, executed, 1e-9)
	})

	t.Run("slippage is capped", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)

		// A wild move would model 2.1% slippage; the cap holds it at 0.50%.
		fill, err := paper.Execute(ctx, marketOrder(models.SideBuy), testQuote(100, 100, 500000))
		require.NoError(t, err)
		assert.True(t, decimal.NewFromFloat(100.50).Equal(fill.ExecutedPrice.Decimal),
			"got %s", fill.ExecutedPrice.Decimal)
	})

	t.Run("sell concedes slippage", func(t *testing.T) {
		book := NewPositionBook()
		book.ApplyBuy(1, "RELIANCE", decimal.NewFromInt(4), decimal.NewFromInt(90))
		paper := newTestPaper(book, nil)

		fill, err := paper.Execute(ctx, marketOrder(models.SideSell), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.True(t, decimal.NewFromFloat(99.90).Equal(fill.ExecutedPrice.Decimal),
			"got %s", fill.ExecutedPrice.Decimal)
		// pnl = (99.90 - 90) x 4
		require.True(t, fill.Pnl.Valid)
		assert.True(t, decimal.NewFromFloat(39.60).Equal(fill.Pnl.Decimal), "got %s", fill.Pnl.Decimal)
	})

	t.Run("closing sell carries the position open time", func(t *testing.T) {
		book := NewPositionBook()
		book.ApplyBuy(1, "RELIANCE", decimal.NewFromInt(4), decimal.NewFromInt(90))
		openedAt, ok := book.OpenedAt(1, "RELIANCE")
		require.True(t, ok)
		paper := newTestPaper(book, nil)

		fill, err := paper.Execute(ctx, marketOrder(models.SideSell), testQuote(100, 0, 500000))
		require.NoError(t, err)
		require.NotNil(t, fill.OpenedAt)
		assert.True(t, openedAt.Equal(*fill.OpenedAt))
	})

	t.Run("sell without position is rejected", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)

		fill, err := paper.Execute(ctx, marketOrder(models.SideSell), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusRejected, fill.Status)
		assert.Contains(t, fill.Reason, "no position")
	})
}

func TestPaperLimitFill(t *testing.T) {
	ctx := context.Background()

	limitOrder := func() *models.Order {
		o := marketOrder(models.SideBuy)
		o.OrderType = models.OrderTypeLimit
		o.Price = decimal.NewFromInt(99)
		return o
	}

	t.Run("fills at the limit price when the draw succeeds", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)
		paper.rng = func() float64 { return 0.5 }

		fill, err := paper.Execute(ctx, limitOrder(), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusComplete, fill.Status)
		assert.True(t, decimal.NewFromInt(99).Equal(fill.ExecutedPrice.Decimal))
	})

	t.Run("stays open when the draw fails", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)
		paper.rng = func() float64 { return 0.9 }

		fill, err := paper.Execute(ctx, limitOrder(), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusOpen, fill.Status)
		assert.False(t, fill.ExecutedPrice.Valid)
	})
}

func TestPaperStopFill(t *testing.T) {
	ctx := context.Background()

	stopSell := func(orderType string, trigger int64) *models.Order {
		o := marketOrder(models.SideSell)
		o.OrderType = orderType
		o.TriggerPrice = decimal.NewNullDecimal(decimal.NewFromInt(trigger))
		return o
	}

	t.Run("stays open until the trigger is crossed", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)

		fill, err := paper.Execute(ctx, stopSell(models.OrderTypeSL, 95), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusOpen, fill.Status)
	})

	t.Run("SL fills at the trigger price once crossed", func(t *testing.T) {
		book := NewPositionBook()
		book.ApplyBuy(1, "RELIANCE", decimal.NewFromInt(4), decimal.NewFromInt(100))
		paper := newTestPaper(book, nil)

		fill, err := paper.Execute(ctx, stopSell(models.OrderTypeSL, 95), testQuote(94, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusComplete, fill.Status)
		assert.True(t, decimal.NewFromInt(95).Equal(fill.ExecutedPrice.Decimal))
	})

	t.Run("SL-M fills at market with slippage once crossed", func(t *testing.T) {
		book := NewPositionBook()
		book.ApplyBuy(1, "RELIANCE", decimal.NewFromInt(4), decimal.NewFromInt(100))
		paper := newTestPaper(book, nil)

		fill, err := paper.Execute(ctx, stopSell(models.OrderTypeSLM, 95), testQuote(94, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusComplete, fill.Status)
		assert.True(t, decimal.NewFromFloat(93.906).Equal(fill.ExecutedPrice.Decimal),
			"got %s", fill.ExecutedPrice.Decimal)
	})

	t.Run("stop without trigger price is rejected", func(t *testing.T) {
		paper := newTestPaper(NewPositionBook(), nil)

		o := marketOrder(models.SideSell)
		o.OrderType = models.OrderTypeSL
		fill, err := paper.Execute(ctx, o, testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusRejected, fill.Status)
	})
}

func TestPaperSnapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("fills persist position snapshots", func(t *testing.T) {
		store := &mockPositionStore{}
		paper := newTestPaper(NewPositionBook(), store)

		_, err := paper.Execute(ctx, marketOrder(models.SideBuy), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, 1, store.upserts)
		assert.False(t, store.lastOpenedAt.IsZero())

		_, err = paper.Execute(ctx, marketOrder(models.SideSell), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, 1, store.deletes)
	})

	t.Run("snapshot failures do not fail the fill", func(t *testing.T) {
		store := &mockPositionStore{failing: true}
		paper := newTestPaper(NewPositionBook(), store)

		fill, err := paper.Execute(ctx, marketOrder(models.SideBuy), testQuote(100, 0, 500000))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusComplete, fill.Status)
	})
}
