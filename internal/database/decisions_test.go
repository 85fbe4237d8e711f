package database

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

func newTestDecision(userID string, automationID *int) *models.Decision {
	return &models.Decision{
		UserID:           userID,
		AutomationID:     automationID,
		DecisionType:     models.DecisionStockSelection,
		Payload:          []byte(`{"symbols": ["RELIANCE"]}`),
		Regime:           models.RegimeBull,
		RegimeConfidence: 0.8,
		Confidence:       0.75,
		Attributions: []models.Attribution{
			{Source: "news_sentiment", Symbol: "RELIANCE", Weight: 1.0},
			{Source: "technical_scan", Symbol: "RELIANCE", Weight: 0.5},
		},
	}
}

func TestDecisionsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("CreateDecision persists decision with attributions", func(t *testing.T) {
		testDB.TruncateAll(t)

		d := newTestDecision("user-1", nil)
		require.NoError(t, testDB.CreateDecision(d))
		assert.NotZero(t, d.ID)
		assert.NotZero(t, d.Attributions[0].ID)

		retrieved, err := testDB.GetDecisionByID(d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RegimeBull, retrieved.Regime)
		assert.InDelta(t, 0.75, retrieved.Confidence, 1e-9)
		require.Len(t, retrieved.Attributions, 2)
		assert.Equal(t, "news_sentiment", retrieved.Attributions[0].Source)
		assert.Equal(t, []string{"RELIANCE"}, retrieved.ReferencedSymbols())
	})

	t.Run("GetLatestDecisionForAutomation returns newest or nil", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		latest, err := testDB.GetLatestDecisionForAutomation(a.ID)
		require.NoError(t, err)
		assert.Nil(t, latest)

		older := newTestDecision("user-1", &a.ID)
		require.NoError(t, testDB.CreateDecision(older))
		time.Sleep(10 * time.Millisecond)
		newer := newTestDecision("user-1", &a.ID)
		newer.Confidence = 0.9
		require.NoError(t, testDB.CreateDecision(newer))

		latest, err = testDB.GetLatestDecisionForAutomation(a.ID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, newer.ID, latest.ID)
		assert.InDelta(t, 0.9, latest.Confidence, 1e-9)
	})

	t.Run("UpdateAttributionWeight and UpdateDecisionConfidence", func(t *testing.T) {
		testDB.TruncateAll(t)

		d := newTestDecision("user-1", nil)
		require.NoError(t, testDB.CreateDecision(d))

		require.NoError(t, testDB.UpdateAttributionWeight(d.Attributions[0].ID, 1.1))
		require.NoError(t, testDB.UpdateDecisionConfidence(d.ID, 0.8))

		retrieved, err := testDB.GetDecisionByID(d.ID)
		require.NoError(t, err)
		assert.InDelta(t, 0.8, retrieved.Confidence, 1e-9)
		assert.InDelta(t, 1.1, retrieved.Attributions[0].Weight, 1e-9)

		assert.Error(t, testDB.UpdateAttributionWeight(999999, 1.0))
		assert.Error(t, testDB.UpdateDecisionConfidence(999999, 0.5))
	})
}

func TestOutcomesRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	setup := func(t *testing.T) (*models.Automation, *models.Order) {
		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))
		o := newTestOrder(a.ID, "RELIANCE", models.SideSell)
		require.NoError(t, testDB.CreateOrder(o))
		executeOrder(t, testDB, o, decimal.NewFromInt(100))
		return a, o
	}

	newOutcome := func(a *models.Automation, o *models.Order) *models.TradeOutcome {
		return &models.TradeOutcome{
			OrderID:      o.ID,
			AutomationID: a.ID,
			UserID:       a.UserID,
			Symbol:       o.Symbol,
			EntryPrice:   decimal.NewFromInt(50),
			ExitPrice:    decimal.NewFromInt(75),
			Quantity:     decimal.NewFromInt(4),
			Pnl:          decimal.NewFromInt(100),
			PnlPercent:   decimal.NewFromInt(50),
			Capital:      a.Capital,
			ExitReason:   models.ExitSignal,
		}
	}

	t.Run("CreateTradeOutcome enforces one outcome per order", func(t *testing.T) {
		testDB.TruncateAll(t)
		a, o := setup(t)

		exists, err := testDB.OutcomeExistsForOrder(o.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, testDB.CreateTradeOutcome(newOutcome(a, o)))

		exists, err = testDB.OutcomeExistsForOrder(o.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		// The order_id unique constraint rejects a second record.
		assert.Error(t, testDB.CreateTradeOutcome(newOutcome(a, o)))
	})

	t.Run("GetWinRateStats aggregates over the window", func(t *testing.T) {
		testDB.TruncateAll(t)
		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		pnls := []int64{100, -40, 60}
		for _, pnl := range pnls {
			o := newTestOrder(a.ID, "RELIANCE", models.SideSell)
			require.NoError(t, testDB.CreateOrder(o))
			executeOrder(t, testDB, o, decimal.NewFromInt(pnl))

			outcome := newOutcome(a, o)
			outcome.Pnl = decimal.NewFromInt(pnl)
			outcome.PnlPercent = decimal.NewFromInt(pnl / 10)
			require.NoError(t, testDB.CreateTradeOutcome(outcome))
		}

		stats, err := testDB.GetWinRateStats("user-1", time.Now().AddDate(0, 0, -1))
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Trades)
		assert.Equal(t, 2, stats.Wins)
		assert.InDelta(t, 2.0/3.0, stats.WinRate, 1e-9)
		assert.True(t, decimal.NewFromInt(4).Equal(stats.AvgReturnPct), "got %s", stats.AvgReturnPct)

		// A window in the future is empty and reports zero trades.
		stats, err = testDB.GetWinRateStats("user-1", time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, stats.Trades)
		assert.Zero(t, stats.WinRate)
	})

	t.Run("confidence history is append-only per decision", func(t *testing.T) {
		testDB.TruncateAll(t)

		d := newTestDecision("user-1", nil)
		require.NoError(t, testDB.CreateDecision(d))

		first := &models.ConfidenceHistory{
			DecisionID:         d.ID,
			OriginalConfidence: 0.75,
			AdjustedConfidence: 0.80,
			Trigger:            models.TriggerTradeOutcome,
			Actor:              models.ActorSystem,
		}
		require.NoError(t, testDB.CreateConfidenceHistory(first))

		second := &models.ConfidenceHistory{
			DecisionID:         d.ID,
			OriginalConfidence: 0.80,
			AdjustedConfidence: 0.74,
			Trigger:            models.TriggerManualReview,
			Actor:              models.ActorSystem,
			Note:               "held for review",
		}
		require.NoError(t, testDB.CreateConfidenceHistory(second))

		history, err := testDB.GetConfidenceHistoryByDecision(d.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.TriggerTradeOutcome, history[0].Trigger)
		assert.Equal(t, "held for review", history[1].Note)
	})
}

func TestPaperPositionsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("UpsertPaperPosition inserts then overwrites", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		openedAt := time.Now().Add(-24 * time.Hour)
		require.NoError(t, testDB.UpsertPaperPosition(a.ID, "RELIANCE", decimal.NewFromInt(4), decimal.NewFromInt(50), openedAt))
		require.NoError(t, testDB.UpsertPaperPosition(a.ID, "RELIANCE", decimal.NewFromInt(6), decimal.NewFromInt(52), openedAt))

		positions, err := testDB.GetAllPaperPositions()
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.True(t, decimal.NewFromInt(6).Equal(positions[0].Quantity))
		assert.True(t, decimal.NewFromInt(52).Equal(positions[0].AverageCost))
		assert.WithinDuration(t, openedAt, positions[0].OpenedAt, time.Second)
	})

	t.Run("DeletePaperPosition removes the snapshot", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		require.NoError(t, testDB.UpsertPaperPosition(a.ID, "RELIANCE", decimal.NewFromInt(4), decimal.NewFromInt(50), time.Now()))
		require.NoError(t, testDB.DeletePaperPosition(a.ID, "RELIANCE"))

		positions, err := testDB.GetAllPaperPositions()
		require.NoError(t, err)
		assert.Empty(t, positions)
	})
}
