package database

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

func newTestAutomation(userID string) *models.Automation {
	return &models.Automation{
		UserID:              userID,
		AccountID:           "acct-1",
		ProfitTargetPercent: decimal.NewFromInt(10),
		MaxLossPercent:      decimal.NewFromInt(5),
		TimeframeDays:       30,
		RiskTolerance:       models.RiskModerate,
		Symbols:             []string{"RELIANCE", "TCS"},
		TradingMode:         models.ModePaper,
		ApprovalMode:        models.ApprovalAuto,
		Capital:             decimal.NewFromInt(10000),
	}
}

func TestAutomationsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("CreateAutomation creates pending automation", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		err := testDB.CreateAutomation(a)
		require.NoError(t, err)
		assert.NotZero(t, a.ID)
		assert.Equal(t, models.StatusPending, a.Status)
		assert.False(t, a.CreatedAt.IsZero())
	})

	t.Run("GetAutomationByID round-trips fields", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		a.StrategyRules = []byte(`{"buy_above_percent": 3.5}`)
		require.NoError(t, testDB.CreateAutomation(a))

		retrieved, err := testDB.GetAutomationByID(a.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", retrieved.UserID)
		assert.Equal(t, []string{"RELIANCE", "TCS"}, retrieved.Symbols)
		assert.True(t, decimal.NewFromInt(10000).Equal(retrieved.Capital))
		assert.JSONEq(t, `{"buy_above_percent": 3.5}`, string(retrieved.StrategyRules))
		assert.Nil(t, retrieved.ApprovedAt)
	})

	t.Run("TransitionAutomation moves status and records audit row", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		changed, err := testDB.TransitionAutomation(a.ID, []string{models.StatusPending}, models.StatusApproved, "user approved", models.ActorHuman)
		require.NoError(t, err)
		assert.True(t, changed)

		retrieved, err := testDB.GetAutomationByID(a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, retrieved.Status)
		require.NotNil(t, retrieved.ApprovedAt)
		assert.WithinDuration(t, time.Now(), *retrieved.ApprovedAt, 5*time.Second)

		events, err := testDB.GetAutomationEvents(a.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.StatusPending, events[0].FromStatus)
		assert.Equal(t, models.StatusApproved, events[0].ToStatus)
		assert.Equal(t, models.ActorHuman, events[0].Actor)
	})

	t.Run("TransitionAutomation is idempotent on repeated target", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		changed, err := testDB.TransitionAutomation(a.ID, []string{models.StatusPending}, models.StatusApproved, "approved", models.ActorHuman)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = testDB.TransitionAutomation(a.ID, []string{models.StatusPending}, models.StatusApproved, "approved again", models.ActorHuman)
		require.NoError(t, err)
		assert.False(t, changed)

		// No second audit row for the no-op.
		events, err := testDB.GetAutomationEvents(a.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("TransitionAutomation rejects illegal transition", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		_, err := testDB.TransitionAutomation(a.ID, []string{models.StatusActive}, models.StatusCompleted, "done", models.ActorSystem)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid transition")

		retrieved, err := testDB.GetAutomationByID(a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, retrieved.Status)
	})

	t.Run("GetAutomationsByStatus filters", func(t *testing.T) {
		testDB.TruncateAll(t)

		a1 := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a1))
		a2 := newTestAutomation("user-2")
		require.NoError(t, testDB.CreateAutomation(a2))

		_, err := testDB.TransitionAutomation(a2.ID, []string{models.StatusPending}, models.StatusApproved, "approved", models.ActorHuman)
		require.NoError(t, err)
		_, err = testDB.TransitionAutomation(a2.ID, []string{models.StatusApproved}, models.StatusActive, "activated", models.ActorHuman)
		require.NoError(t, err)

		active, err := testDB.GetAutomationsByStatus(models.StatusActive)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, a2.ID, active[0].ID)
	})

	t.Run("DeleteAutomation cascades to orders", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newTestAutomation("user-1")
		require.NoError(t, testDB.CreateAutomation(a))

		order := newTestOrder(a.ID, "RELIANCE", models.SideBuy)
		require.NoError(t, testDB.CreateOrder(order))

		require.NoError(t, testDB.DeleteAutomation(a.ID))

		_, err := testDB.GetOrderByID(order.ID)
		assert.Error(t, err)
	})
}
