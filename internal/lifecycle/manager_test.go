package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

type mockStore struct {
	automation *models.Automation
	getErr     error

	transitions []string
	changed     bool
	transErr    error
}

func (m *mockStore) GetAutomationByID(id int) (*models.Automation, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.automation, nil
}

func (m *mockStore) TransitionAutomation(id int, from []string, to, reason, actor string) (bool, error) {
	m.transitions = append(m.transitions, to)
	return m.changed, m.transErr
}

type mockNotifier struct {
	paused    []string
	completed []string
}

func (m *mockNotifier) AutomationPaused(automationID int, reason string) {
	m.paused = append(m.paused, reason)
}

func (m *mockNotifier) AutomationCompleted(automationID int, reason string) {
	m.completed = append(m.completed, reason)
}

func TestManagerActivate(t *testing.T) {
	t.Run("activates an approved paper automation", func(t *testing.T) {
		store := &mockStore{
			automation: &models.Automation{ID: 1, Status: models.StatusApproved, TradingMode: models.ModePaper},
			changed:    true,
		}
		m := NewManager(store, nil)

		require.NoError(t, m.Activate(1, models.ActorHuman))
		assert.Equal(t, []string{models.StatusActive}, store.transitions)
	})

	t.Run("already active is a no-op", func(t *testing.T) {
		store := &mockStore{
			automation: &models.Automation{ID: 1, Status: models.StatusActive, TradingMode: models.ModePaper},
		}
		m := NewManager(store, nil)

		require.NoError(t, m.Activate(1, models.ActorHuman))
		assert.Empty(t, store.transitions)
	})

	t.Run("live mode without consent is refused", func(t *testing.T) {
		store := &mockStore{
			automation: &models.Automation{ID: 1, Status: models.StatusApproved, TradingMode: models.ModeLive},
		}
		m := NewManager(store, nil)

		err := m.Activate(1, models.ActorHuman)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "consent")
		assert.Empty(t, store.transitions)
	})

	t.Run("live mode with consent activates", func(t *testing.T) {
		now := time.Now()
		store := &mockStore{
			automation: &models.Automation{
				ID: 1, Status: models.StatusApproved,
				TradingMode: models.ModeLive, LiveConsentAt: &now,
			},
			changed: true,
		}
		m := NewManager(store, nil)

		require.NoError(t, m.Activate(1, models.ActorHuman))
		assert.Equal(t, []string{models.StatusActive}, store.transitions)
	})
}

func TestManagerResume(t *testing.T) {
	t.Run("resumes a paused automation", func(t *testing.T) {
		store := &mockStore{
			automation: &models.Automation{ID: 1, Status: models.StatusPaused},
			changed:    true,
		}
		m := NewManager(store, nil)

		require.NoError(t, m.Resume(1, models.ActorHuman))
		assert.Equal(t, []string{models.StatusActive}, store.transitions)
	})

	t.Run("completed automation cannot be resumed", func(t *testing.T) {
		store := &mockStore{
			automation: &models.Automation{ID: 1, Status: models.StatusCompleted},
		}
		m := NewManager(store, nil)

		err := m.Resume(1, models.ActorHuman)
		require.Error(t, err)
		assert.Empty(t, store.transitions)
	})
}

func TestManagerPause(t *testing.T) {
	t.Run("notifies on a real transition", func(t *testing.T) {
		store := &mockStore{changed: true}
		notifier := &mockNotifier{}
		m := NewManager(store, notifier)

		require.NoError(t, m.Pause(1, "max loss reached", models.ActorSystem))
		assert.Equal(t, []string{"max loss reached"}, notifier.paused)
	})

	t.Run("repeated pause does not notify twice", func(t *testing.T) {
		store := &mockStore{changed: false}
		notifier := &mockNotifier{}
		m := NewManager(store, notifier)

		require.NoError(t, m.Pause(1, "max loss reached", models.ActorSystem))
		assert.Empty(t, notifier.paused)
	})
}

func TestManagerComplete(t *testing.T) {
	store := &mockStore{changed: true}
	notifier := &mockNotifier{}
	m := NewManager(store, notifier)

	require.NoError(t, m.Complete(1, "profit target reached", models.ActorSystem))
	assert.Equal(t, []string{"profit target reached"}, notifier.completed)
}

func TestCompletionRequest(t *testing.T) {
	req := CompletionRequest(42, "profit target reached")
	assert.Equal(t, 42, req.AutomationID)
	assert.Equal(t, models.StatusCompleted, req.To)
	assert.Equal(t, []string{models.StatusActive}, req.From)
	assert.Equal(t, models.ActorSystem, req.Actor)
}
