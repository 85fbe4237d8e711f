package lifecycle

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/database"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Store is the persistence surface the manager needs.
type Store interface {
	GetAutomationByID(id int) (*models.Automation, error)
	TransitionAutomation(id int, from []string, to, reason, actor string) (bool, error)
}

// Notifier receives lifecycle events once a transition commits.
type Notifier interface {
	AutomationPaused(automationID int, reason string)
	AutomationCompleted(automationID int, reason string)
}

// allowedFrom defines the state machine. A transition into a state is
// legal only from the listed states.
var allowedFrom = map[string][]string{
	models.StatusApproved:  {models.StatusPending},
	models.StatusActive:    {models.StatusApproved, models.StatusPaused},
	models.StatusCompleted: {models.StatusActive},
	models.StatusPaused:    {models.StatusActive},
	models.StatusRejected:  {models.StatusPending},
}

// Manager owns the automation state machine. It is the only authorized
// mutator of automation status; every other component requests
// transitions through it.
type Manager struct {
	store    Store
	notifier Notifier
	log      *log.Entry
}

// NewManager creates a lifecycle manager.
func NewManager(store Store, notifier Notifier) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		log:      log.WithField("component", "lifecycle"),
	}
}

// Approve moves a pending automation to approved.
func (m *Manager) Approve(automationID int, actor string) error {
	_, err := m.transition(automationID, models.StatusApproved, "user approved strategy", actor)
	return err
}

// Activate moves an approved automation to active. Live mode requires
// recorded consent.
func (m *Manager) Activate(automationID int, actor string) error {
	a, err := m.store.GetAutomationByID(automationID)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if a.Status == models.StatusActive {
		return nil
	}
	if err := a.CanActivate(); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	_, err = m.transition(automationID, models.StatusActive, "activated", actor)
	return err
}

// Resume re-activates a paused automation.
func (m *Manager) Resume(automationID int, actor string) error {
	a, err := m.store.GetAutomationByID(automationID)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if a.Status != models.StatusPaused && a.Status != models.StatusActive {
		return fmt.Errorf("resume: cannot resume automation in status %s", a.Status)
	}
	_, err = m.transition(automationID, models.StatusActive, "resumed", actor)
	return err
}

// Pause stops trading for an automation. Re-entrant calls are no-ops.
func (m *Manager) Pause(automationID int, reason, actor string) error {
	changed, err := m.transition(automationID, models.StatusPaused, reason, actor)
	if err != nil {
		return err
	}
	if changed && m.notifier != nil {
		m.notifier.AutomationPaused(automationID, reason)
	}
	return nil
}

// Complete marks the profit target as reached. Re-entrant calls are no-ops.
func (m *Manager) Complete(automationID int, reason, actor string) error {
	changed, err := m.transition(automationID, models.StatusCompleted, reason, actor)
	if err != nil {
		return err
	}
	if changed && m.notifier != nil {
		m.notifier.AutomationCompleted(automationID, reason)
	}
	return nil
}

// Reject declines a pending automation. Rejected is terminal.
func (m *Manager) Reject(automationID int, reason, actor string) error {
	_, err := m.transition(automationID, models.StatusRejected, reason, actor)
	return err
}

// CompletionRequest describes the status transition an order fill must
// commit atomically when it crosses the profit target. The transition
// rules stay owned here even though the write happens inside the order's
// transaction.
func CompletionRequest(automationID int, reason string) *database.StatusTransition {
	return &database.StatusTransition{
		AutomationID: automationID,
		From:         allowedFrom[models.StatusCompleted],
		To:           models.StatusCompleted,
		Reason:       reason,
		Actor:        models.ActorSystem,
	}
}

func (m *Manager) transition(automationID int, to, reason, actor string) (bool, error) {
	from, ok := allowedFrom[to]
	if !ok {
		return false, fmt.Errorf("unknown target status %s", to)
	}

	changed, err := m.store.TransitionAutomation(automationID, from, to, reason, actor)
	if err != nil {
		return false, fmt.Errorf("transition to %s: %w", to, err)
	}

	if changed {
		m.log.WithFields(log.Fields{
			"automation_id": automationID,
			"status":        to,
			"reason":        reason,
		}).Info("automation transitioned")
	}
	return changed, nil
}
