package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Event type constants
const (
	EventOrderExecuted        = "ORDER_EXECUTED"
	EventAutomationPaused     = "AUTOMATION_PAUSED"
	EventAutomationCompleted  = "AUTOMATION_COMPLETED"
	EventTradeOutcomeRecorded = "TRADE_OUTCOME_RECORDED"
)

// Envelope is the wire format for all published trading events.
type Envelope struct {
	EventType    string               `json:"event_type"`
	AutomationID int                  `json:"automation_id"`
	Reason       string               `json:"reason,omitempty"`
	Order        *models.Order        `json:"order,omitempty"`
	Outcome      *models.TradeOutcome `json:"outcome,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Publisher handles publishing trading events to Kafka. A nil Publisher
// is valid and publishes nothing, so event delivery stays optional.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	log    *log.Entry
}

// NewPublisher creates a new Kafka publisher
func NewPublisher(brokers []string, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Publisher{
		writer: writer,
		topic:  topic,
		log:    log.WithField("component", "events"),
	}
}

// PublishOrderExecuted publishes an order execution event
func (p *Publisher) PublishOrderExecuted(ctx context.Context, order *models.Order) {
	if p == nil {
		return
	}
	p.publish(ctx, fmt.Sprintf("automation-%d", order.AutomationID), Envelope{
		EventType:    EventOrderExecuted,
		AutomationID: order.AutomationID,
		Order:        order,
		Timestamp:    time.Now(),
	})
}

// PublishTradeOutcomeRecorded publishes a trade closure event
func (p *Publisher) PublishTradeOutcomeRecorded(ctx context.Context, outcome *models.TradeOutcome) {
	if p == nil {
		return
	}
	p.publish(ctx, fmt.Sprintf("automation-%d", outcome.AutomationID), Envelope{
		EventType:    EventTradeOutcomeRecorded,
		AutomationID: outcome.AutomationID,
		Outcome:      outcome,
		Timestamp:    time.Now(),
	})
}

// AutomationPaused publishes a pause event. Satisfies lifecycle.Notifier.
func (p *Publisher) AutomationPaused(automationID int, reason string) {
	if p == nil {
		return
	}
	p.publish(context.Background(), fmt.Sprintf("automation-%d", automationID), Envelope{
		EventType:    EventAutomationPaused,
		AutomationID: automationID,
		Reason:       reason,
		Timestamp:    time.Now(),
	})
}

// AutomationCompleted publishes a completion event. Satisfies lifecycle.Notifier.
func (p *Publisher) AutomationCompleted(automationID int, reason string) {
	if p == nil {
		return
	}
	p.publish(context.Background(), fmt.Sprintf("automation-%d", automationID), Envelope{
		EventType:    EventAutomationCompleted,
		AutomationID: automationID,
		Reason:       reason,
		Timestamp:    time.Now(),
	})
}

// publish writes one event. Delivery is best effort: a broker outage must
// never block or fail the trading path, so errors are logged and dropped.
func (p *Publisher) publish(ctx context.Context, key string, event Envelope) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("failed to marshal event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithField("event_type", event.EventType).WithError(err).Warn("failed to write message to kafka")
	}
}

// Close closes the Kafka publisher
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
