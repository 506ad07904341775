package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Event subjects
const (
	EventAnalysisCompleted = "renovation.analysis.completed"
	EventStageUpdated      = "renovation.stage.updated"
	EventOrderPaid         = "renovation.order.paid"
)

// AnalysisCompletedEvent is published when an acceptance analysis or report
// artifact finishes (successfully or not)
type AnalysisCompletedEvent struct {
	EventType    string    `json:"event_type"`
	AnalysisID   string    `json:"analysis_id"`
	UserID       string    `json:"user_id"`
	Kind         string    `json:"kind"` // acceptance | quote | contract | company_scan
	Stage        string    `json:"stage,omitempty"`
	Status       string    `json:"status"`
	ResultStatus string    `json:"result_status,omitempty"`
	Severity     string    `json:"severity,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// StageUpdatedEvent is published when a construction stage changes status
type StageUpdatedEvent struct {
	EventType       string    `json:"event_type"`
	UserID          string    `json:"user_id"`
	Stage           string    `json:"stage"`
	Status          string    `json:"status"`
	ProgressPercent int       `json:"progress_percent"`
	Timestamp       time.Time `json:"timestamp"`
}

// OrderPaidEvent is published after an order's pending → paid transition
// commits
type OrderPaidEvent struct {
	EventType string    `json:"event_type"`
	OrderID   string    `json:"order_id"`
	OrderNo   string    `json:"order_no"`
	UserID    string    `json:"user_id"`
	OrderType string    `json:"order_type"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Client wraps a NATS connection for event publishing
type Client struct {
	conn   *nats.Conn
	logger *logrus.Logger
}

// NewClient connects to NATS at the given URL
func NewClient(url string, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{conn: conn, logger: logger}, nil
}

// Close drains and closes the connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Connected reports whether the connection is up
func (c *Client) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// publish marshals and publishes an event; failures are logged, never
// propagated into business flows
func (c *Client) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.WithError(err).WithField("subject", subject).Error("Failed to marshal event")
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		c.logger.WithError(err).WithField("subject", subject).Warn("Failed to publish event")
	}
}

// PublishAnalysisCompleted publishes an analysis completion event
func (c *Client) PublishAnalysisCompleted(event AnalysisCompletedEvent) {
	event.EventType = EventAnalysisCompleted
	event.Timestamp = time.Now()
	c.publish(EventAnalysisCompleted, event)
}

// PublishStageUpdated publishes a stage status change event
func (c *Client) PublishStageUpdated(event StageUpdatedEvent) {
	event.EventType = EventStageUpdated
	event.Timestamp = time.Now()
	c.publish(EventStageUpdated, event)
}

// PublishOrderPaid publishes an order paid event
func (c *Client) PublishOrderPaid(event OrderPaidEvent) {
	event.EventType = EventOrderPaid
	event.Timestamp = time.Now()
	c.publish(EventOrderPaid, event)
}
