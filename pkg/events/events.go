package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aforo/aforo/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) (Subscription, error)
	QueueSubscribe(subject, queue string, handler func(msg *Message)) (Subscription, error)
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

// Subscription can be released independently of the bus, so a change-feed
// client disconnecting does not tear down other subscribers.
type Subscription interface {
	Unsubscribe() error
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) (Subscription, error) {
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) (Subscription, error) {
	sub, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Subjects. Change events fan out on one subject per tenant; everything a
// tenant's staff devices care about travels on that single channel.
const (
	changeSubjectPrefix = "changes"

	NotifySend = "notify.send"
)

// ChangeSubject returns the per-tenant change-feed subject.
func ChangeSubject(tenantID string) string {
	return changeSubjectPrefix + "." + tenantID
}

// Entity types carried in change events.
const (
	EntityReservation = "reservation"
	EntityGuestPass   = "event_guest_pass"
	EntityWalkIn      = "walk_in"
	EntityPromoter    = "promoter"
)

// ChangeEvent is the wire format of the per-tenant change feed. Delivery is
// at-most-once; a subscriber that missed events resyncs with a full pull.
type ChangeEvent struct {
	EntityType      string         `json:"entity_type"`
	EntityID        string         `json:"entity_id"`
	TenantID        string         `json:"tenant_id"`
	ChangedFields   []string       `json:"changed_fields"`
	Fields          map[string]any `json:"fields,omitempty"`
	ServerTimestamp time.Time      `json:"server_timestamp"`
}

// AttendanceFields is the payload attached to a check-in change event.
type AttendanceFields struct {
	AttendanceCount int    `json:"attendance_count"`
	Capacity        int    `json:"capacity"`
	Excess          int    `json:"excess"`
	Status          string `json:"status"`
}

// NotificationEvent asks the notify worker to deliver a message.
type NotificationEvent struct {
	Type      string                 `json:"type"`
	Recipient string                 `json:"recipient"`
	Subject   string                 `json:"subject"`
	Template  string                 `json:"template"`
	Data      map[string]interface{} `json:"data"`
}
