// Package registry routes outbox rows to Pub/Sub topics and decodes their payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox/payloads"
)

var payloadFactories = map[enums.OutboxEventType]func() any{
	enums.EventTransactionCompleted: func() any { return &payloads.TransactionSettledEvent{} },
	enums.EventTransactionFailed:    func() any { return &payloads.TransactionSettledEvent{} },
	enums.EventTransactionRefunded:  func() any { return &payloads.TransactionRefundedEvent{} },
	enums.EventSubscriptionRenewed:  func() any { return &payloads.SubscriptionRenewedEvent{} },
	enums.EventSubscriptionExpired:  func() any { return &payloads.SubscriptionExpiredEvent{} },
}

// EventDescriptor says where an event type is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// EventRegistry is read-only after construction.
type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry sends every settlement and subscription event to the payments
// topic. Consumers filter on the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.PaymentsTopic == "" {
		return nil, errors.New("payments topic is required")
	}
	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]EventDescriptor, len(payloadFactories))}
	for eventType := range payloadFactories {
		reg.routes[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: eventType.Aggregate(),
			Topic:         cfg.PaymentsTopic,
		}
	}
	return reg, nil
}

// Topics lists the distinct destination topics in sorted order.
func (r *EventRegistry) Topics() []string {
	set := make(map[string]struct{})
	for _, d := range r.routes {
		set[d.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its route and decodes the typed payload. Every
// failure is a NonRetryableError: the row content will not change on retry.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case route.AggregateType != event.AggregateType:
		return nil, permanent("event %s recorded on %s aggregate, want %s", event.EventType, event.AggregateType, route.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("event %s has no aggregate id", event.ID)
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if env.Version < 1 {
		return nil, permanent("envelope version %d unsupported", env.Version)
	}
	if event.ID != uuid.Nil && env.EventID != event.ID.String() {
		return nil, permanent("envelope event id %q does not match row %s", env.EventID, event.ID)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("event %s has an empty payload", event.EventType)
	}

	payload := payloadFactories[event.EventType]()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: route, Envelope: env, Payload: payload}, nil
}
