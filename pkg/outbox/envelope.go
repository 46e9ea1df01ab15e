package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const envelopeVersion = 1

// Actor roles carried in envelopes.
const (
	RoleOwner  = "owner"
	RoleSystem = "system"
)

// ActorRef is who caused the event. Scheduler-driven changes carry the affected user
// with RoleSystem.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

func Owner(userID uuid.UUID) *ActorRef  { return &ActorRef{UserID: userID, Role: RoleOwner} }
func System(userID uuid.UUID) *ActorRef { return &ActorRef{UserID: userID, Role: RoleSystem} }

// PayloadEnvelope is stored in outbox_events.payload and published verbatim as the
// message body. EventID equals the row id.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func encodeEnvelope(id uuid.UUID, event DomainEvent) (json.RawMessage, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	version := event.Version
	if version == 0 {
		version = envelopeVersion
	}
	return json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    id.String(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
}
