package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event. ID carries the actor string
// stored on intents and orders (user:<uuid>, guest:<email> or anonymous).
type ActorRef struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
