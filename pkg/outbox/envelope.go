package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on events that do not pin their own version.
const SchemaVersion = 1

var (
	ErrMissingEventID = errors.New("envelope has no event id")
	ErrEmptyData      = errors.New("envelope has no data")
)

// Actor identifies who caused an event. Webhook-driven events carry none.
type Actor struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Envelope is the JSON document stored in outbox_events.payload and sent
// verbatim as the Pub/Sub message body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(event DomainEvent, occurredAt time.Time) ([]byte, Envelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := Envelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = SchemaVersion
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return raw, env, nil
}

// DecodeEnvelope parses a stored payload and checks it carries an event id.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return Envelope{}, ErrMissingEventID
	}
	return env, nil
}

// DecodeData unmarshals the envelope body into v. Absent or null bodies fail.
func (e Envelope) DecodeData(v any) error {
	body := bytes.TrimSpace(e.Data)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return ErrEmptyData
	}
	return json.Unmarshal(body, v)
}
