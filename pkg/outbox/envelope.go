package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
)

// EnvelopeVersion is written by Emit when the caller leaves Version unset.
const EnvelopeVersion = 1

var (
	ErrEnvelopeMissingID   = errors.New("envelope missing eventId")
	ErrEnvelopeMissingData = errors.New("envelope missing data")
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// as the message body. EventID equals the outbox row id.
type PayloadEnvelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *ActorRef             `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes that could not
// be published meaningfully.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return PayloadEnvelope{}, ErrEnvelopeMissingID
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, ErrEnvelopeMissingData
	}
	if env.Version == 0 {
		env.Version = EnvelopeVersion
	}
	return env, nil
}
