package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/chantiers-api/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoginFailed    EventType = "login_failed"
	EventLoggedOut      EventType = "logged_out"
)

// Event represents an authentication event emitted by services.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	SubjectID     *string     `json:"subject_id,omitempty"`
	Username      string      `json:"username,omitempty"`
	SourceAddress string      `json:"source_address,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload,omitempty"`
}

// LoginFailedPayload carries the internal rejection reason. It is never sent
// to clients.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}

// LoginSucceededPayload payload.
type LoginSucceededPayload struct {
	Role    domain.Role `json:"role"`
	TokenID string      `json:"token_id"`
}

// LoggedOutPayload payload.
type LoggedOutPayload struct {
	TokenID string `json:"token_id"`
}

// NewEvent stamps an event with an id and time.
func NewEvent(eventType EventType, entry domain.LoginHistoryEntry, payload interface{}) Event {
	ts := entry.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SubjectID:     entry.SubjectID,
		Username:      entry.Username,
		SourceAddress: entry.SourceAddress,
		Timestamp:     ts,
		Payload:       payload,
	}
}
