package events

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/testimonioya/recovery-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRecoveryCaseOpened   EventType = "recovery_case_opened"
	EventRecoveryMessageAdded EventType = "recovery_message_added"
	EventRecoveryCaseClosed   EventType = "recovery_case_closed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	CaseID     string      `json:"case_id"`
	BusinessID string      `json:"business_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// NewEvent stamps an event with a ULID and the given time.
func NewEvent(eventType EventType, c *domain.RecoveryCase, at time.Time, payload interface{}) Event {
	return Event{
		ID:         ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		Type:       eventType,
		CaseID:     c.ID,
		BusinessID: c.BusinessID,
		Timestamp:  at,
		Payload:    payload,
	}
}

// CaseOpenedPayload payload.
type CaseOpenedPayload struct {
	NPSResponseID *string `json:"nps_response_id,omitempty"`
	HasEmail      bool    `json:"has_email"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	Role         domain.MessageRole `json:"role"`
	Text         string             `json:"text"`
	MessageCount int                `json:"message_count"`
}

// CaseClosedPayload payload.
type CaseClosedPayload struct {
	MessageCount int `json:"message_count"`
}

// Preview trims text to at most n runes for logs and subjects.
func Preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
