package domain

import (
	"strings"
	"time"

	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

// MaxCaseMessages caps the thread length over the whole case lifetime.
const MaxCaseMessages = 5

// CaseStatus enumerates lifecycle states for recovery cases.
type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "open"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusClosed     CaseStatus = "closed"
)

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusOpen, CaseStatusInProgress, CaseStatusClosed:
		return true
	}
	return false
}

// MessageRole identifies the author side of a message.
type MessageRole string

const (
	RoleBusiness MessageRole = "business"
	RoleCustomer MessageRole = "customer"
)

// Valid reports whether r is a known role.
func (r MessageRole) Valid() bool {
	return r == RoleBusiness || r == RoleCustomer
}

// Counterpart returns the role on the other side of the conversation.
func (r MessageRole) Counterpart() MessageRole {
	if r == RoleBusiness {
		return RoleCustomer
	}
	return RoleBusiness
}

// Message is one entry in a recovery thread. It is owned by its case.
type Message struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
}

// RecoveryCase is the aggregate for a feedback-recovery conversation.
type RecoveryCase struct {
	ID            string
	BusinessID    string
	NPSResponseID *string
	CustomerName  *string
	CustomerEmail *string
	Status        CaseStatus
	Messages      []Message
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasCustomerChannel reports whether token-authenticated replies are possible.
func (c *RecoveryCase) HasCustomerChannel() bool {
	return c.CustomerEmail != nil && strings.TrimSpace(*c.CustomerEmail) != ""
}

// Email returns the customer email or "".
func (c *RecoveryCase) Email() string {
	if c.CustomerEmail == nil {
		return ""
	}
	return *c.CustomerEmail
}

// DisplayName returns the customer name or fallback.
func (c *RecoveryCase) DisplayName(fallback string) string {
	if c.CustomerName == nil || strings.TrimSpace(*c.CustomerName) == "" {
		return fallback
	}
	return *c.CustomerName
}

// IsClosed reports whether the case is in its terminal state.
func (c *RecoveryCase) IsClosed() bool {
	return c.Status == CaseStatusClosed
}

// Append applies a message to the case in place. The checks run in a fixed
// order: closed, blank text, message cap. On error the case is untouched.
func (c *RecoveryCase) Append(role MessageRole, text string, now time.Time) (Message, error) {
	if !role.Valid() {
		return Message{}, apperrors.NewValidationError("unknown author role", map[string]any{"role": role})
	}
	if c.IsClosed() {
		return Message{}, apperrors.NewCaseClosed()
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, apperrors.NewValidationError("message is required", nil)
	}
	if len(c.Messages) >= MaxCaseMessages {
		return Message{}, apperrors.NewMessageLimitReached(MaxCaseMessages)
	}

	msg := Message{Role: role, Text: trimmed, CreatedAt: now}
	messages := make([]Message, len(c.Messages), len(c.Messages)+1)
	copy(messages, c.Messages)
	c.Messages = append(messages, msg)
	if role == RoleBusiness {
		c.Status = CaseStatusInProgress
	}
	c.UpdatedAt = now
	return msg, nil
}

// Close moves the case to its terminal state. It reports whether anything changed.
func (c *RecoveryCase) Close(now time.Time) bool {
	if c.IsClosed() {
		return false
	}
	c.Status = CaseStatusClosed
	c.UpdatedAt = now
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (c *RecoveryCase) Clone() *RecoveryCase {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.NPSResponseID = clonePtr(c.NPSResponseID)
	out.CustomerName = clonePtr(c.CustomerName)
	out.CustomerEmail = clonePtr(c.CustomerEmail)
	return &out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
