package dto

import (
	"time"

	"github.com/testimonioya/recovery-service/internal/domain"
)

// BusinessReplyRequest payload.
type BusinessReplyRequest struct {
	CaseID  string `json:"case_id"`
	Message string `json:"message"`
}

// CustomerReplyRequest payload.
type CustomerReplyRequest struct {
	CaseID  string `json:"case_id"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// ReplyResponse is returned by both reply endpoints.
type ReplyResponse struct {
	Success      bool              `json:"success"`
	Status       domain.CaseStatus `json:"status"`
	MessageCount int               `json:"message_count"`
	Message      MessageResponse   `json:"message"`
}

// MessageResponse is one thread entry.
type MessageResponse struct {
	Role      domain.MessageRole `json:"role"`
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"created_at"`
}

// CaseSummary is a row in the dashboard list.
type CaseSummary struct {
	ID            string            `json:"id"`
	BusinessID    string            `json:"business_id"`
	NPSResponseID *string           `json:"nps_response_id"`
	CustomerName  *string           `json:"customer_name"`
	CustomerEmail *string           `json:"customer_email"`
	Status        domain.CaseStatus `json:"status"`
	MessageCount  int               `json:"message_count"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CaseDetailResponse is the owner view of a case.
type CaseDetailResponse struct {
	CaseSummary
	Messages      []MessageResponse `json:"messages"`
	RemainingMsgs int               `json:"remaining_messages"`
}

// PublicCaseResponse is the customer view of a case. It omits the email.
type PublicCaseResponse struct {
	ID            string            `json:"id"`
	BusinessName  string            `json:"business_name"`
	CustomerName  *string           `json:"customer_name"`
	Status        domain.CaseStatus `json:"status"`
	Messages      []MessageResponse `json:"messages"`
	RemainingMsgs int               `json:"remaining_messages"`
}

// CustomerLinkResponse carries the reply link for a case.
type CustomerLinkResponse struct {
	URL string `json:"url"`
}

// NPSSubmitRequest payload.
type NPSSubmitRequest struct {
	BusinessID    string `json:"business_id"`
	Score         *int   `json:"score"`
	Feedback      string `json:"feedback"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

// NPSSubmitResponse reports the routing outcome.
type NPSSubmitResponse struct {
	ID       string             `json:"id"`
	Category domain.NPSCategory `json:"category"`
	CaseID   *string            `json:"case_id,omitempty"`
}
