package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/testimonioya/recovery-service/internal/api/dto"
	"github.com/testimonioya/recovery-service/internal/auth"
	"github.com/testimonioya/recovery-service/internal/domain"
	"github.com/testimonioya/recovery-service/internal/service"
	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

// RecoveryHandler manages business-side recovery endpoints.
type RecoveryHandler struct {
	service *service.RecoveryService
}

// NewRecoveryHandler constructs handler.
func NewRecoveryHandler(recoveryService *service.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{service: recoveryService}
}

// Reply POST /v1/recovery-reply.
func (h *RecoveryHandler) Reply(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.BusinessReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CaseID == "" {
		return apperrors.NewValidationError("case_id and message are required", nil)
	}

	result, err := h.service.BusinessReply(c.UserContext(), principal.UserID, req.CaseID, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(replyResponse(result))
}

// ListCases GET /v1/recovery/cases?business_id=.
func (h *RecoveryHandler) ListCases(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	cases, err := h.service.ListForBusiness(c.UserContext(), principal.UserID,
		c.Query("business_id"), c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	items := make([]dto.CaseSummary, 0, len(cases))
	for i := range cases {
		items = append(items, caseSummary(&cases[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetCase GET /v1/recovery/cases/:id.
func (h *RecoveryHandler) GetCase(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	rc, err := h.service.GetForBusiness(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(rc)})
}

// CloseCase POST /v1/recovery/cases/:id/close.
func (h *RecoveryHandler) CloseCase(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	rc, err := h.service.Close(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseDetail(rc)})
}

// CustomerLink GET /v1/recovery/cases/:id/link.
func (h *RecoveryHandler) CustomerLink(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	link, err := h.service.CustomerLink(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CustomerLinkResponse{URL: link}})
}

func replyResponse(result *service.AppendResult) dto.ReplyResponse {
	return dto.ReplyResponse{
		Success:      true,
		Status:       result.Case.Status,
		MessageCount: len(result.Case.Messages),
		Message:      messageResponse(result.Message),
	}
}

func messageResponse(m domain.Message) dto.MessageResponse {
	return dto.MessageResponse{Role: m.Role, Text: m.Text, CreatedAt: m.CreatedAt}
}

func messageResponses(msgs []domain.Message) []dto.MessageResponse {
	out := make([]dto.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse(m))
	}
	return out
}

func caseSummary(rc *domain.RecoveryCase) dto.CaseSummary {
	return dto.CaseSummary{
		ID:            rc.ID,
		BusinessID:    rc.BusinessID,
		NPSResponseID: rc.NPSResponseID,
		CustomerName:  rc.CustomerName,
		CustomerEmail: rc.CustomerEmail,
		Status:        rc.Status,
		MessageCount:  len(rc.Messages),
		CreatedAt:     rc.CreatedAt,
		UpdatedAt:     rc.UpdatedAt,
	}
}

func caseDetail(rc *domain.RecoveryCase) dto.CaseDetailResponse {
	return dto.CaseDetailResponse{
		CaseSummary:   caseSummary(rc),
		Messages:      messageResponses(rc.Messages),
		RemainingMsgs: remaining(rc),
	}
}

func remaining(rc *domain.RecoveryCase) int {
	if rc.IsClosed() {
		return 0
	}
	if n := domain.MaxCaseMessages - len(rc.Messages); n > 0 {
		return n
	}
	return 0
}
