package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/testimonioya/recovery-service/internal/api/dto"
	"github.com/testimonioya/recovery-service/internal/service"
	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

// CustomerHandler serves the token-authenticated customer endpoints.
type CustomerHandler struct {
	service *service.RecoveryService
}

// NewCustomerHandler constructs handler.
func NewCustomerHandler(recoveryService *service.RecoveryService) *CustomerHandler {
	return &CustomerHandler{service: recoveryService}
}

// Reply POST /v1/recovery-customer-reply.
func (h *CustomerHandler) Reply(c *fiber.Ctx) error {
	var req dto.CustomerReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CaseID == "" || req.Token == "" {
		return apperrors.NewValidationError("case_id, token, and message are required", nil)
	}

	result, err := h.service.CustomerReply(c.UserContext(), req.CaseID, req.Token, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(replyResponse(result))
}

// GetCase GET /v1/recovery/public/:id?token=.
func (h *CustomerHandler) GetCase(c *fiber.Ctx) error {
	view, err := h.service.GetForCustomer(c.UserContext(), c.Params("id"), c.Query("token"))
	if err != nil {
		return err
	}
	rc := view.Case
	return c.JSON(fiber.Map{"data": dto.PublicCaseResponse{
		ID:            rc.ID,
		BusinessName:  view.BusinessName,
		CustomerName:  rc.CustomerName,
		Status:        rc.Status,
		Messages:      messageResponses(rc.Messages),
		RemainingMsgs: remaining(rc),
	}})
}
