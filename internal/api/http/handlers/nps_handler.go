package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/testimonioya/recovery-service/internal/api/dto"
	"github.com/testimonioya/recovery-service/internal/service"
	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

// NPSHandler accepts public survey submissions.
type NPSHandler struct {
	service *service.RecoveryService
}

// NewNPSHandler constructs handler.
func NewNPSHandler(recoveryService *service.RecoveryService) *NPSHandler {
	return &NPSHandler{service: recoveryService}
}

// Submit POST /v1/nps/responses.
func (h *NPSHandler) Submit(c *fiber.Ctx) error {
	var req dto.NPSSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.BusinessID == "" || req.Score == nil {
		return apperrors.NewValidationError("business_id and score are required", nil)
	}

	result, err := h.service.OpenFromNPS(c.UserContext(), service.NPSInput{
		BusinessID:    req.BusinessID,
		Score:         *req.Score,
		Feedback:      req.Feedback,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		return err
	}

	resp := dto.NPSSubmitResponse{ID: result.Response.ID, Category: result.Response.Category}
	if result.Case != nil {
		resp.CaseID = &result.Case.ID
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}
