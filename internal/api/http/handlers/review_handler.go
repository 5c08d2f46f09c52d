package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-copilot/internal/api/dto"
	"github.com/spec-kit/support-copilot/internal/domain"
	"github.com/spec-kit/support-copilot/internal/service"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// ReviewHandler serves the agent-facing review actions.
type ReviewHandler struct {
	engine   *service.TransitionEngine
	rephrase *service.RephraseService
}

// NewReviewHandler constructs handler.
func NewReviewHandler(engine *service.TransitionEngine, rephrase *service.RephraseService) *ReviewHandler {
	return &ReviewHandler{engine: engine, rephrase: rephrase}
}

// Approve POST /tickets/:id/approve.
func (h *ReviewHandler) Approve(c *fiber.Ctx) error {
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	from := req.From
	if from == "" {
		from = domain.StageDrafted
	}
	ticket, err := h.engine.Approve(c.UserContext(), c.Params("id"), from, req.Resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Escalate POST /tickets/:id/escalate.
func (h *ReviewHandler) Escalate(c *fiber.Ctx) error {
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	from := req.From
	if from == "" {
		from = domain.StageDrafted
	}
	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}
	ticket, err := h.engine.Escalate(c.UserContext(), c.Params("id"), from, reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Resolve POST /tickets/:id/resolve closes an escalated ticket.
func (h *ReviewHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.engine.Resolve(c.UserContext(), c.Params("id"), req.Resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Rephrase POST /rephrase rewords draft text at the requested creativity.
func (h *ReviewHandler) Rephrase(c *fiber.Ctx) error {
	var req dto.RephraseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperrors.NewValidationError("text required", nil)
	}
	reworded, err := h.rephrase.Rephrase(c.UserContext(), req.Text, req.Temperature)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RephraseResponse{Text: reworded}})
}
