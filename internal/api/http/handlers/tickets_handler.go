package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-copilot/internal/api/dto"
	"github.com/spec-kit/support-copilot/internal/domain"
	"github.com/spec-kit/support-copilot/internal/retrieval"
	"github.com/spec-kit/support-copilot/internal/service"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// TicketsHandler serves intake and read endpoints across the lifecycle stores.
type TicketsHandler struct {
	engine  *service.TransitionEngine
	builder *retrieval.Builder
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(engine *service.TransitionEngine, builder *retrieval.Builder) *TicketsHandler {
	return &TicketsHandler{engine: engine, builder: builder}
}

// RaiseTicket POST /tickets.
func (h *TicketsHandler) RaiseTicket(c *fiber.Ctx) error {
	var req dto.RaiseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Issue) == "" {
		return apperrors.NewValidationError("issue required", nil)
	}
	target := req.Stage
	if target == "" {
		target = domain.StagePending
	}

	input := service.IntakeInput{
		TicketID: req.TicketID,
		Issue:    req.Issue,
		Category: req.Category,
		Priority: req.Priority,
		Target:   target,
	}
	if req.Tone != nil {
		input.Tone = *req.Tone
	}
	if req.Confidence != nil {
		input.Confidence = req.Confidence
	}
	switch target {
	case domain.StageDrafted:
		if req.Response != nil {
			input.DraftedResponse = *req.Response
		}
	case domain.StageEscalated:
		if req.Response != nil {
			input.EscalationReason = *req.Response
		}
	case domain.StageCompleted:
		if req.Resolution != nil {
			input.Resolution = *req.Resolution
		}
	}

	ticket, err := h.engine.Intake(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListNeedsAttention GET /tickets/attention.
func (h *TicketsHandler) ListNeedsAttention(c *fiber.Ctx) error {
	limit := parseLimit(c.Query("limit"), 50)
	tickets := h.engine.ListNeedsAttention(c.UserContext(), limit)
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// ListTickets GET /tickets/:stage.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	stage, err := parseStage(c.Params("stage"))
	if err != nil {
		return err
	}
	limit := parseLimit(c.Query("limit"), 50)
	tickets := h.engine.ListRecent(c.UserContext(), stage, limit)
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// GetTicket GET /tickets/:stage/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	stage, err := parseStage(c.Params("stage"))
	if err != nil {
		return err
	}
	ticket, err := h.engine.GetTicket(c.UserContext(), stage, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetContext GET /tickets/:stage/:id/context re-runs retrieval for the
// ticket's issue so reviewers see the evidence a draft was built against.
func (h *TicketsHandler) GetContext(c *fiber.Ctx) error {
	stage, err := parseStage(c.Params("stage"))
	if err != nil {
		return err
	}
	ticket, err := h.engine.GetTicket(c.UserContext(), stage, c.Params("id"))
	if err != nil {
		return err
	}
	evidence, err := h.builder.Build(c.UserContext(), ticket.Issue)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ContextResponse{
		TicketID:        ticket.TicketID,
		Policy:          snippetResponses(evidence.Policy),
		PreviousRecords: snippetResponses(evidence.PreviousRecords),
	}})
}

func parseStage(raw string) (domain.Stage, error) {
	stage := domain.Stage(strings.ToLower(strings.TrimSpace(raw)))
	if !stage.Valid() {
		return "", apperrors.NewValidationError("unknown stage", map[string]any{"stage": raw})
	}
	return stage, nil
}

func parseLimit(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		TicketID:              t.TicketID,
		Issue:                 t.Issue,
		Category:              t.Metadata.Category,
		Priority:              t.Metadata.Priority,
		CreationTime:          t.Metadata.CreationTime,
		ClosureTime:           t.Metadata.ClosureTime,
		IsDrafted:             t.Metadata.IsDrafted,
		Tone:                  t.Metadata.Tone,
		EscalationReason:      t.Metadata.EscalationReason,
		NeedsAttention:        t.Metadata.NeedsAttention,
		FailureReason:         t.Metadata.FailureReason,
		Confidence:            t.Confidence,
		UsedPolicy:            t.UsedPolicy,
		UsedReferenceTicketID: t.UsedReferenceTicketID,
		AIDraftedResponse:     t.AIDraftedResponse,
		Resolution:            t.Resolution,
	}
}

func ticketResponses(tickets []domain.Ticket) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}

func snippetResponses(snippets []retrieval.Snippet) []dto.SnippetResponse {
	items := make([]dto.SnippetResponse, 0, len(snippets))
	for _, s := range snippets {
		items = append(items, dto.SnippetResponse{
			Content:    s.Content,
			Metadata:   s.Metadata,
			Distance:   s.Distance,
			Confidence: s.Confidence(),
		})
	}
	return items
}
