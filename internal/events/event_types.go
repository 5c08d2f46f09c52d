package events

import (
	"time"

	"github.com/spec-kit/support-copilot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventTicketClaimed     EventType = "ticket_claimed"
	EventTicketDrafted     EventType = "ticket_drafted"
	EventTicketDraftFailed EventType = "ticket_draft_failed"
	EventTicketEscalated   EventType = "ticket_escalated"
	EventTicketCompleted   EventType = "ticket_completed"
)

// Event represents a lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Stage    domain.Stage `json:"stage"`
	Category string       `json:"category"`
	Priority string       `json:"priority"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// TicketDraftedPayload payload.
type TicketDraftedPayload struct {
	Confidence float64 `json:"confidence"`
	Tone       string  `json:"tone"`
	UsedPolicy *string `json:"used_policy,omitempty"`
}

// TicketDraftFailedPayload payload.
type TicketDraftFailedPayload struct {
	Reason string `json:"reason"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	From   domain.Stage `json:"from"`
	Reason string       `json:"reason,omitempty"`
}

// TicketCompletedPayload payload.
type TicketCompletedPayload struct {
	From       domain.Stage `json:"from"`
	Resolution string       `json:"resolution"`
}
