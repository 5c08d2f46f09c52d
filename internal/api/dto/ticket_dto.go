package dto

import (
	"time"

	"github.com/spec-kit/support-copilot/internal/domain"
)

// RaiseTicketRequest payload for manual intake.
type RaiseTicketRequest struct {
	TicketID string       `json:"ticket_id"`
	Issue    string       `json:"issue"`
	Category string       `json:"category"`
	Priority string       `json:"priority"`
	Stage    domain.Stage `json:"stage"`

	// Optional overrides for tickets raised directly into a later stage.
	Response   *string  `json:"response"`
	Resolution *string  `json:"resolution"`
	Tone       *string  `json:"tone"`
	Confidence *float64 `json:"confidence"`
}

// ApproveRequest payload for approving a draft.
type ApproveRequest struct {
	From       domain.Stage `json:"from"`
	Resolution string       `json:"resolution"`
}

// EscalateRequest payload for escalating a ticket.
type EscalateRequest struct {
	From   domain.Stage `json:"from"`
	Reason *string      `json:"reason"`
}

// ResolveRequest payload for closing an escalated ticket.
type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

// RephraseRequest payload for draft rewording.
type RephraseRequest struct {
	Text        string  `json:"text"`
	Temperature float64 `json:"temperature"`
}

// RephraseResponse carries the reworded text.
type RephraseResponse struct {
	Text string `json:"text"`
}

// TicketResponse is the full lifecycle record.
type TicketResponse struct {
	TicketID              string     `json:"ticket_id"`
	Issue                 string     `json:"issue"`
	Category              string     `json:"category"`
	Priority              string     `json:"priority"`
	CreationTime          time.Time  `json:"ticket_creation_time"`
	ClosureTime           *time.Time `json:"ticket_closure_time"`
	IsDrafted             bool       `json:"drafted"`
	Tone                  *string    `json:"tone"`
	EscalationReason      *string    `json:"escalation_reason"`
	NeedsAttention        bool       `json:"needs_attention"`
	FailureReason         *string    `json:"failure_reason"`
	Confidence            *float64   `json:"confidence"`
	UsedPolicy            *string    `json:"used_policy"`
	UsedReferenceTicketID *string    `json:"used_reference_ticket_id"`
	AIDraftedResponse     *string    `json:"ai_drafted_response"`
	Resolution            *string    `json:"resolution"`
}

// SnippetResponse is one retrieved piece of evidence.
type SnippetResponse struct {
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Distance   float64           `json:"distance"`
	Confidence float64           `json:"confidence"`
}

// ContextResponse bundles the evidence a reviewer sees next to a draft.
type ContextResponse struct {
	TicketID        string            `json:"ticket_id"`
	Policy          []SnippetResponse `json:"policy"`
	PreviousRecords []SnippetResponse `json:"previous_records"`
}
