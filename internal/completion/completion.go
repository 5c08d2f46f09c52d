// Package completion invokes the external completion service for draft
// generation and rephrasing. It is a pure function of its inputs plus one
// external call; nothing here touches the lifecycle stores.
package completion

import (
	"context"

	"github.com/spec-kit/support-copilot/internal/retrieval"
)

// Draft is the structured result of one drafting call.
type Draft struct {
	TicketID              string   `json:"ticket_id"`
	Reply                 string   `json:"reply"`
	Tone                  string   `json:"tone"`
	Confidence            float64  `json:"confidence"`
	UsedPolicy            *string  `json:"used_policy"`
	UsedReferenceTicketID *string  `json:"used_reference_ticket_id"`
}

// DraftRequest carries the ticket and its retrieved evidence.
type DraftRequest struct {
	TicketID              string
	Issue                 string
	PolicyContext         []retrieval.Snippet
	PreviousRecordContext []retrieval.Snippet
}

// Drafter produces drafts and rephrasings.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (*Draft, error)
	Rephrase(ctx context.Context, text string, temperature float64) (string, error)
}
