package domain

import "time"

// Stage enumerates the lifecycle stores a ticket can live in. A ticket
// occupies exactly one stage at any observable instant.
type Stage string

const (
	StagePending   Stage = "pending"
	StageDrafted   Stage = "drafted"
	StageEscalated Stage = "escalated"
	StageCompleted Stage = "completed"
)

// AllStages lists every lifecycle store, in pipeline order.
var AllStages = []Stage{StagePending, StageDrafted, StageEscalated, StageCompleted}

// Valid reports whether the stage names a known store.
func (s Stage) Valid() bool {
	switch s {
	case StagePending, StageDrafted, StageEscalated, StageCompleted:
		return true
	}
	return false
}

// Active reports whether tickets in this stage are still open for review.
func (s Stage) Active() bool {
	return s.Valid() && s != StageCompleted
}

// ManualHandlingSentinel fills draft evidence fields when an escalated
// ticket is completed without an AI draft on record.
const ManualHandlingSentinel = "Senior agent handled the response"

// Metadata carries stage-dependent ticket attributes.
type Metadata struct {
	Category         string     `json:"category"`
	Priority         string     `json:"priority"`
	CreationTime     time.Time  `json:"ticket_creation_time"`
	ClosureTime      *time.Time `json:"ticket_closure_time,omitempty"`
	IsDrafted        bool       `json:"is_drafted"`
	Tone             *string    `json:"tone,omitempty"`
	EscalationReason *string    `json:"escalation_reason,omitempty"`
	NeedsAttention   bool       `json:"needs_attention,omitempty"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
}

// Ticket is the single record shape shared by all four lifecycle stores.
// Optional fields are present only in the stages that produce them.
type Ticket struct {
	TicketID              string   `json:"ticket_id"`
	Issue                 string   `json:"issue"`
	Metadata              Metadata `json:"metadata"`
	Confidence            *float64 `json:"confidence,omitempty"`
	UsedPolicy            *string  `json:"used_policy,omitempty"`
	UsedReferenceTicketID *string  `json:"used_reference_ticket_id,omitempty"`
	AIDraftedResponse     *string  `json:"ai_drafted_response,omitempty"`
	Resolution            *string  `json:"resolution,omitempty"`
}

// Clone returns a deep copy so store implementations never alias caller state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.Metadata.ClosureTime = cloneTime(t.Metadata.ClosureTime)
	out.Metadata.Tone = cloneString(t.Metadata.Tone)
	out.Metadata.EscalationReason = cloneString(t.Metadata.EscalationReason)
	out.Metadata.FailureReason = cloneString(t.Metadata.FailureReason)
	out.Confidence = cloneFloat(t.Confidence)
	out.UsedPolicy = cloneString(t.UsedPolicy)
	out.UsedReferenceTicketID = cloneString(t.UsedReferenceTicketID)
	out.AIDraftedResponse = cloneString(t.AIDraftedResponse)
	out.Resolution = cloneString(t.Resolution)
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
