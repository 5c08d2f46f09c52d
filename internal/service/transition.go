package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-copilot/internal/completion"
	"github.com/spec-kit/support-copilot/internal/domain"
	"github.com/spec-kit/support-copilot/internal/events"
	"github.com/spec-kit/support-copilot/internal/repository"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// TransitionEngine moves ticket records between the four lifecycle stores
// under the one-location invariant. Every move removes the record from its
// source store, applies stage-specific enrichment and inserts into the
// target, all inside one store transaction.
type TransitionEngine struct {
	stores     repository.TicketStores
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewTransitionEngine constructs the engine.
func NewTransitionEngine(stores repository.TicketStores, dispatcher events.Dispatcher, logger *zap.Logger) *TransitionEngine {
	return &TransitionEngine{
		stores:     stores,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// IntakeInput describes a ticket raised directly into one of the stores.
type IntakeInput struct {
	TicketID         string
	Issue            string
	Category         string
	Priority         string
	Target           domain.Stage
	Tone             string
	Confidence       *float64
	DraftedResponse  string
	EscalationReason string
	Resolution       string
}

// Intake creates a ticket in the target store, applying the stage-specific
// field policy. The cross-store duplicate check runs first; it is a
// point-in-time check, not an atomic guarantee.
func (e *TransitionEngine) Intake(ctx context.Context, input IntakeInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Issue) == "" {
		return nil, apperrors.NewValidationError("issue required", nil)
	}
	if !input.Target.Valid() {
		return nil, apperrors.NewValidationError("unknown target stage", map[string]any{"stage": string(input.Target)})
	}

	ticketID := strings.TrimSpace(input.TicketID)
	if ticketID == "" {
		ticketID = generateTicketID()
	}
	if err := e.checkDuplicate(ctx, ticketID); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		TicketID: ticketID,
		Issue:    strings.TrimSpace(input.Issue),
		Metadata: domain.Metadata{
			Category:     defaultString(input.Category, "Other"),
			Priority:     defaultString(input.Priority, "medium"),
			CreationTime: e.now(),
			IsDrafted:    input.Target == domain.StageDrafted,
		},
	}

	switch input.Target {
	case domain.StagePending:
		// used_policy stays absent until drafting finds one
	case domain.StageDrafted:
		if strings.TrimSpace(input.DraftedResponse) == "" {
			return nil, apperrors.NewValidationError("drafted_response required for drafted intake", nil)
		}
		ticket.AIDraftedResponse = strPtr(input.DraftedResponse)
		ticket.Confidence = defaultConfidence(input.Confidence, 0.8)
		ticket.UsedPolicy = strPtr("Manual")
		ticket.UsedReferenceTicketID = strPtr("N/A")
		ticket.Metadata.Tone = strPtr(defaultString(input.Tone, "Professional"))
	case domain.StageEscalated:
		ticket.AIDraftedResponse = strPtr("Manual Escalation")
		ticket.Confidence = defaultConfidence(nil, 1.0)
		ticket.UsedPolicy = strPtr("Escalation Protocol")
		ticket.UsedReferenceTicketID = strPtr("N/A")
		if reason := strings.TrimSpace(input.EscalationReason); reason != "" {
			ticket.Metadata.EscalationReason = &reason
		}
	case domain.StageCompleted:
		if strings.TrimSpace(input.Resolution) == "" {
			return nil, apperrors.NewValidationError("resolution required for completed intake", nil)
		}
		ticket.Resolution = strPtr(input.Resolution)
		ticket.AIDraftedResponse = strPtr("Manual Resolution")
		ticket.Confidence = defaultConfidence(nil, 1.0)
		ticket.UsedPolicy = strPtr("N/A")
		ticket.UsedReferenceTicketID = strPtr("N/A")
		closure := e.now()
		ticket.Metadata.ClosureTime = &closure
	}

	store, err := repository.StoreFor(e.stores, input.Target)
	if err != nil {
		return nil, err
	}
	if err := store.Insert(ctx, ticket); err != nil {
		return nil, err
	}

	publishEvent(ctx, e.dispatcher, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.TicketID,
		Payload: events.TicketCreatedPayload{
			Stage:    input.Target,
			Category: ticket.Metadata.Category,
			Priority: ticket.Metadata.Priority,
		},
	})
	return ticket, nil
}

// RecordDraft moves a claimed pending ticket into the drafted store,
// attaching the draft evidence produced by the worker.
func (e *TransitionEngine) RecordDraft(ctx context.Context, ticketID string, draft *completion.Draft) (*domain.Ticket, error) {
	moved, err := e.move(ctx, ticketID, domain.StagePending, domain.StageDrafted,
		func(tx repository.TicketStores, t *domain.Ticket) error {
			t.Metadata.IsDrafted = true
			t.Metadata.Tone = strPtr(draft.Tone)
			confidence := draft.Confidence
			t.Confidence = &confidence
			t.AIDraftedResponse = strPtr(draft.Reply)
			t.UsedPolicy = draft.UsedPolicy
			t.UsedReferenceTicketID = draft.UsedReferenceTicketID
			return nil
		})
	if err != nil {
		return nil, err
	}
	publishEvent(ctx, e.dispatcher, events.Event{
		Type:     events.EventTicketDrafted,
		TicketID: ticketID,
		Payload: events.TicketDraftedPayload{
			Confidence: draft.Confidence,
			Tone:       draft.Tone,
			UsedPolicy: draft.UsedPolicy,
		},
	})
	return moved, nil
}

// Approve completes a ticket from any active store, attaching the human
// resolution and applying origin-specific enrichment.
func (e *TransitionEngine) Approve(ctx context.Context, ticketID string, from domain.Stage, resolution string) (*domain.Ticket, error) {
	if !from.Active() {
		return nil, apperrors.NewValidationError("approve requires an active source stage", map[string]any{"from": string(from)})
	}
	if strings.TrimSpace(resolution) == "" {
		return nil, apperrors.NewValidationError("resolution required", nil)
	}

	moved, err := e.move(ctx, ticketID, from, domain.StageCompleted,
		func(tx repository.TicketStores, t *domain.Ticket) error {
			closure := e.now()
			t.Resolution = &resolution
			t.Metadata.ClosureTime = &closure
			return e.enrichForCompletion(ctx, tx, t, from)
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("ticket completed",
		zap.String("ticket_id", ticketID),
		zap.String("from", string(from)))
	publishEvent(ctx, e.dispatcher, events.Event{
		Type:     events.EventTicketCompleted,
		TicketID: ticketID,
		Payload: events.TicketCompletedPayload{
			From:       from,
			Resolution: resolution,
		},
	})
	return moved, nil
}

// Escalate routes a pending or drafted ticket into the escalated store.
// The record moves verbatim; only the optional reason is recorded.
func (e *TransitionEngine) Escalate(ctx context.Context, ticketID string, from domain.Stage, reason string) (*domain.Ticket, error) {
	if from != domain.StagePending && from != domain.StageDrafted {
		return nil, apperrors.NewValidationError("escalate requires a pending or drafted source", map[string]any{"from": string(from)})
	}

	moved, err := e.move(ctx, ticketID, from, domain.StageEscalated,
		func(tx repository.TicketStores, t *domain.Ticket) error {
			if trimmed := strings.TrimSpace(reason); trimmed != "" {
				t.Metadata.EscalationReason = &trimmed
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("ticket escalated",
		zap.String("ticket_id", ticketID),
		zap.String("from", string(from)))
	publishEvent(ctx, e.dispatcher, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: ticketID,
		Payload: events.TicketEscalatedPayload{
			From:   from,
			Reason: strings.TrimSpace(reason),
		},
	})
	return moved, nil
}

// Resolve completes an escalated ticket with the human resolution.
func (e *TransitionEngine) Resolve(ctx context.Context, ticketID, resolution string) (*domain.Ticket, error) {
	return e.Approve(ctx, ticketID, domain.StageEscalated, resolution)
}

// ListRecent returns the newest tickets in a store. Read-path failures
// degrade to an empty result so the review surface stays usable during
// partial outages.
func (e *TransitionEngine) ListRecent(ctx context.Context, stage domain.Stage, limit int) []domain.Ticket {
	store, err := repository.StoreFor(e.stores, stage)
	if err != nil {
		return []domain.Ticket{}
	}
	tickets, err := store.ListRecent(ctx, limit)
	if err != nil {
		e.logger.Error("listing tickets failed", zap.String("stage", string(stage)), zap.Error(err))
		return []domain.Ticket{}
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets
}

// ListNeedsAttention returns pending tickets parked after a non-retryable
// drafting failure. Degrades to empty on store failure.
func (e *TransitionEngine) ListNeedsAttention(ctx context.Context, limit int) []domain.Ticket {
	tickets, err := e.stores.Pending().ListNeedsAttention(ctx, limit)
	if err != nil {
		e.logger.Error("listing needs-attention tickets failed", zap.Error(err))
		return []domain.Ticket{}
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets
}

// GetTicket fetches one record from a store.
func (e *TransitionEngine) GetTicket(ctx context.Context, stage domain.Stage, ticketID string) (*domain.Ticket, error) {
	store, err := repository.StoreFor(e.stores, stage)
	if err != nil {
		return nil, err
	}
	return store.FindByID(ctx, ticketID)
}

// move is the single transition shape: atomically remove from the source
// store, enrich, insert into the target. A missing source fails closed
// with the target untouched.
func (e *TransitionEngine) move(ctx context.Context, ticketID string, from, to domain.Stage, enrich func(tx repository.TicketStores, t *domain.Ticket) error) (*domain.Ticket, error) {
	var moved *domain.Ticket
	err := e.stores.RunInTransaction(ctx, func(tx repository.TicketStores) error {
		source, err := repository.StoreFor(tx, from)
		if err != nil {
			return err
		}
		target, err := repository.StoreFor(tx, to)
		if err != nil {
			return err
		}
		ticket, err := source.FindAndDelete(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := enrich(tx, ticket); err != nil {
			return err
		}
		if err := target.Insert(ctx, ticket); err != nil {
			return err
		}
		moved = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// enrichForCompletion applies the origin-specific field policy for a
// completed ticket.
func (e *TransitionEngine) enrichForCompletion(ctx context.Context, tx repository.TicketStores, t *domain.Ticket, from domain.Stage) error {
	switch from {
	case domain.StagePending:
		if !t.Metadata.IsDrafted {
			t.AIDraftedResponse = nil
			t.Confidence = nil
			t.Metadata.Tone = nil
			return nil
		}
		// Claimed-but-unmoved tickets may still have a drafted-store
		// record for the same id; join it in and remove it so the id
		// does not survive in two places.
		drafted, err := tx.Drafted().FindAndDelete(ctx, t.TicketID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil
			}
			return err
		}
		t.AIDraftedResponse = drafted.AIDraftedResponse
		t.Confidence = drafted.Confidence
		t.UsedPolicy = drafted.UsedPolicy
		t.UsedReferenceTicketID = drafted.UsedReferenceTicketID
		t.Metadata.Tone = drafted.Metadata.Tone
	case domain.StageDrafted:
		// all draft evidence moves verbatim
	case domain.StageEscalated:
		if t.AIDraftedResponse == nil {
			t.AIDraftedResponse = strPtr(domain.ManualHandlingSentinel)
		}
		if t.UsedPolicy == nil {
			t.UsedPolicy = strPtr(domain.ManualHandlingSentinel)
		}
		if t.UsedReferenceTicketID == nil {
			t.UsedReferenceTicketID = strPtr(domain.ManualHandlingSentinel)
		}
	}
	return nil
}

// checkDuplicate scans all four stores for the ticket id.
func (e *TransitionEngine) checkDuplicate(ctx context.Context, ticketID string) error {
	for _, stage := range domain.AllStages {
		store, err := repository.StoreFor(e.stores, stage)
		if err != nil {
			return err
		}
		_, err = store.FindByID(ctx, ticketID)
		if err == nil {
			return apperrors.NewDuplicate(ticketID)
		}
		if !apperrors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func generateTicketID() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func strPtr(s string) *string {
	return &s
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}

func defaultConfidence(c *float64, fallback float64) *float64 {
	if c != nil {
		v := *c
		return &v
	}
	return &fallback
}
