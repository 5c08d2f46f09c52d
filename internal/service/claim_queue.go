package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-copilot/internal/domain"
	"github.com/spec-kit/support-copilot/internal/events"
	"github.com/spec-kit/support-copilot/internal/observability"
	"github.com/spec-kit/support-copilot/internal/repository"
)

// ClaimQueue coordinates exclusive access to unclaimed pending tickets.
// The underlying store operation is the only synchronization primitive
// between workers; no other locking exists.
type ClaimQueue struct {
	pending    repository.PendingStore
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewClaimQueue constructs the queue over the pending store.
func NewClaimQueue(stores repository.TicketStores, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *ClaimQueue {
	return &ClaimQueue{
		pending:    stores.Pending(),
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// ClaimNext atomically claims one unclaimed pending ticket, or returns
// (nil, nil) when none is eligible.
func (q *ClaimQueue) ClaimNext(ctx context.Context) (*domain.Ticket, error) {
	ticket, err := q.pending.ClaimNext(ctx)
	if err != nil {
		q.metrics.RecordWorkerEvent(observability.WorkerStoreFailures)
		return nil, err
	}
	if ticket == nil {
		q.metrics.RecordWorkerEvent(observability.WorkerQueueEmpty)
		return nil, nil
	}
	q.metrics.RecordWorkerEvent(observability.WorkerClaimed)
	q.logger.Info("claimed ticket", zap.String("ticket_id", ticket.TicketID))
	publishEvent(ctx, q.dispatcher, events.Event{
		Type:     events.EventTicketClaimed,
		TicketID: ticket.TicketID,
		Payload: events.TicketClaimedPayload{
			Category: ticket.Metadata.Category,
			Priority: ticket.Metadata.Priority,
		},
	})
	return ticket, nil
}

// Release rolls back a claim after a retryable drafting failure, making
// the ticket eligible for a subsequent claim.
func (q *ClaimQueue) Release(ctx context.Context, ticketID string) error {
	if err := q.pending.Release(ctx, ticketID); err != nil {
		return err
	}
	q.metrics.RecordWorkerEvent(observability.WorkerRolledBack)
	q.logger.Info("released claim", zap.String("ticket_id", ticketID))
	return nil
}

// MarkNeedsAttention parks a claimed ticket whose drafting failed
// non-retryably, keeping it visible to reviewers instead of silently stuck.
func (q *ClaimQueue) MarkNeedsAttention(ctx context.Context, ticketID, reason string) error {
	if err := q.pending.MarkNeedsAttention(ctx, ticketID, reason); err != nil {
		return err
	}
	q.metrics.RecordWorkerEvent(observability.WorkerParked)
	q.logger.Warn("ticket parked for attention",
		zap.String("ticket_id", ticketID),
		zap.String("reason", reason))
	publishEvent(ctx, q.dispatcher, events.Event{
		Type:     events.EventTicketDraftFailed,
		TicketID: ticketID,
		Payload:  events.TicketDraftFailedPayload{Reason: reason},
	})
	return nil
}
