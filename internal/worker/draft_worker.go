package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-copilot/internal/completion"
	"github.com/spec-kit/support-copilot/internal/config"
	"github.com/spec-kit/support-copilot/internal/domain"
	"github.com/spec-kit/support-copilot/internal/observability"
	"github.com/spec-kit/support-copilot/internal/retrieval"
	"github.com/spec-kit/support-copilot/internal/service"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// DraftWorker polls the claim queue and drives each claimed ticket through
// retrieval, drafting and the pending→drafted move. Any number of workers
// may run concurrently; the claim operation is their only coordination.
type DraftWorker struct {
	queue   *service.ClaimQueue
	engine  *service.TransitionEngine
	builder *retrieval.Builder
	drafter completion.Drafter
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     config.WorkerConfig
}

// NewDraftWorker constructs a worker.
func NewDraftWorker(queue *service.ClaimQueue, engine *service.TransitionEngine, builder *retrieval.Builder, drafter completion.Drafter, metrics *observability.Metrics, logger *zap.Logger, cfg config.WorkerConfig) *DraftWorker {
	return &DraftWorker{
		queue:   queue,
		engine:  engine,
		builder: builder,
		drafter: drafter,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Run polls until ctx is cancelled. An empty queue sleeps the fixed poll
// interval; consecutive store failures back off exponentially up to the
// configured cap.
func (w *DraftWorker) Run(ctx context.Context) error {
	backoff := w.cfg.PollInterval()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ticket, err := w.queue.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("claim failed", zap.Error(err))
			if !w.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, w.cfg.MaxBackoff())
			continue
		}
		if ticket == nil {
			if !w.sleep(ctx, w.cfg.PollInterval()) {
				return ctx.Err()
			}
			backoff = w.cfg.PollInterval()
			continue
		}
		backoff = w.cfg.PollInterval()

		if err := w.process(ctx, ticket); err != nil {
			w.handleFailure(ctx, ticket, err)
		}
	}
}

// process runs retrieval → draft → persist for one claimed ticket,
// strictly sequential. Each external call carries its own deadline.
func (w *DraftWorker) process(ctx context.Context, ticket *domain.Ticket) error {
	retrievalCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout())
	evidence, err := w.builder.Build(retrievalCtx, ticket.Issue)
	cancel()
	if err != nil {
		return err
	}

	draftCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout())
	draft, err := w.drafter.Draft(draftCtx, completion.DraftRequest{
		TicketID:              ticket.TicketID,
		Issue:                 ticket.Issue,
		PolicyContext:         evidence.Policy,
		PreviousRecordContext: evidence.PreviousRecords,
	})
	cancel()
	if err != nil {
		return err
	}

	if _, err := w.engine.RecordDraft(ctx, ticket.TicketID, draft); err != nil {
		return err
	}

	w.metrics.RecordWorkerEvent(observability.WorkerDrafted)
	w.logger.Info("ticket drafted",
		zap.String("ticket_id", ticket.TicketID),
		zap.Float64("confidence", draft.Confidence))
	return nil
}

// handleFailure decides rollback vs. park purely on the error kind:
// retryable failures release the claim so the ticket re-enters the pool;
// anything else parks the ticket where reviewers can see it.
func (w *DraftWorker) handleFailure(ctx context.Context, ticket *domain.Ticket, processErr error) {
	if apperrors.IsRetryable(processErr) {
		w.logger.Warn("drafting failed, rolling back claim",
			zap.String("ticket_id", ticket.TicketID),
			zap.Error(processErr))
		if err := w.queue.Release(ctx, ticket.TicketID); err != nil {
			w.logger.Error("claim rollback failed",
				zap.String("ticket_id", ticket.TicketID),
				zap.Error(err))
		}
		return
	}

	w.logger.Error("drafting failed permanently, parking ticket",
		zap.String("ticket_id", ticket.TicketID),
		zap.Error(processErr))
	if err := w.queue.MarkNeedsAttention(ctx, ticket.TicketID, processErr.Error()); err != nil {
		w.logger.Error("parking ticket failed",
			zap.String("ticket_id", ticket.TicketID),
			zap.Error(err))
	}
}

// sleep waits for d or cancellation, reporting false when cancelled.
func (w *DraftWorker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
