package repository

import (
	"context"

	"github.com/spec-kit/support-copilot/internal/domain"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// TicketStore is one named lifecycle collection.
type TicketStore interface {
	Insert(ctx context.Context, ticket *domain.Ticket) error
	FindByID(ctx context.Context, ticketID string) (*domain.Ticket, error)
	// FindAndDelete atomically removes and returns the record, or a
	// NOT_FOUND error leaving the store untouched.
	FindAndDelete(ctx context.Context, ticketID string) (*domain.Ticket, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Ticket, error)
}

// PendingStore extends the pending collection with the claim primitive,
// the only synchronization point between workers.
type PendingStore interface {
	TicketStore
	// ClaimNext atomically selects one unclaimed ticket, marks it drafted
	// and returns the post-update record. Returns (nil, nil) when no
	// eligible ticket exists.
	ClaimNext(ctx context.Context) (*domain.Ticket, error)
	// Release resets is_drafted so a claimed-but-undrafted ticket becomes
	// eligible for re-claim.
	Release(ctx context.Context, ticketID string) error
	// MarkNeedsAttention parks a claimed ticket whose drafting failed
	// non-retryably, keeping it visible and out of the claim pool.
	MarkNeedsAttention(ctx context.Context, ticketID, reason string) error
	ListNeedsAttention(ctx context.Context, limit int) ([]domain.Ticket, error)
}

// TicketStores bundles the four lifecycle stores. RunInTransaction hands
// the callback a view whose stores share one transaction, so a cross-store
// move commits or rolls back as a unit.
type TicketStores interface {
	Pending() PendingStore
	Drafted() TicketStore
	Escalated() TicketStore
	Completed() TicketStore
	RunInTransaction(ctx context.Context, fn func(tx TicketStores) error) error
}

// StoreFor resolves a stage to its store.
func StoreFor(stores TicketStores, stage domain.Stage) (TicketStore, error) {
	switch stage {
	case domain.StagePending:
		return stores.Pending(), nil
	case domain.StageDrafted:
		return stores.Drafted(), nil
	case domain.StageEscalated:
		return stores.Escalated(), nil
	case domain.StageCompleted:
		return stores.Completed(), nil
	}
	return nil, apperrors.NewValidationError("unknown lifecycle stage", map[string]any{"stage": string(stage)})
}
