package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/support-copilot/internal/domain"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// MemoryStores implements TicketStores in process memory. It backs tests
// and DSN-less development runs; one mutex serializes every operation, so
// a cross-store move is atomic the same way the transactional backend is.
type MemoryStores struct {
	mu   sync.Mutex
	data map[domain.Stage]map[string]*domain.Ticket
}

// NewMemoryStores initializes the four empty stores.
func NewMemoryStores() *MemoryStores {
	data := make(map[domain.Stage]map[string]*domain.Ticket, len(domain.AllStages))
	for _, stage := range domain.AllStages {
		data[stage] = make(map[string]*domain.Ticket)
	}
	return &MemoryStores{data: data}
}

func (s *MemoryStores) Pending() PendingStore {
	return &memoryPendingStore{memoryStore{parent: s, stage: domain.StagePending, locking: true}}
}

func (s *MemoryStores) Drafted() TicketStore {
	return &memoryStore{parent: s, stage: domain.StageDrafted, locking: true}
}

func (s *MemoryStores) Escalated() TicketStore {
	return &memoryStore{parent: s, stage: domain.StageEscalated, locking: true}
}

func (s *MemoryStores) Completed() TicketStore {
	return &memoryStore{parent: s, stage: domain.StageCompleted, locking: true}
}

// RunInTransaction holds the mutex for the whole callback and hands fn a
// non-locking view of the same data.
func (s *MemoryStores) RunInTransaction(ctx context.Context, fn func(tx TicketStores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memoryTxView{parent: s})
}

type memoryTxView struct {
	parent *MemoryStores
}

func (v *memoryTxView) Pending() PendingStore {
	return &memoryPendingStore{memoryStore{parent: v.parent, stage: domain.StagePending}}
}

func (v *memoryTxView) Drafted() TicketStore {
	return &memoryStore{parent: v.parent, stage: domain.StageDrafted}
}

func (v *memoryTxView) Escalated() TicketStore {
	return &memoryStore{parent: v.parent, stage: domain.StageEscalated}
}

func (v *memoryTxView) Completed() TicketStore {
	return &memoryStore{parent: v.parent, stage: domain.StageCompleted}
}

func (v *memoryTxView) RunInTransaction(ctx context.Context, fn func(tx TicketStores) error) error {
	return fn(v)
}

type memoryStore struct {
	parent  *MemoryStores
	stage   domain.Stage
	locking bool
}

func (r *memoryStore) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.parent.mu.Lock()
	return r.parent.mu.Unlock
}

func (r *memoryStore) records() map[string]*domain.Ticket {
	return r.parent.data[r.stage]
}

func (r *memoryStore) Insert(ctx context.Context, ticket *domain.Ticket) error {
	defer r.lock()()
	if _, exists := r.records()[ticket.TicketID]; exists {
		return apperrors.NewDuplicate(ticket.TicketID)
	}
	r.records()[ticket.TicketID] = ticket.Clone()
	return nil
}

func (r *memoryStore) FindByID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	defer r.lock()()
	ticket, ok := r.records()[ticketID]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"store": string(r.stage)})
	}
	return ticket.Clone(), nil
}

func (r *memoryStore) FindAndDelete(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	defer r.lock()()
	ticket, ok := r.records()[ticketID]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"store": string(r.stage)})
	}
	delete(r.records(), ticketID)
	return ticket.Clone(), nil
}

func (r *memoryStore) ListRecent(ctx context.Context, limit int) ([]domain.Ticket, error) {
	defer r.lock()()
	if limit <= 0 {
		limit = 10
	}
	return r.collect(limit, func(*domain.Ticket) bool { return true }), nil
}

func (r *memoryStore) collect(limit int, keep func(*domain.Ticket) bool) []domain.Ticket {
	result := make([]domain.Ticket, 0, len(r.records()))
	for _, ticket := range r.records() {
		if keep(ticket) {
			result = append(result, *ticket.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Metadata.CreationTime.Equal(b.Metadata.CreationTime) {
			return a.Metadata.CreationTime.After(b.Metadata.CreationTime)
		}
		return a.TicketID > b.TicketID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

type memoryPendingStore struct {
	memoryStore
}

func (r *memoryPendingStore) ClaimNext(ctx context.Context) (*domain.Ticket, error) {
	defer r.lock()()
	var oldest *domain.Ticket
	for _, ticket := range r.records() {
		if ticket.Metadata.IsDrafted || ticket.Metadata.NeedsAttention {
			continue
		}
		if oldest == nil || claimBefore(ticket, oldest) {
			oldest = ticket
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Metadata.IsDrafted = true
	return oldest.Clone(), nil
}

// claimBefore orders claim candidates by creation time, ticket id as the
// tie-breaker so the scan is deterministic.
func claimBefore(a, b *domain.Ticket) bool {
	if !a.Metadata.CreationTime.Equal(b.Metadata.CreationTime) {
		return a.Metadata.CreationTime.Before(b.Metadata.CreationTime)
	}
	return a.TicketID < b.TicketID
}

func (r *memoryPendingStore) Release(ctx context.Context, ticketID string) error {
	defer r.lock()()
	ticket, ok := r.records()[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"store": string(r.stage)})
	}
	ticket.Metadata.IsDrafted = false
	return nil
}

func (r *memoryPendingStore) MarkNeedsAttention(ctx context.Context, ticketID, reason string) error {
	defer r.lock()()
	ticket, ok := r.records()[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"store": string(r.stage)})
	}
	ticket.Metadata.NeedsAttention = true
	ticket.Metadata.FailureReason = &reason
	return nil
}

func (r *memoryPendingStore) ListNeedsAttention(ctx context.Context, limit int) ([]domain.Ticket, error) {
	defer r.lock()()
	if limit <= 0 {
		limit = 10
	}
	return r.collect(limit, func(t *domain.Ticket) bool { return t.Metadata.NeedsAttention }), nil
}
