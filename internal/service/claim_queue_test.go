package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-copilot/internal/domain"
	"github.com/spec-kit/support-copilot/internal/events"
	"github.com/spec-kit/support-copilot/internal/observability"
	"github.com/spec-kit/support-copilot/internal/repository"
)

func newTestQueue(t *testing.T) (*ClaimQueue, repository.TicketStores) {
	t.Helper()
	stores := repository.NewMemoryStores()
	queue := NewClaimQueue(stores, events.NewInMemoryDispatcher(), observability.NewMetrics(), zap.NewNop())
	return queue, stores
}

func seedPending(t *testing.T, stores repository.TicketStores, ticketID string, createdAt time.Time) {
	t.Helper()
	err := stores.Pending().Insert(context.Background(), &domain.Ticket{
		TicketID: ticketID,
		Issue:    "seeded issue",
		Metadata: domain.Metadata{
			Category:     "Other",
			Priority:     "medium",
			CreationTime: createdAt,
		},
	})
	if err != nil {
		t.Fatalf("seed %s: %v", ticketID, err)
	}
}

func TestClaimNextExclusiveUnderConcurrency(t *testing.T) {
	queue, stores := newTestQueue(t)
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	const tickets = 50
	for i := 0; i < tickets; i++ {
		seedPending(t, stores, fmt.Sprintf("TKT_%04d", i), base.Add(time.Duration(i)*time.Second))
	}

	const workers = 8
	var mu sync.Mutex
	claims := make(map[string]int, tickets)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				ticket, err := queue.ClaimNext(context.Background())
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if ticket == nil {
					return
				}
				mu.Lock()
				claims[ticket.TicketID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claims) != tickets {
		t.Fatalf("claimed %d distinct tickets, want %d", len(claims), tickets)
	}
	for id, n := range claims {
		if n != 1 {
			t.Errorf("ticket %s claimed %d times", id, n)
		}
	}
}

func TestClaimNextReturnsOldestFirst(t *testing.T) {
	queue, stores := newTestQueue(t)
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	seedPending(t, stores, "TKT_NEW", base.Add(time.Hour))
	seedPending(t, stores, "TKT_OLD", base)

	ticket, err := queue.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ticket == nil || ticket.TicketID != "TKT_OLD" {
		t.Fatalf("claimed %v, want TKT_OLD", ticket)
	}
}

func TestClaimNextEmptyQueue(t *testing.T) {
	queue, _ := newTestQueue(t)
	ticket, err := queue.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("claim on empty queue: %v", err)
	}
	if ticket != nil {
		t.Fatalf("claim on empty queue returned %v, want nil", ticket)
	}
}

func TestReleaseMakesTicketClaimableAgain(t *testing.T) {
	queue, stores := newTestQueue(t)
	seedPending(t, stores, "TKT_0001", time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))

	first, err := queue.ClaimNext(context.Background())
	if err != nil || first == nil {
		t.Fatalf("first claim = %v, %v", first, err)
	}
	if again, _ := queue.ClaimNext(context.Background()); again != nil {
		t.Fatalf("claimed ticket still claimable: %v", again)
	}

	if err := queue.Release(context.Background(), "TKT_0001"); err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := queue.ClaimNext(context.Background())
	if err != nil || second == nil || second.TicketID != "TKT_0001" {
		t.Fatalf("reclaim after release = %v, %v", second, err)
	}
}

func TestMarkNeedsAttentionExcludesFromClaims(t *testing.T) {
	queue, stores := newTestQueue(t)
	seedPending(t, stores, "TKT_0001", time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))

	ticket, err := queue.ClaimNext(context.Background())
	if err != nil || ticket == nil {
		t.Fatalf("claim = %v, %v", ticket, err)
	}
	if err := queue.MarkNeedsAttention(context.Background(), ticket.TicketID, "draft output is not valid JSON"); err != nil {
		t.Fatalf("mark needs attention: %v", err)
	}

	if again, _ := queue.ClaimNext(context.Background()); again != nil {
		t.Fatalf("parked ticket was claimed: %v", again)
	}

	parked, err := stores.Pending().ListNeedsAttention(context.Background(), 10)
	if err != nil {
		t.Fatalf("list needs attention: %v", err)
	}
	if len(parked) != 1 || parked[0].TicketID != "TKT_0001" {
		t.Fatalf("needs-attention listing = %v", parked)
	}
	if parked[0].Metadata.FailureReason == nil || *parked[0].Metadata.FailureReason != "draft output is not valid JSON" {
		t.Errorf("failure reason = %v", parked[0].Metadata.FailureReason)
	}
}
