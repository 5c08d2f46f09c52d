package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-copilot/internal/completion"
	"github.com/spec-kit/support-copilot/internal/domain"
	"github.com/spec-kit/support-copilot/internal/events"
	"github.com/spec-kit/support-copilot/internal/repository"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

func newTestEngine(t *testing.T) (*TransitionEngine, repository.TicketStores) {
	t.Helper()
	stores := repository.NewMemoryStores()
	engine := NewTransitionEngine(stores, events.NewInMemoryDispatcher(), zap.NewNop())
	engine.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return engine, stores
}

func mustIntake(t *testing.T, engine *TransitionEngine, input IntakeInput) *domain.Ticket {
	t.Helper()
	ticket, err := engine.Intake(context.Background(), input)
	if err != nil {
		t.Fatalf("intake %s: %v", input.TicketID, err)
	}
	return ticket
}

func countAcross(t *testing.T, stores repository.TicketStores, ticketID string) int {
	t.Helper()
	found := 0
	for _, stage := range domain.AllStages {
		store, err := repository.StoreFor(stores, stage)
		if err != nil {
			t.Fatalf("store for %s: %v", stage, err)
		}
		if _, err := store.FindByID(context.Background(), ticketID); err == nil {
			found++
		} else if !apperrors.IsNotFound(err) {
			t.Fatalf("lookup in %s: %v", stage, err)
		}
	}
	return found
}

func TestApproveDraftedTicket(t *testing.T) {
	engine, stores := newTestEngine(t)
	confidence := 0.88
	mustIntake(t, engine, IntakeInput{
		TicketID:        "TKT_0011",
		Issue:           "I was charged twice for order #1234",
		Category:        "Billing",
		Target:          domain.StageDrafted,
		DraftedResponse: "Your account upgrade request has been processed successfully.",
		Confidence:      &confidence,
	})

	ticket, err := engine.Approve(context.Background(), "TKT_0011", domain.StageDrafted, "Sent to customer")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if ticket.Resolution == nil || *ticket.Resolution != "Sent to customer" {
		t.Errorf("resolution = %v, want Sent to customer", ticket.Resolution)
	}
	if ticket.AIDraftedResponse == nil || *ticket.AIDraftedResponse != "Your account upgrade request has been processed successfully." {
		t.Errorf("drafted response lost: %v", ticket.AIDraftedResponse)
	}
	if ticket.Confidence == nil || *ticket.Confidence != 0.88 {
		t.Errorf("confidence = %v, want 0.88", ticket.Confidence)
	}
	if ticket.Metadata.ClosureTime == nil {
		t.Error("closure time not set")
	}

	if _, err := stores.Completed().FindByID(context.Background(), "TKT_0011"); err != nil {
		t.Errorf("ticket not in completed store: %v", err)
	}
	if got := countAcross(t, stores, "TKT_0011"); got != 1 {
		t.Errorf("ticket exists in %d stores, want 1", got)
	}
}

func TestApproveMissingSourceLeavesTargetUntouched(t *testing.T) {
	engine, stores := newTestEngine(t)

	_, err := engine.Approve(context.Background(), "TKT_MISSING", domain.StageDrafted, "done")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("approve missing = %v, want not-found", err)
	}

	completed, err := stores.Completed().ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 0 {
		t.Errorf("completed store has %d records after failed move, want 0", len(completed))
	}
}

func TestApproveRequiresResolution(t *testing.T) {
	engine, _ := newTestEngine(t)
	mustIntake(t, engine, IntakeInput{TicketID: "TKT_0001", Issue: "refund please", Target: domain.StagePending})

	_, err := engine.Approve(context.Background(), "TKT_0001", domain.StagePending, "  ")
	if !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Fatalf("approve without resolution = %v, want validation error", err)
	}
}

func TestApprovePendingUndraftedClearsDraftFields(t *testing.T) {
	engine, _ := newTestEngine(t)
	mustIntake(t, engine, IntakeInput{TicketID: "TKT_0002", Issue: "cancel my subscription", Target: domain.StagePending})

	ticket, err := engine.Approve(context.Background(), "TKT_0002", domain.StagePending, "Cancelled per request")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if ticket.AIDraftedResponse != nil || ticket.Confidence != nil || ticket.Metadata.Tone != nil {
		t.Errorf("undrafted approval kept draft fields: response=%v confidence=%v tone=%v",
			ticket.AIDraftedResponse, ticket.Confidence, ticket.Metadata.Tone)
	}
	if ticket.Resolution == nil || *ticket.Resolution != "Cancelled per request" {
		t.Errorf("resolution = %v", ticket.Resolution)
	}
}

func TestEscalateThenResolve(t *testing.T) {
	engine, stores := newTestEngine(t)
	mustIntake(t, engine, IntakeInput{TicketID: "TKT_0005", Issue: "item arrived broken", Target: domain.StagePending})

	escalated, err := engine.Escalate(context.Background(), "TKT_0005", domain.StagePending, "customer threatened chargeback")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if escalated.Metadata.EscalationReason == nil || *escalated.Metadata.EscalationReason != "customer threatened chargeback" {
		t.Errorf("escalation reason = %v", escalated.Metadata.EscalationReason)
	}
	if _, err := stores.Escalated().FindByID(context.Background(), "TKT_0005"); err != nil {
		t.Fatalf("ticket not in escalated store: %v", err)
	}

	resolved, err := engine.Resolve(context.Background(), "TKT_0005", "Refunded")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Resolution == nil || *resolved.Resolution != "Refunded" {
		t.Errorf("resolution = %v, want Refunded", resolved.Resolution)
	}
	if got := countAcross(t, stores, "TKT_0005"); got != 1 {
		t.Errorf("ticket exists in %d stores, want 1", got)
	}
}

func TestResolveEscalatedAppliesManualHandlingSentinel(t *testing.T) {
	engine, _ := newTestEngine(t)
	mustIntake(t, engine, IntakeInput{TicketID: "TKT_0006", Issue: "fraudulent charge", Target: domain.StagePending})
	if _, err := engine.Escalate(context.Background(), "TKT_0006", domain.StagePending, ""); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	ticket, err := engine.Resolve(context.Background(), "TKT_0006", "Handled by fraud team")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for name, field := range map[string]*string{
		"ai_drafted_response":      ticket.AIDraftedResponse,
		"used_policy":              ticket.UsedPolicy,
		"used_reference_ticket_id": ticket.UsedReferenceTicketID,
	} {
		if field == nil || *field != domain.ManualHandlingSentinel {
			t.Errorf("%s = %v, want sentinel", name, field)
		}
	}
	if ticket.Confidence != nil {
		t.Errorf("confidence = %v, want nil for escalated origin", *ticket.Confidence)
	}
}

func TestEscalateRejectsNonActiveSources(t *testing.T) {
	engine, _ := newTestEngine(t)
	mustIntake(t, engine, IntakeInput{
		TicketID: "TKT_0007", Issue: "done deal", Target: domain.StageCompleted, Resolution: "done",
	})

	_, err := engine.Escalate(context.Background(), "TKT_0007", domain.StageCompleted, "")
	if !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Fatalf("escalate from completed = %v, want validation error", err)
	}
}

func TestRecordDraftMovesPendingToDrafted(t *testing.T) {
	engine, stores := newTestEngine(t)
	mustIntake(t, engine, IntakeInput{TicketID: "TKT_0010", Issue: "where is my parcel", Target: domain.StagePending})

	policy := "Shipping FAQ §2"
	ref := "TKT_0003"
	ticket, err := engine.RecordDraft(context.Background(), "TKT_0010", &completion.Draft{
		TicketID:              "TKT_0010",
		Reply:                 "Your parcel is on its way.",
		Tone:                  "Reassuring",
		Confidence:            0.91,
		UsedPolicy:            &policy,
		UsedReferenceTicketID: &ref,
	})
	if err != nil {
		t.Fatalf("record draft: %v", err)
	}

	if !ticket.Metadata.IsDrafted {
		t.Error("drafted flag not set")
	}
	if ticket.Confidence == nil || *ticket.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", ticket.Confidence)
	}
	if ticket.UsedPolicy == nil || *ticket.UsedPolicy != policy {
		t.Errorf("used policy = %v, want %q", ticket.UsedPolicy, policy)
	}
	if _, err := stores.Drafted().FindByID(context.Background(), "TKT_0010"); err != nil {
		t.Errorf("ticket not in drafted store: %v", err)
	}
	if got := countAcross(t, stores, "TKT_0010"); got != 1 {
		t.Errorf("ticket exists in %d stores, want 1", got)
	}
}

func TestIntakeRejectsDuplicateAcrossStores(t *testing.T) {
	engine, _ := newTestEngine(t)
	mustIntake(t, engine, IntakeInput{TicketID: "TKT_0020", Issue: "first", Target: domain.StagePending})
	if _, err := engine.Escalate(context.Background(), "TKT_0020", domain.StagePending, ""); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	_, err := engine.Intake(context.Background(), IntakeInput{TicketID: "TKT_0020", Issue: "second", Target: domain.StagePending})
	if !apperrors.HasCode(err, "DUPLICATE_TICKET") {
		t.Fatalf("duplicate intake = %v, want duplicate error", err)
	}
}

func TestIntakeGeneratesTicketID(t *testing.T) {
	engine, _ := newTestEngine(t)
	ticket := mustIntake(t, engine, IntakeInput{Issue: "no id supplied", Target: domain.StagePending})
	if ticket.TicketID == "" {
		t.Fatal("ticket id not generated")
	}
}

func TestIntakeStageDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)

	drafted := mustIntake(t, engine, IntakeInput{
		TicketID: "TKT_DRAFT", Issue: "manual draft", Target: domain.StageDrafted,
		DraftedResponse: "We can help with that.",
	})
	if drafted.UsedPolicy == nil || *drafted.UsedPolicy != "Manual" {
		t.Errorf("drafted used_policy = %v, want Manual", drafted.UsedPolicy)
	}
	if drafted.Confidence == nil || *drafted.Confidence != 0.8 {
		t.Errorf("drafted confidence = %v, want 0.8", drafted.Confidence)
	}
	if drafted.Metadata.Tone == nil || *drafted.Metadata.Tone != "Professional" {
		t.Errorf("drafted tone = %v, want Professional", drafted.Metadata.Tone)
	}

	escalated := mustIntake(t, engine, IntakeInput{
		TicketID: "TKT_ESC", Issue: "manual escalation", Target: domain.StageEscalated,
	})
	if escalated.AIDraftedResponse == nil || *escalated.AIDraftedResponse != "Manual Escalation" {
		t.Errorf("escalated response = %v, want Manual Escalation", escalated.AIDraftedResponse)
	}
	if escalated.UsedPolicy == nil || *escalated.UsedPolicy != "Escalation Protocol" {
		t.Errorf("escalated used_policy = %v, want Escalation Protocol", escalated.UsedPolicy)
	}

	completed := mustIntake(t, engine, IntakeInput{
		TicketID: "TKT_DONE", Issue: "already handled", Target: domain.StageCompleted, Resolution: "ok",
	})
	if completed.AIDraftedResponse == nil || *completed.AIDraftedResponse != "Manual Resolution" {
		t.Errorf("completed response = %v, want Manual Resolution", completed.AIDraftedResponse)
	}
	if completed.Metadata.ClosureTime == nil {
		t.Error("completed closure time not set")
	}
}

func TestListRecentDegradesToEmpty(t *testing.T) {
	engine, _ := newTestEngine(t)
	tickets := engine.ListRecent(context.Background(), domain.StageCompleted, 10)
	if tickets == nil || len(tickets) != 0 {
		t.Fatalf("empty store list = %v, want empty slice", tickets)
	}
}
