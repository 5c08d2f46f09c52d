package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spec-kit/support-copilot/internal/config"
	"github.com/spec-kit/support-copilot/internal/retrieval"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.CompletionConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		Model:          "test-model",
		TimeoutSeconds: 5,
	})
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	err := json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	if err != nil {
		t.Fatalf("encoding chat reply: %v", err)
	}
}

func TestDraftParsesStructuredOutput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %s", auth)
		}
		chatReply(t, w, `{"ticket_id":"TKT_0011","reply":"We have refunded the duplicate charge.","tone":"Apologetic","confidence":0.92,"used_policy":"Billing §4","used_reference_ticket_id":"TKT_0003"}`)
	})

	draft, err := client.Draft(context.Background(), DraftRequest{
		TicketID: "TKT_0011",
		Issue:    "I was charged twice",
		PolicyContext: []retrieval.Snippet{
			{Content: "Duplicate charges are refunded within 5 days.", Distance: 0.1},
		},
	})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Reply != "We have refunded the duplicate charge." {
		t.Errorf("reply = %q", draft.Reply)
	}
	if draft.Confidence != 0.92 {
		t.Errorf("confidence = %v", draft.Confidence)
	}
	if draft.UsedPolicy == nil || *draft.UsedPolicy != "Billing §4" {
		t.Errorf("used_policy = %v", draft.UsedPolicy)
	}
}

func TestDraftUnwrapsCodeFences(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "```json\n{\"ticket_id\":\"TKT_01\",\"reply\":\"Here to help.\",\"tone\":\"Friendly\",\"confidence\":0.7,\"used_policy\":null,\"used_reference_ticket_id\":null}\n```")
	})

	draft, err := client.Draft(context.Background(), DraftRequest{TicketID: "TKT_01", Issue: "help"})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Reply != "Here to help." {
		t.Errorf("reply = %q", draft.Reply)
	}
	if draft.UsedPolicy != nil {
		t.Errorf("used_policy = %v, want nil", draft.UsedPolicy)
	}
}

func TestDraftMalformedJSONIsParseError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "I am sorry, I cannot answer that.")
	})

	_, err := client.Draft(context.Background(), DraftRequest{TicketID: "TKT_01", Issue: "help"})
	if !apperrors.HasCode(err, "PARSE_ERROR") {
		t.Fatalf("err = %v, want parse error", err)
	}
	if apperrors.IsRetryable(err) {
		t.Error("parse error must not be retryable")
	}
}

func TestDraftConfidenceOutOfRangeIsParseError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"ticket_id":"TKT_01","reply":"ok","tone":"Calm","confidence":1.4,"used_policy":null,"used_reference_ticket_id":null}`)
	})

	_, err := client.Draft(context.Background(), DraftRequest{TicketID: "TKT_01", Issue: "help"})
	if !apperrors.HasCode(err, "PARSE_ERROR") {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestDraftServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusInternalServerError)
	})

	_, err := client.Draft(context.Background(), DraftRequest{TicketID: "TKT_01", Issue: "help"})
	if !apperrors.HasCode(err, "CONNECTIVITY_ERROR") {
		t.Fatalf("err = %v, want connectivity error", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Error("connectivity error must be retryable")
	}
}

func TestDraftBackfillsTicketID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"reply":"done","tone":"Calm","confidence":0.5,"used_policy":null,"used_reference_ticket_id":null}`)
	})

	draft, err := client.Draft(context.Background(), DraftRequest{TicketID: "TKT_42", Issue: "help"})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.TicketID != "TKT_42" {
		t.Errorf("ticket_id = %q, want TKT_42", draft.TicketID)
	}
}

func TestRephrase(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Temperature == nil || *req.Temperature != 0.6 {
			t.Errorf("temperature = %v, want 0.6", req.Temperature)
		}
		chatReply(t, w, "Could you kindly confirm your order number?")
	})

	result, err := client.Rephrase(context.Background(), "what's your order number", 0.6)
	if err != nil {
		t.Fatalf("rephrase: %v", err)
	}
	if result != "Could you kindly confirm your order number?" {
		t.Errorf("result = %q", result)
	}
}

func TestRephraseEmptyResultIsParseError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "   ")
	})

	_, err := client.Rephrase(context.Background(), "hello", 0.2)
	if !apperrors.HasCode(err, "PARSE_ERROR") {
		t.Fatalf("err = %v, want parse error", err)
	}
}
