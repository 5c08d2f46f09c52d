package retrieval

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spec-kit/support-copilot/internal/config"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.RetrievalConfig{BaseURL: server.URL, TimeoutSeconds: 5})
}

func TestSearchDecodesSnippets(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/policy/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Query != "refund for damaged item" || req.K != 3 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(searchResponse{Results: []Snippet{
			{Content: "Damaged items are refunded in full.", Distance: 0.25},
			{Content: "Refunds settle within 5 business days.", Distance: 0.4},
		}})
	})

	snippets, err := client.Search(context.Background(), IndexPolicy, "refund for damaged item", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(snippets) != 2 {
		t.Fatalf("got %d snippets, want 2", len(snippets))
	}
	if snippets[0].Content != "Damaged items are refunded in full." {
		t.Errorf("content = %q", snippets[0].Content)
	}
}

func TestSearchServerErrorIsRetryable(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	})

	_, err := client.Search(context.Background(), IndexPreviousRecord, "anything", 5)
	if !apperrors.HasCode(err, "CONNECTIVITY_ERROR") {
		t.Fatalf("err = %v, want connectivity error", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Error("connectivity error must be retryable")
	}
}

func TestSnippetConfidence(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{1, 0.5},
		{3, 0.25},
	}
	for _, tc := range cases {
		got := Snippet{Distance: tc.distance}.Confidence()
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("confidence(%v) = %v, want %v", tc.distance, got, tc.want)
		}
	}
}

func TestBuilderQueriesBothIndices(t *testing.T) {
	var policyK, recordK int
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch r.URL.Path {
		case "/indexes/policy/search":
			policyK = req.K
		case "/indexes/previous-record/search":
			recordK = req.K
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(searchResponse{Results: []Snippet{{Content: "x"}}})
	})

	builder := NewBuilder(client, 3, 5)
	evidence, err := builder.Build(context.Background(), "my parcel never arrived")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if policyK != 3 || recordK != 5 {
		t.Errorf("k values = %d policy, %d records; want 3 and 5", policyK, recordK)
	}
	if len(evidence.Policy) != 1 || len(evidence.PreviousRecords) != 1 {
		t.Errorf("evidence = %+v", evidence)
	}
}

func TestBuilderPropagatesIndexFailure(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	builder := NewBuilder(client, 3, 5)
	if _, err := builder.Build(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when index is unreachable")
	}
}
