package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spec-kit/support-copilot/internal/config"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// Client talks to the similarity-search service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs the retrieval client.
func NewClient(cfg config.RetrievalConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchResponse struct {
	Results []Snippet `json:"results"`
}

// Search performs one similarity query against the named index. Transport
// and status failures surface as retryable connectivity errors.
func (c *Client) Search(ctx context.Context, index, query string, k int) ([]Snippet, error) {
	body, err := json.Marshal(searchRequest{Query: query, K: k})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/search", c.baseURL, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewConnectivityError("retrieval service", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewConnectivityError("retrieval service", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewConnectivityError("retrieval service",
			fmt.Errorf("index %s returned status %d: %s", index, resp.StatusCode, string(respBody)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperrors.NewConnectivityError("retrieval service", fmt.Errorf("decoding response: %w", err))
	}
	return parsed.Results, nil
}
