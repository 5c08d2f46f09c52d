package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spec-kit/support-copilot/internal/config"
	"github.com/spec-kit/support-copilot/internal/retrieval"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

const draftSystemPrompt = `You are a professional customer support agent for a large e-commerce platform.

Your task:
- Draft a safe, policy-compliant response for a human support agent to review.
- Follow the provided policy strictly.
- Use previous resolved tickets only as reference, not as guarantees.
- Do NOT make promises outside the policy.
- Do NOT mention internal processes or timelines unless stated in the policy.
- Maintain a professional and calm tone at all times.

Respond with a single JSON object and nothing else:
{"ticket_id": string, "reply": string, "tone": string, "confidence": number between 0 and 1, "used_policy": string or null, "used_reference_ticket_id": string or null}

If no specific policy applies, set "used_policy" to null.`

const rephraseSystemPrompt = `Your task is to rephrase the given text to make it more polite and professional.
Please ensure that the meaning of the text remains unchanged.
Respond with the rephrased text only.`

// Client implements Drafter against an OpenAI-compatible chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs the completion client.
func NewClient(cfg config.CompletionConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Draft sends the ticket and its retrieved evidence to the completion
// service and validates the structured result. Schema violations and an
// out-of-range confidence are parse errors; transport failures are
// retryable connectivity errors.
func (c *Client) Draft(ctx context.Context, req DraftRequest) (*Draft, error) {
	userPrompt := fmt.Sprintf("Ticket Id:\n%s\n\nCustomer issue:\n%s\n\nRelevant policy:\n%s\n\nPrevious resolved tickets (for reference only):\n%s",
		req.TicketID,
		req.Issue,
		renderSnippets(req.PolicyContext, "No specific Policy Provided"),
		renderSnippets(req.PreviousRecordContext, "No Previous Records Found"),
	)

	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: draftSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil)
	if err != nil {
		return nil, err
	}

	var draft Draft
	if err := json.Unmarshal([]byte(extractJSON(content)), &draft); err != nil {
		return nil, apperrors.NewParseError("draft output is not valid JSON", map[string]any{
			"ticket_id": req.TicketID,
		})
	}
	if err := validateDraft(&draft, req.TicketID); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Rephrase returns the text rewritten in a more polite, professional
// register with the meaning unchanged.
func (c *Client) Rephrase(ctx context.Context, text string, temperature float64) (string, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: rephraseSystemPrompt},
		{Role: "user", Content: text},
	}, &temperature)
	if err != nil {
		return "", err
	}
	result := strings.TrimSpace(content)
	if result == "" {
		return "", apperrors.NewParseError("rephrase returned empty text", nil)
	}
	return result, nil
}

func (c *Client) complete(ctx context.Context, messages []chatMessage, temperature *float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewConnectivityError("completion service", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewConnectivityError("completion service", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewConnectivityError("completion service",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperrors.NewConnectivityError("completion service", fmt.Errorf("decoding response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.NewParseError("completion returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func validateDraft(draft *Draft, ticketID string) error {
	if strings.TrimSpace(draft.Reply) == "" {
		return apperrors.NewParseError("draft reply is empty", map[string]any{"ticket_id": ticketID})
	}
	if strings.TrimSpace(draft.Tone) == "" {
		return apperrors.NewParseError("draft tone is empty", map[string]any{"ticket_id": ticketID})
	}
	if draft.Confidence < 0 || draft.Confidence > 1 {
		return apperrors.NewParseError("draft confidence out of range", map[string]any{
			"ticket_id":  ticketID,
			"confidence": draft.Confidence,
		})
	}
	if draft.TicketID == "" {
		draft.TicketID = ticketID
	}
	return nil
}

func renderSnippets(snippets []retrieval.Snippet, empty string) string {
	if len(snippets) == 0 {
		return empty
	}
	var sb strings.Builder
	for i, snippet := range snippets {
		fmt.Fprintf(&sb, "%d. %s", i+1, snippet.Content)
		if ref, ok := snippet.Metadata["ticket_id"]; ok {
			fmt.Fprintf(&sb, " [ticket_id: %s]", ref)
		}
		if res, ok := snippet.Metadata["resolution"]; ok {
			fmt.Fprintf(&sb, " [resolution: %s]", res)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// extractJSON trims code fences and surrounding prose the model may wrap
// around the JSON object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
