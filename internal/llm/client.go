package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/yourname/llmgate/internal/assert"
	"github.com/yourname/llmgate/internal/logging"
	"github.com/yourname/llmgate/internal/redact"
)

// Options configures a Client. AllowedModels nil means any syntactically
// valid per-call override is honored; a non-nil list restricts overrides to
// its members (an excluded override silently falls back to Model).
type Options struct {
	APIKey        string
	BaseURL       string
	Model         string
	SystemPrompt  string
	AllowedModels []string
	MaxTokens     int
}

// Result carries the extracted text and usage metadata of one completed call.
// Token and cost fields default to zero for anything the provider omitted.
type Result struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	CachedTokens     int64
	ReasoningTokens  int64
	Cost             float64
}

// Client builds provider requests, delegates the exchange to an injected
// Transport, and extracts text plus usage metadata from the reply. Response
// text passes through the redaction filter before it is returned, so the
// credential can never ride back to the caller inside a completion.
type Client struct {
	opts      Options
	transport Transport
	filter    *redact.Filter
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatReply struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a provider client. The transport and filter are required
// collaborators.
func NewClient(opts Options, transport Transport, filter *redact.Filter) (*Client, error) {
	if err := assert.Check(opts.APIKey != "", "api key must not be empty"); err != nil {
		return nil, err
	}
	if err := assert.Check(opts.Model != "", "default model must not be empty"); err != nil {
		return nil, err
	}
	if err := assert.NotNil(transport, "transport"); err != nil {
		return nil, err
	}
	if err := assert.NotNil(filter, "redaction filter"); err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	return &Client{opts: opts, transport: transport, filter: filter}, nil
}

// DefaultModel returns the configured process-wide model id.
func (c *Client) DefaultModel() string {
	return c.opts.Model
}

// ValidateModelName checks the provider/model shape of a model id.
func ValidateModelName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 {
		return &ModelError{Reason: "model name must be at least 2 characters"}
	}
	if !strings.Contains(trimmed, "/") {
		return &ModelError{Reason: "model name must contain a '/' separator"}
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return &ModelError{Reason: "model name must contain a provider and a model separated by a single '/'"}
	}
	return nil
}

// ResolveModel decides which model a call uses. An empty override means the
// default. A malformed override is the caller's error. A well-formed
// override outside a configured allow-list is ignored with a warning, not
// rejected.
func (c *Client) ResolveModel(override string) (string, error) {
	if override == "" {
		return c.opts.Model, nil
	}
	if err := ValidateModelName(override); err != nil {
		return "", err
	}
	override = strings.TrimSpace(override)

	if c.opts.AllowedModels != nil && !contains(c.opts.AllowedModels, override) {
		logging.Warn("model_override_not_allowed", logging.Fields{Component: "llm", Model: override})
		return c.opts.Model, nil
	}
	return override, nil
}

// Call sends prompt to the resolved model and returns the redacted reply
// text with usage metadata. No retry happens here; retry policy, if any,
// belongs to the transport.
func (c *Client) Call(ctx context.Context, prompt, modelOverride string) (*Result, error) {
	model, err := c.ResolveModel(modelOverride)
	if err != nil {
		return nil, err
	}

	payload := chatPayload{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: c.opts.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: c.opts.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling provider payload: %w", err)
	}

	resp, err := c.transport.Send(ctx, c.opts.BaseURL+"/chat/completions", c.headers(), body)
	if err != nil {
		return nil, &ProviderError{Message: c.filter.Apply(err.Error())}
	}

	if resp.Status == http.StatusTooManyRequests {
		retryAfter := resp.Headers.Get("Retry-After")
		if retryAfter == "" {
			retryAfter = "60"
		}
		return nil, &ProviderError{
			Status:  resp.Status,
			Message: fmt.Sprintf("rate limited, retry after %s seconds", retryAfter),
		}
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, &ProviderError{Status: resp.Status, Message: http.StatusText(resp.Status)}
	}

	text, err := extractText(resp.Body)
	if err != nil {
		return nil, &ProviderError{Status: resp.Status, Message: c.filter.Apply(err.Error())}
	}

	result := &Result{
		Text:             c.filter.Apply(text),
		Model:            model,
		PromptTokens:     headerInt(resp.Headers, "X-Prompt-Tokens"),
		CompletionTokens: headerInt(resp.Headers, "X-Completion-Tokens"),
		CachedTokens:     headerInt(resp.Headers, "X-Cached-Tokens"),
		ReasoningTokens:  headerInt(resp.Headers, "X-Reasoning-Tokens"),
		Cost:             headerFloat(resp.Headers, "X-Total-Cost"),
	}
	return result, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization":      "Bearer " + c.opts.APIKey,
		"Content-Type":       "application/json",
		"HTTP-Referer":       "https://github.com/yourname/llmgate",
		"X-Title":            "llmgate",
		"X-API-Version":      "1",
		"X-Response-Content": "usage",
	}
}

func extractText(body []byte) (string, error) {
	var reply chatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("invalid provider response: %w", err)
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("invalid provider response: missing choices array")
	}
	return reply.Choices[0].Message.Content, nil
}

func headerInt(h http.Header, key string) int64 {
	v, err := strconv.ParseInt(h.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func headerFloat(h http.Header, key string) float64 {
	v, err := strconv.ParseFloat(h.Get(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
