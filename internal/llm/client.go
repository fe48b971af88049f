// Package llm wraps the upstream OpenAI-compatible chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkwise/inkwise/internal/config"
	"go.uber.org/zap"
)

// Message is one chat turn sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

// Params bundles the recognized generation options.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Client is the upstream generation contract. GenerateStream forwards each
// fragment through yield in arrival order and returns the accumulated text;
// a non-nil error means the upstream failed after (or before) the fragments
// already yielded.
type Client interface {
	GenerateOnce(ctx context.Context, prompt string, p Params) (string, error)
	GenerateStream(ctx context.Context, msgs []Message, p Params, yield func(fragment string) error) (string, error)
}

// ErrUpstream wraps transport and protocol failures from the generation endpoint.
var ErrUpstream = errors.New("upstream generation failed")

// ErrorFragment is the single in-band fragment appended to a client stream
// when the upstream connection fails mid-generation. Produced in exactly one
// place so a framed protocol can replace it later.
func ErrorFragment() string {
	return "\n\n[generation interrupted: the model connection was lost]"
}

const (
	retryAttempts = 3
	retryDelay    = time.Second
)

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	Stream      *bool     `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// HTTPClient talks to an OpenAI-compatible endpoint over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func NewClient(cfg config.Config, log *zap.Logger) Client {
	return NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, log)
}

func NewHTTPClient(baseURL, apiKey string, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
		log:     log.Named("llm.client"),
		sleep:   time.Sleep,
	}
}

func (c *HTTPClient) post(ctx context.Context, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}

// GenerateOnce requests a full completion, retrying transient failures with a
// fixed delay and surfacing the last error once attempts are exhausted.
func (c *HTTPClient) GenerateOnce(ctx context.Context, prompt string, p Params) (string, error) {
	req := chatCompletionRequest{
		Model:     p.Model,
		Messages:  []Message{{Role: "user", Content: prompt}},
		MaxTokens: p.MaxTokens,
	}
	if p.Temperature > 0 {
		req.Temperature = &p.Temperature
	}

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		text, err := c.completeOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.log.Warn("generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < retryAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
			}
			c.sleep(retryDelay)
		}
	}
	return "", lastErr
}

func (c *HTTPClient) completeOnce(ctx context.Context, req chatCompletionRequest) (string, error) {
	resp, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrUpstream, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUpstream)
	}
	return parsed.Choices[0].Message.Content, nil
}
