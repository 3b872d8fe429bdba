// Package llm sends chat completions to OpenAI-compatible providers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pario-ai/parley/pkg/config"
	"github.com/pario-ai/parley/pkg/models"
)

// ErrAllProvidersFailed is returned when no provider produced a reply.
var ErrAllProvidersFailed = errors.New("all upstream providers failed")

const completionsPath = "/v1/chat/completions"

// Completer produces the assistant reply for a chat context.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Client tries each configured provider in order until one answers.
type Client struct {
	providers []config.ProviderConfig
	timeout   time.Duration
	http      *http.Client
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each provider attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(providers []config.ProviderConfig, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		providers: providers,
		timeout:   60 * time.Second,
		http:      http.DefaultClient,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete returns the content of the first choice from the first provider
// that answers. Transport errors and 5xx responses fall through to the next
// provider. Any other failure ends the chain.
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("%w: no providers configured", ErrAllProvidersFailed)
	}

	var lastErr error
	for _, p := range c.providers {
		reply, status, err := c.try(ctx, p, messages)
		if err == nil {
			return reply, nil
		}
		lastErr = fmt.Errorf("provider %s: %w", p.Name, err)
		if ctx.Err() != nil || !isRetryable(err, status) {
			c.logger.Warn("upstream rejected request", "provider", p.Name, "status", status, "error", err)
			break
		}
		c.logger.Info("upstream failed, trying next", "provider", p.Name, "status", status, "error", err)
	}
	return "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

// try performs one provider attempt and returns the reply and HTTP status.
func (c *Client) try(ctx context.Context, p config.ProviderConfig, messages []models.ChatMessage) (string, int, error) {
	body, err := json.Marshal(models.ChatCompletionRequest{Model: p.Model, Messages: messages})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	headers := map[string]string{}
	if p.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.APIKey
	}
	res, err := c.doUpstreamRequest(attemptCtx, p.URL, headers, body)
	if err != nil {
		return "", 0, err
	}
	if res.statusCode != http.StatusOK {
		return "", res.statusCode, fmt.Errorf("status %d: %s", res.statusCode, snippet(res.body))
	}

	var resp models.ChatCompletionResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return "", res.statusCode, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", res.statusCode, errors.New("response has no choices")
	}
	return resp.Choices[0].Message.Content, res.statusCode, nil
}

type upstreamResult struct {
	statusCode int
	body       []byte
}

func (c *Client) doUpstreamRequest(ctx context.Context, providerURL string, headers map[string]string, body []byte) (*upstreamResult, error) {
	target, err := url.Parse(providerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(target.String(), "/")+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &upstreamResult{statusCode: resp.StatusCode, body: respBody}, nil
}

// isRetryable reports whether the failure is a transport error or a server error.
func isRetryable(err error, statusCode int) bool {
	if statusCode == 0 {
		return err != nil
	}
	return statusCode >= 500
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
