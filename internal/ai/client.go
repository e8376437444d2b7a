package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fatal error kinds. These abort the current operation immediately and are
// never retried.
var (
	ErrAuthentication = errors.New("ai: authentication failed")
	ErrModel          = errors.New("ai: model unavailable or invalid")
	ErrRateLimited    = errors.New("ai: rate limit exceeded")
	ErrProtocol       = errors.New("ai: malformed model response")
)

// Message is one entry of the ordered chat transcript sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClientConfig holds model client configuration.
type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float64
	RetryAttempts int
	// Cooldown is the single global window enforced between any two calls.
	Cooldown time.Duration
	// Timeout bounds one HTTP round trip.
	Timeout time.Duration
}

// Client is a chat-completions client with a global call cooldown and bounded
// retry on transient failures.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger

	// backoffUnit scales the exponential backoff; shrunk in tests.
	backoffUnit   time.Duration
	maxRetryAfter time.Duration

	mu           sync.Mutex
	lastCallTime time.Time
}

// NewClient builds a model client. The API key is required.
func NewClient(cfg ClientConfig, logger *zap.SugaredLogger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrAuthentication)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}

	return &Client{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
		backoffUnit:   time.Second,
		maxRetryAfter: 60 * time.Second,
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatCompletion sends the transcript and returns the content of the first
// choice. The call blocks until the global cooldown has elapsed rather than
// dropping the request; the last-call timestamp is advanced before the
// request is issued so concurrent callers queue instead of stampeding.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if err := c.waitForCooldown(ctx); err != nil {
			return "", err
		}

		content, retryIn, err := c.doRequest(ctx, payload)
		if err == nil {
			return content, nil
		}
		if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrModel) || errors.Is(err, ErrProtocol) {
			return "", err
		}

		lastErr = err
		if attempt == c.cfg.RetryAttempts-1 {
			break
		}
		if retryIn <= 0 {
			retryIn = c.backoffUnit << attempt // 1s, 2s, 4s...
		}
		c.logger.Warnf("Model call failed (attempt %d/%d), retrying in %s: %v",
			attempt+1, c.cfg.RetryAttempts, retryIn, err)
		if err := sleepCtx(ctx, retryIn); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("model call failed after %d attempts: %w", c.cfg.RetryAttempts, lastErr)
}

// doRequest performs one HTTP round trip. For retryable failures it may
// return a positive retry hint taken from the Retry-After header.
func (c *Client) doRequest(ctx context.Context, payload []byte) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("reading model response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		if len(parsed.Choices) == 0 {
			return "", 0, fmt.Errorf("%w: response has no choices", ErrProtocol)
		}
		return parsed.Choices[0].Message.Content, 0, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return "", 0, fmt.Errorf("%w: invalid API key", ErrAuthentication)

	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return "", 0, fmt.Errorf("%w: %s (status %d)", ErrModel, c.cfg.Model, resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests:
		return "", c.retryAfterHint(resp), fmt.Errorf("%w (status 429)", ErrRateLimited)

	case resp.StatusCode >= 500:
		return "", 0, fmt.Errorf("model server error (status %d): %s", resp.StatusCode, truncate(string(body), 200))

	default:
		return "", 0, fmt.Errorf("model API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
}

// retryAfterHint reads the server-provided wait hint, capped at a sane
// maximum.
func (c *Client) retryAfterHint(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 30 * time.Second
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 30 * time.Second
	}
	hint := time.Duration(seconds) * time.Second
	if hint > c.maxRetryAfter {
		hint = c.maxRetryAfter
	}
	return hint
}

// waitForCooldown blocks until the global cooldown window has elapsed,
// advancing the last-call timestamp before returning so a concurrent caller
// observes the reservation immediately.
func (c *Client) waitForCooldown(ctx context.Context) error {
	for {
		c.mu.Lock()
		wait := c.timeUntilNextCallLocked()
		if wait <= 0 {
			c.lastCallTime = time.Now()
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		c.logger.Warnf("Model call cooldown active, sleeping for %s", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// IsRateLimited reports whether an immediate call would have to wait.
func (c *Client) IsRateLimited() bool {
	return c.TimeUntilNextCall() > 0
}

// TimeUntilNextCall returns how long a caller would wait before the next
// call is allowed, or 0 when ready.
func (c *Client) TimeUntilNextCall() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeUntilNextCallLocked()
}

func (c *Client) timeUntilNextCallLocked() time.Duration {
	if c.lastCallTime.IsZero() {
		return 0
	}
	remaining := c.cfg.Cooldown - time.Since(c.lastCallTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
