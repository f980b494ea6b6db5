package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/listsync/internal/shared"
)

// HTTPError is a non-2xx response. It unwraps to the sentinel describing its class:
// [shared.ErrTransient], [shared.ErrAuthFailed] or [shared.ErrPermanent].
type HTTPError struct {
	StatusCode int
	Method     string
	Endpoint   string
	Body       string
	class      error
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, body)
}

func (e *HTTPError) Unwrap() error { return e.class }

// classify maps a status code onto its error class.
func classify(status int) error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return shared.ErrTransient
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return shared.ErrAuthFailed
	default:
		return shared.ErrPermanent
	}
}

// TransportStats counts requests issued by an [HTTPTransport].
type TransportStats struct {
	Requests int
	Retries  int
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HTTPTransport implements [Transport] over an authenticated [http.Client] with exponential backoff.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	policy  RetryPolicy
	logger  *log.Logger
	wait    WaitFunc
	stats   TransportStats
}

// TransportOption configures an [HTTPTransport].
type TransportOption func(*HTTPTransport)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) TransportOption {
	return func(t *HTTPTransport) { t.policy = p }
}

// WithLogger sets the logger used for request and retry logs.
func WithLogger(l *log.Logger) TransportOption {
	return func(t *HTTPTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithWaitFunc replaces the backoff sleep.
func WithWaitFunc(w WaitFunc) TransportOption {
	return func(t *HTTPTransport) {
		if w != nil {
			t.wait = w
		}
	}
}

// NewHTTPTransport creates a transport rooted at baseURL.
func NewHTTPTransport(baseURL string, client *http.Client, opts ...TransportOption) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		policy:  DefaultRetryPolicy(),
		logger:  log.Default(),
		wait:    sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stats returns request and retry counts since creation.
func (t *HTTPTransport) Stats() TransportStats { return t.stats }

// Send implements [Transport].
//
// 429, 5xx and network failures are retried up to MaxRetries times; once exhausted the error
// wraps both [shared.ErrRetriesExhausted] and the last failure. Other errors return at once.
func (t *HTTPTransport) Send(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	target := t.resolve(endpoint)
	var lastErr error

	for attempt := 0; attempt <= t.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := t.policy.Backoff(attempt)
			t.stats.Retries++
			t.logger.Warn("retrying request", "method", method, "endpoint", endpoint, "attempt", attempt, "wait", backoff, "error", lastErr)
			if err := t.wait(ctx, backoff); err != nil {
				return nil, err
			}
		}

		respBody, err := t.sendOnce(ctx, method, target, endpoint, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		if !errors.Is(err, shared.ErrTransient) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", shared.ErrRetriesExhausted, t.policy.MaxRetries+1, lastErr)
}

func (t *HTTPTransport) sendOnce(ctx context.Context, method, target, endpoint string, body []byte) ([]byte, error) {
	t.stats.Requests++

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrTransient, method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", shared.ErrTransient, err)
	}

	t.logger.Debug("api call", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Endpoint:   endpoint,
			Body:       string(respBody),
			class:      classify(resp.StatusCode),
		}
	}

	return respBody, nil
}

func (t *HTTPTransport) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return t.baseURL + endpoint
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
