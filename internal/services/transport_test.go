package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/listsync/internal/shared"
	tu "github.com/desertthunder/listsync/internal/testing"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// recordWaits returns a WaitFunc that records intervals without sleeping.
func recordWaits(waits *[]time.Duration) WaitFunc {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{MaxRetries: 6, InitialInterval: time.Second, MaxInterval: 32 * time.Second}
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second, 32 * time.Second}

	for attempt, w := range want {
		if got := p.Backoff(attempt); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}

	t.Run("cap below second interval", func(t *testing.T) {
		p := RetryPolicy{InitialInterval: 100 * time.Millisecond, MaxInterval: 150 * time.Millisecond}
		if got := p.Backoff(3); got != 150*time.Millisecond {
			t.Errorf("expected cap, got %v", got)
		}
	})

	t.Run("zero initial interval", func(t *testing.T) {
		if got := (RetryPolicy{}).Backoff(3); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})
}

func TestHTTPTransport(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 6, InitialInterval: 100 * time.Millisecond, MaxInterval: 250 * time.Millisecond}

	newTransport := func(rt http.RoundTripper, waits *[]time.Duration, p RetryPolicy) *HTTPTransport {
		return NewHTTPTransport("https://us6.api.mailchimp.com/3.0", &http.Client{Transport: rt},
			WithRetryPolicy(p), WithLogger(quietLogger()), WithWaitFunc(recordWaits(waits)))
	}

	t.Run("retries each 429 with monotonic backoff", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper(
			tu.Step{Status: 429, Body: `{"title":"Too Many Requests"}`},
			tu.Step{Status: 429, Body: `{"title":"Too Many Requests"}`},
			tu.Step{Status: 429, Body: `{"title":"Too Many Requests"}`},
			tu.Step{Status: 429, Body: `{"title":"Too Many Requests"}`},
			tu.Step{Status: 200, Body: `{"ok":true}`},
		)
		var waits []time.Duration
		tr := newTransport(rt, &waits, policy)

		body, err := tr.Send(context.Background(), http.MethodGet, "/lists/abc", nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Errorf("unexpected body %s", body)
		}

		if tr.Stats().Retries != 4 {
			t.Errorf("expected 4 retries, got %d", tr.Stats().Retries)
		}
		if tr.Stats().Requests != 5 || rt.Count() != 5 {
			t.Errorf("expected 5 requests, got %d", tr.Stats().Requests)
		}
		if len(waits) != 4 {
			t.Fatalf("expected 4 waits, got %v", waits)
		}
		for i := 1; i < len(waits); i++ {
			if waits[i] < waits[i-1] {
				t.Errorf("backoff decreased: %v", waits)
			}
			if waits[i] > policy.MaxInterval {
				t.Errorf("backoff above cap: %v", waits)
			}
		}
		if waits[0] != 100*time.Millisecond || waits[1] != 200*time.Millisecond || waits[2] != 250*time.Millisecond {
			t.Errorf("unexpected intervals %v", waits)
		}
	})

	t.Run("5xx exhausts retries", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper(tu.Step{Status: 503, Body: "unavailable"})
		var waits []time.Duration
		tr := newTransport(rt, &waits, RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

		_, err := tr.Send(context.Background(), http.MethodPost, "/lists/abc", []byte(`{}`))
		if !errors.Is(err, shared.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected chain to include ErrTransient, got %v", err)
		}
		if StatusCode(err) != 503 {
			t.Errorf("expected status 503 in chain, got %d", StatusCode(err))
		}
		if rt.Count() != 3 {
			t.Errorf("expected 3 attempts, got %d", rt.Count())
		}
	})

	t.Run("other 4xx is not retried", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper(tu.Step{Status: 400, Body: `{"title":"Invalid Resource"}`})
		var waits []time.Duration
		tr := newTransport(rt, &waits, policy)

		_, err := tr.Send(context.Background(), http.MethodPost, "/lists/abc", []byte(`{}`))
		if !errors.Is(err, shared.ErrPermanent) {
			t.Fatalf("expected ErrPermanent, got %v", err)
		}
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != 400 || httpErr.Endpoint != "/lists/abc" {
			t.Errorf("expected HTTPError 400, got %#v", err)
		}
		if rt.Count() != 1 || len(waits) != 0 {
			t.Errorf("expected a single attempt, got %d", rt.Count())
		}
	})

	t.Run("401 is an auth failure", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper(tu.Step{Status: 401, Body: `{"title":"API Key Invalid"}`})
		var waits []time.Duration
		tr := newTransport(rt, &waits, policy)

		_, err := tr.Send(context.Background(), http.MethodGet, "/", nil)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if rt.Count() != 1 {
			t.Errorf("expected a single attempt, got %d", rt.Count())
		}
	})

	t.Run("network errors are retried", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper(
			tu.Step{Err: errors.New("connection reset by peer")},
			tu.Step{Status: 200, Body: `{}`},
		)
		var waits []time.Duration
		tr := newTransport(rt, &waits, policy)

		if _, err := tr.Send(context.Background(), http.MethodGet, "/", nil); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if tr.Stats().Retries != 1 {
			t.Errorf("expected 1 retry, got %d", tr.Stats().Retries)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper(tu.Step{Status: 429, Body: `{}`})
		ctx, cancel := context.WithCancel(context.Background())
		tr := NewHTTPTransport("https://x", &http.Client{Transport: rt},
			WithRetryPolicy(policy), WithLogger(quietLogger()),
			WithWaitFunc(func(ctx context.Context, d time.Duration) error {
				cancel()
				return ctx.Err()
			}))

		_, err := tr.Send(ctx, http.MethodGet, "/", nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if rt.Count() != 1 {
			t.Errorf("expected 1 attempt, got %d", rt.Count())
		}
	})

	t.Run("read failure is transient", func(t *testing.T) {
		resp := &http.Response{StatusCode: 200, Body: &tu.FCloser{}, Header: http.Header{}}
		var waits []time.Duration
		tr := newTransport(tu.NewMockRoundTripper(resp, nil), &waits, RetryPolicy{MaxRetries: 0})

		_, err := tr.Send(context.Background(), http.MethodGet, "/", nil)
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected ErrTransient, got %v", err)
		}
	})

	t.Run("sends json body and resolves endpoints", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/3.0/lists/abc" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
			}
			b, _ := io.ReadAll(r.Body)
			w.Write(b)
		}))
		defer server.Close()

		tr := NewHTTPTransport(server.URL+"/3.0/", server.Client(), WithLogger(quietLogger()))
		body, err := tr.Send(context.Background(), http.MethodPost, "lists/abc", []byte(`{"members":[]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"members":[]}` {
			t.Errorf("unexpected echo %s", body)
		}
	})
}
