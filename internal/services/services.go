// package services talks to the Mailchimp Marketing API (v3.0)
package services

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultPageSize is the count used for every paginated list endpoint.
	DefaultPageSize = 100
	// MetadataURL returns the datacenter of an OAuth access token.
	MetadataURL = "https://login.mailchimp.com/oauth2/metadata"
	// APIUsername is the fixed Basic auth username paired with an API key.
	APIUsername = "apikey"
)

// Transport executes one API call and returns the raw response body.
//
// Implementations retry transient failures and classify the rest with the errors in [shared].
type Transport interface {
	// Send issues method against endpoint. Endpoints starting with "/" are relative to the
	// resolved API base URL; absolute URLs are used as-is. A nil body sends no payload.
	Send(ctx context.Context, method, endpoint string, body []byte) ([]byte, error)
}

// RetryPolicy is an exponential backoff policy.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the defaults of the embedded config.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 6, InitialInterval: time.Second, MaxInterval: 32 * time.Second}
}

// Backoff returns the wait before retry number attempt (1-based).
//
// The interval doubles from InitialInterval and is capped at MaxInterval.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialInterval <= 0 {
		return 0
	}
	d := p.InitialInterval
	for i := 1; i < attempt; i++ {
		if p.MaxInterval > 0 && d >= p.MaxInterval {
			break
		}
		d *= 2
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// RunContext is everything resolved once before a run starts: identity, endpoint and the
// authenticated HTTP client. It is read-only after [EndpointResolver.Resolve] returns.
type RunContext struct {
	RunID      string
	AuthMethod string
	DataCenter string
	BaseURL    string
	ListID     string
	HTTPClient *http.Client
	Transport  Transport
}

// Close releases idle connections held by the run's HTTP client.
func (rc *RunContext) Close() {
	if rc == nil || rc.HTTPClient == nil {
		return
	}
	rc.HTTPClient.CloseIdleConnections()
}
