package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/listsync/internal/shared"
)

const (
	mailchimpAuthURL  = "https://login.mailchimp.com/oauth2/authorize"
	mailchimpTokenURL = "https://login.mailchimp.com/oauth2/token"

	invalidKeyMessage = "Your API key may be invalid, or you've attempted to access the wrong datacenter."
)

// Credentials identify the account. Exactly one of APIKey and AccessToken is used,
// depending on Method ([shared.AuthAPIKey] or [shared.AuthOAuth]).
type Credentials struct {
	Method      string
	APIKey      string
	AccessToken string
}

// OAuthMetadata is the response of the OAuth metadata endpoint.
type OAuthMetadata struct {
	DC          string `json:"dc"`
	APIEndpoint string `json:"api_endpoint"`
	AccountName string `json:"accountname"`
	LoginURL    string `json:"login_url"`
}

// DataCenter returns the datacenter suffix of an API key ("...-us6" -> "us6").
func DataCenter(apiKey string) (string, error) {
	i := strings.LastIndex(apiKey, "-")
	if i < 0 || i == len(apiKey)-1 {
		return "", fmt.Errorf("%w: API key has no datacenter suffix", shared.ErrInvalidConfig)
	}
	return apiKey[i+1:], nil
}

// DefaultAPIVersion is used when no version is configured.
const DefaultAPIVersion = "3.0"

// APIBaseURL is the versioned API root for a datacenter.
func APIBaseURL(dc, version string) string {
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("https://%s.api.mailchimp.com/%s", dc, version)
}

// basicAuthTransport adds HTTP Basic credentials to every request.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (b *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(b.username, b.password)
	return b.base.RoundTrip(r)
}

// AuthenticatedClient returns an [http.Client] that signs requests for creds.
//
// API keys use Basic auth with the fixed "apikey" username. OAuth tokens are sent with the
// "OAuth" scheme through an [oauth2.Transport].
func AuthenticatedClient(creds Credentials, base http.RoundTripper, timeout time.Duration) (*http.Client, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{Timeout: timeout}

	switch creds.Method {
	case shared.AuthAPIKey:
		if creds.APIKey == "" {
			return nil, fmt.Errorf("%w: apikey", shared.ErrMissingCredentials)
		}
		client.Transport = &basicAuthTransport{username: APIUsername, password: creds.APIKey, base: base}
	case shared.AuthOAuth:
		if creds.AccessToken == "" {
			return nil, fmt.Errorf("%w: access_token", shared.ErrMissingCredentials)
		}
		token := &oauth2.Token{AccessToken: creds.AccessToken, TokenType: "OAuth"}
		client.Transport = &oauth2.Transport{Source: oauth2.StaticTokenSource(token), Base: base}
	default:
		return nil, fmt.Errorf("%w: unknown auth method '%s'", shared.ErrInvalidConfig, creds.Method)
	}
	return client, nil
}

// EndpointResolver produces the [RunContext] for a run: it authenticates, discovers the
// datacenter and checks that the credentials are accepted.
type EndpointResolver struct {
	Policy      RetryPolicy
	Timeout     time.Duration
	Base        http.RoundTripper
	Logger      *log.Logger
	MetadataURL string
	APIVersion  string
	BaseURL     func(dc string) string // API root for a datacenter; defaults to [APIBaseURL] with APIVersion
	Wait        WaitFunc
}

// NewEndpointResolver creates a resolver with production endpoints.
func NewEndpointResolver(policy RetryPolicy, timeout time.Duration, logger *log.Logger) *EndpointResolver {
	return &EndpointResolver{
		Policy:      policy,
		Timeout:     timeout,
		Logger:      logger,
		MetadataURL: MetadataURL,
		APIVersion:  DefaultAPIVersion,
	}
}

func (r *EndpointResolver) transport(baseURL string, client *http.Client) *HTTPTransport {
	opts := []TransportOption{WithRetryPolicy(r.Policy), WithLogger(r.Logger)}
	if r.Wait != nil {
		opts = append(opts, WithWaitFunc(r.Wait))
	}
	return NewHTTPTransport(baseURL, client, opts...)
}

// Resolve builds the [RunContext] for listID.
//
// Lookups go through the retry policy, but an authentication failure ends resolution at once.
func (r *EndpointResolver) Resolve(ctx context.Context, creds Credentials, listID string) (*RunContext, error) {
	client, err := AuthenticatedClient(creds, r.Base, r.Timeout)
	if err != nil {
		return nil, err
	}

	baseURLFor := r.BaseURL
	if baseURLFor == nil {
		baseURLFor = func(dc string) string { return APIBaseURL(dc, r.APIVersion) }
	}

	rc := &RunContext{
		RunID:      shared.GenerateID(),
		AuthMethod: creds.Method,
		ListID:     listID,
		HTTPClient: client,
	}

	switch creds.Method {
	case shared.AuthAPIKey:
		dc, err := DataCenter(creds.APIKey)
		if err != nil {
			return nil, err
		}
		rc.DataCenter = dc
		rc.BaseURL = baseURLFor(dc)

		t := r.transport(rc.BaseURL, client)
		if _, err := t.Send(ctx, http.MethodGet, "/", nil); err != nil {
			if errors.Is(err, shared.ErrAuthFailed) {
				return nil, fmt.Errorf("%w: %s", shared.ErrAuthFailed, invalidKeyMessage)
			}
			return nil, fmt.Errorf("failed to verify API key: %w", err)
		}
		rc.Transport = t
	case shared.AuthOAuth:
		meta, err := r.metadata(ctx, client)
		if err != nil {
			return nil, err
		}
		rc.DataCenter = meta.DC
		rc.BaseURL = baseURLFor(meta.DC)
		rc.Transport = r.transport(rc.BaseURL, client)
	}

	if r.Logger != nil {
		r.Logger.Info("resolved endpoint", "run_id", rc.RunID, "dc", rc.DataCenter, "base_url", rc.BaseURL)
	}
	return rc, nil
}

// metadata fetches the datacenter of an OAuth token.
func (r *EndpointResolver) metadata(ctx context.Context, client *http.Client) (*OAuthMetadata, error) {
	url := r.MetadataURL
	if url == "" {
		url = MetadataURL
	}

	body, err := r.transport("", client).Send(ctx, http.MethodGet, url, nil)
	if err != nil {
		if errors.Is(err, shared.ErrAuthFailed) {
			return nil, fmt.Errorf("%w: OAuth access token rejected", shared.ErrAuthFailed)
		}
		return nil, fmt.Errorf("failed to fetch OAuth metadata: %w", err)
	}

	var meta OAuthMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("%w: OAuth metadata: %v", shared.ErrDataError, err)
	}
	if meta.DC == "" {
		return nil, fmt.Errorf("%w: OAuth metadata has no datacenter", shared.ErrAuthFailed)
	}
	return &meta, nil
}

// NewOAuthConfig returns the authorization-code flow configuration for a registered app.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   mailchimpAuthURL,
			TokenURL:  mailchimpTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
