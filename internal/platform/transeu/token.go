// Package transeu is the client for the Trans.eu freight marketplace: OAuth2
// client-credentials tokens, the freight-proposals listing, and conversion of
// raw proposals into domain.FreightRecord values.
package transeu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

const (
	// TokenExpiryMargin is subtracted from the server-reported lifetime so a
	// token is never presented right as it expires.
	TokenExpiryMargin = 60 * time.Second

	// DefaultTokenTTL applies when the token response omits expires_in.
	DefaultTokenTTL = 3600 * time.Second

	tokenPath      = "/oauth/v2/token"
	tokenFlightKey = "token"
)

// Credentials are the three values required to talk to the marketplace.
type Credentials struct {
	APIKey       string
	ClientID     string
	ClientSecret string
}

// Configured reports whether every credential is present.
func (c Credentials) Configured() bool {
	return c.APIKey != "" && c.ClientID != "" && c.ClientSecret != ""
}

// TokenManager obtains and caches access tokens. The cached token is an
// immutable snapshot swapped atomically, and concurrent refreshes collapse
// into a single grant.
type TokenManager struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	now        func() time.Time
	current    atomic.Pointer[domain.AccessToken]
	flight     singleflight.Group
	logger     *slog.Logger
}

// NewTokenManager creates a TokenManager for the marketplace at baseURL.
func NewTokenManager(baseURL string, creds Credentials, httpClient *http.Client, logger *slog.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: httpClient,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "transeu_token")),
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// IsConfigured reports whether API key, client id and client secret are set.
func (m *TokenManager) IsConfigured() bool {
	return m.creds.Configured()
}

// APIKey returns the marketplace API key sent alongside the bearer token.
func (m *TokenManager) APIKey() string {
	return m.creds.APIKey
}

// HasToken reports whether a usable token is cached right now.
func (m *TokenManager) HasToken() bool {
	tok := m.current.Load()
	return tok != nil && tok.Valid(m.now())
}

// Token returns the cached token while it is valid and otherwise performs a
// client-credentials grant. Callers racing past expiry share one grant.
func (m *TokenManager) Token(ctx context.Context) (domain.AccessToken, error) {
	if !m.IsConfigured() {
		return domain.AccessToken{}, fmt.Errorf("transeu: token: %w: %w", domain.ErrAuth, domain.ErrNotConfigured)
	}
	if tok := m.current.Load(); tok != nil && tok.Valid(m.now()) {
		return *tok, nil
	}

	// The shared grant must not die with whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(tokenFlightKey, func() (any, error) {
		if tok := m.current.Load(); tok != nil && tok.Valid(m.now()) {
			return *tok, nil
		}
		tok, err := m.requestToken(flightCtx)
		if err != nil {
			return nil, err
		}
		m.current.Store(&tok)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return domain.AccessToken{}, fmt.Errorf("transeu: token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.AccessToken{}, fmt.Errorf("transeu: token: %w", res.Err)
		}
		return res.Val.(domain.AccessToken), nil
	}
}

// requestToken performs the client-credentials grant.
func (m *TokenManager) requestToken(ctx context.Context) (domain.AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", m.creds.ClientID)
	form.Set("client_secret", m.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("%w: create request: %v", domain.ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	requestedAt := m.now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("%w: http request: %v", domain.ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("%w: read response: %v", domain.ErrAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.AccessToken{}, fmt.Errorf("%w: HTTP %d: %s", domain.ErrAuth, resp.StatusCode, snippet(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.AccessToken{}, fmt.Errorf("%w: decode token response: %v", domain.ErrAuth, err)
	}
	if tr.AccessToken == "" {
		return domain.AccessToken{}, fmt.Errorf("%w: empty access_token in response", domain.ErrAuth)
	}

	ttl := DefaultTokenTTL
	if tr.ExpiresIn != nil {
		ttl = time.Duration(*tr.ExpiresIn) * time.Second
	}
	tok := domain.AccessToken{
		Value:     tr.AccessToken,
		ExpiresAt: requestedAt.Add(ttl - TokenExpiryMargin),
	}

	m.logger.InfoContext(ctx, "access token refreshed",
		slog.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

// snippet trims an error body to something safe to log.
func snippet(body []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
