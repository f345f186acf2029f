package transeu

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

const proposalsPath = "/ext/freights-api/v1/freight-proposals"

// proposalFilter restricts the listing to live, published proposals.
var proposalFilter = mustJSON(struct {
	IsArchived bool   `json:"is_archived"`
	Status     string `json:"proposal_request_status"`
}{IsArchived: false, Status: "published"})

// TokenSource hands out bearer tokens for marketplace calls.
type TokenSource interface {
	Token(ctx context.Context) (domain.AccessToken, error)
	IsConfigured() bool
	APIKey() string
}

// Client is the REST client for the freight-proposals listing.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a listing client. baseURL is the API root, e.g.
// "https://api.platform.trans.eu".
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "transeu_client")),
	}
}

// FetchProposals returns up to limit raw proposals sorted by loading date.
// A response that is valid JSON but not an array yields an empty slice. The
// call is made once; failures are not retried.
func (c *Client) FetchProposals(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("transeu: fetch proposals: limit must be positive, got %d", limit)
	}
	if !c.tokens.IsConfigured() {
		return nil, fmt.Errorf("transeu: fetch proposals: %w: %w", domain.ErrAuth, domain.ErrNotConfigured)
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("transeu: fetch proposals: %w", err)
	}

	params := url.Values{}
	params.Set("sortBy", "loading_date")
	params.Set("order", "ASC")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("filter", proposalFilter)

	body, err := c.doGet(ctx, proposalsPath+"?"+params.Encode(), tok)
	if err != nil {
		return nil, fmt.Errorf("transeu: fetch proposals: %w: %w", domain.ErrFetch, err)
	}

	offers, err := decodeOffers(body)
	if err != nil {
		return nil, fmt.Errorf("transeu: fetch proposals: %w: %w", domain.ErrFetch, err)
	}

	c.logger.DebugContext(ctx, "fetched freight proposals",
		slog.Int("limit", limit),
		slog.Int("count", len(offers)),
	)
	return offers, nil
}

func (c *Client) doGet(ctx context.Context, path string, tok domain.AccessToken) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Api-key", c.tokens.APIKey())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx HTTP status codes to errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnauthorized, statusCode, snippet(body))
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRateLimited, statusCode, snippet(body))
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, snippet(body))
	}
}

// decodeOffers splits a listing body into raw proposals.
func decodeOffers(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("decode proposals: malformed JSON payload")
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []json.RawMessage{}, nil
	}

	var offers []json.RawMessage
	if err := json.Unmarshal(trimmed, &offers); err != nil {
		return nil, fmt.Errorf("decode proposals: %w", err)
	}
	if offers == nil {
		offers = []json.RawMessage{}
	}
	return offers, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
