package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

type fakeSource struct {
	offers []json.RawMessage
	err    error
	limits []int
}

func (f *fakeSource) FetchProposals(_ context.Context, limit int) ([]json.RawMessage, error) {
	f.limits = append(f.limits, limit)
	return f.offers, f.err
}

// fakeNormalizer decodes offers shaped as {"id","from","to","price"}.
type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(offers []json.RawMessage) []domain.FreightRecord {
	out := make([]domain.FreightRecord, 0, len(offers))
	for _, raw := range offers {
		var o struct {
			ID    string          `json:"id"`
			From  string          `json:"from"`
			To    string          `json:"to"`
			Price decimal.Decimal `json:"price"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			continue
		}
		out = append(out, domain.FreightRecord{
			FreightID:        o.ID,
			Price:            o.Price,
			LoadingCountry:   o.From,
			UnloadingCountry: o.To,
		})
	}
	return out
}

type fakeCreds struct {
	configured bool
	grantErr   error
	granted    *bool
}

func (f fakeCreds) IsConfigured() bool { return f.configured }

func (f fakeCreds) HasToken() bool { return f.granted != nil && *f.granted }

func (f fakeCreds) Token(context.Context) (domain.AccessToken, error) {
	if f.grantErr != nil {
		return domain.AccessToken{}, f.grantErr
	}
	if f.granted != nil {
		*f.granted = true
	}
	return domain.AccessToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fakeBus struct {
	mu       sync.Mutex
	channels map[string][][]byte
	streams  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{channels: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[channel] = append(b.channels[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

type fakeAudit struct {
	events  []string
	details []map[string]any
	err     error
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	a.details = append(a.details, detail)
	return a.err
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct {
	events []string
	titles []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, title, _ string) error {
	n.events = append(n.events, event)
	n.titles = append(n.titles, title)
	return errors.New("delivery failed")
}

func offer(id, from, to string, price int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"from":%q,"to":%q,"price":%d}`, id, from, to, price))
}

func endToEndOffers() []json.RawMessage {
	return []json.RawMessage{
		offer("1", "PL", "DE", 80),
		offer("2", "PL", "DE", 100),
		offer("3", "PL", "DE", 160),
		offer("4", "ES", "IT", 90),
		offer("5", "ES", "IT", 95),
	}
}

func testConfig() AnalysisConfig {
	return AnalysisConfig{
		ListingLimit:   100,
		AnalyzeLimit:   200,
		RouteLimit:     500,
		ListingPreview: 2,
		TopN:           10,
		SampleSize:     3,
	}
}

func newTestService(src *fakeSource, creds fakeCreds) *AnalysisService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAnalysisService(src, fakeNormalizer{}, creds, testConfig(), logger)
}

func TestStatus(t *testing.T) {
	granted := false
	svc := newTestService(&fakeSource{}, fakeCreds{configured: true, granted: &granted})
	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.True(t, st.HasToken)
	assert.False(t, st.Timestamp.IsZero())
	assert.Equal(t, []string{"TRANSEU_API_KEY", "TRANSEU_CLIENT_ID", "TRANSEU_CLIENT_SECRET"}, st.RequiredVars)
}

func TestStatusNotConfigured(t *testing.T) {
	svc := newTestService(&fakeSource{}, fakeCreds{grantErr: errors.New("must not be called")})
	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Configured)
	assert.False(t, st.HasToken)
}

func TestStatusRejectedCredentials(t *testing.T) {
	svc := newTestService(&fakeSource{}, fakeCreds{configured: true, grantErr: domain.ErrAuth})
	st, err := svc.Status(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.True(t, st.Configured)
}

func TestFreightsListing(t *testing.T) {
	src := &fakeSource{offers: endToEndOffers()}
	svc := newTestService(src, fakeCreds{configured: true})

	listing, err := svc.Freights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{100}, src.limits)
	assert.Len(t, listing.Freights, 2)
	assert.Equal(t, 5, listing.TotalCount)
	assert.Equal(t, 5, listing.Summary.TotalFreights)
	assert.Equal(t, 2, listing.Summary.UniqueRoutes)
	assert.True(t, decimal.NewFromInt(105).Equal(listing.Summary.AvgPrice))
}

func TestFreightsEmptyListing(t *testing.T) {
	svc := newTestService(&fakeSource{}, fakeCreds{configured: true})

	listing, err := svc.Freights(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, listing.Freights)
	assert.Zero(t, listing.TotalCount)
	assert.True(t, listing.Summary.AvgPrice.IsZero())
}

func TestNotConfigured(t *testing.T) {
	src := &fakeSource{offers: endToEndOffers()}
	svc := newTestService(src, fakeCreds{})

	_, err := svc.Freights(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = svc.Analyze(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = svc.RouteDetail(context.Background(), "PL-DE")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.Empty(t, src.limits)
}

func TestFetchErrorPropagates(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("transeu: %w", domain.ErrFetch)}
	svc := newTestService(src, fakeCreds{configured: true})

	_, err := svc.Analyze(context.Background())
	assert.ErrorIs(t, err, domain.ErrFetch)
}

func TestAnalyze(t *testing.T) {
	src := &fakeSource{offers: endToEndOffers()}
	bus := newFakeBus()
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := newTestService(src, fakeCreds{configured: true}).
		WithSignalBus(bus).
		WithAudit(audit).
		WithNotifier(notifier).
		WithClock(func() time.Time { return fixed })

	report, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{200}, src.limits)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, fixed, report.GeneratedAt)
	require.Len(t, report.Opportunities, 1)
	assert.Equal(t, "PL-DE", report.Opportunities[0].Route)
	assert.Len(t, report.Sample, 3)
	assert.Equal(t, 5, report.Summary.TotalFreights)
	assert.Equal(t, 2, report.Summary.UniqueRoutes)
	assert.Equal(t, 1, report.Summary.OpportunitiesFound)
	assert.True(t, decimal.RequireFromString("0.706").Equal(report.Summary.AvgVolatility))

	require.Len(t, bus.channels[domain.ChannelOpportunities], 1)
	require.Len(t, bus.streams[domain.StreamScans], 1)
	var ev ScanEvent
	require.NoError(t, json.Unmarshal(bus.channels[domain.ChannelOpportunities][0], &ev))
	assert.Equal(t, report.RunID, ev.RunID)
	assert.Equal(t, 1, ev.Summary.OpportunitiesFound)

	assert.Equal(t, []string{"analysis.completed"}, audit.events)
	assert.Equal(t, report.RunID, audit.details[0]["run_id"])
	assert.NotContains(t, audit.details[0], "price")

	// Notifier failures are swallowed.
	assert.Equal(t, []string{"opportunity_detected"}, notifier.events)
	assert.Equal(t, "1 freight arbitrage opportunities", notifier.titles[0])
}

func TestAnalyzeNoOpportunitiesSkipsNotify(t *testing.T) {
	src := &fakeSource{offers: []json.RawMessage{offer("1", "ES", "IT", 90), offer("2", "ES", "IT", 95)}}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{err: errors.New("db down")}
	svc := newTestService(src, fakeCreds{configured: true}).WithNotifier(notifier).WithAudit(audit)

	report, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report.Opportunities)
	assert.Empty(t, report.Opportunities)
	assert.True(t, report.Summary.AvgVolatility.IsZero())
	assert.Empty(t, notifier.events)
	assert.Len(t, audit.events, 1)
}

func TestAnalyzeNoData(t *testing.T) {
	src := &fakeSource{offers: []json.RawMessage{json.RawMessage(`"junk"`)}}
	svc := newTestService(src, fakeCreds{configured: true})

	_, err := svc.Analyze(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestRouteDetail(t *testing.T) {
	src := &fakeSource{offers: endToEndOffers()}
	svc := newTestService(src, fakeCreds{configured: true})

	detail, err := svc.RouteDetail(context.Background(), "pl-de")
	require.NoError(t, err)
	assert.Equal(t, []int{500}, src.limits)
	assert.Equal(t, "PL-DE", detail.Route)
	assert.Len(t, detail.Freights, 3)
	assert.Equal(t, 3, detail.Statistics.Count)
	assert.True(t, decimal.NewFromInt(80).Equal(detail.Statistics.PriceSpread))
	assert.True(t, decimal.RequireFromString("113.33").Equal(detail.Statistics.AvgPrice))

	rs := detail.RouteStatistics
	assert.Equal(t, "PL-DE", rs.Route)
	assert.Equal(t, 3, rs.PriceCount)
	assert.True(t, decimal.RequireFromString("113.33").Equal(rs.PriceMean))
	assert.True(t, decimal.RequireFromString("0.706").Equal(rs.PriceVolatility))

	_, err = svc.RouteDetail(context.Background(), "FR-BE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
