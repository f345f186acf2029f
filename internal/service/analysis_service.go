package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/alanyoungcy/freightarb/internal/arbitrage"
	"github.com/alanyoungcy/freightarb/internal/domain"
	"github.com/alanyoungcy/freightarb/internal/notify"
)

// RequiredVars lists the environment variables the marketplace integration
// needs before it is considered configured.
var RequiredVars = []string{"TRANSEU_API_KEY", "TRANSEU_CLIENT_ID", "TRANSEU_CLIENT_SECRET"}

// ProposalSource fetches raw freight offers from the marketplace.
type ProposalSource interface {
	FetchProposals(ctx context.Context, limit int) ([]json.RawMessage, error)
}

// RecordNormalizer turns raw offers into freight records.
type RecordNormalizer interface {
	Normalize(offers []json.RawMessage) []domain.FreightRecord
}

// CredentialStatus reports on the marketplace credentials.
type CredentialStatus interface {
	IsConfigured() bool
	HasToken() bool
	Token(ctx context.Context) (domain.AccessToken, error)
}

// EventNotifier delivers filtered alerts.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// AnalysisConfig sizes the marketplace requests and the returned previews.
type AnalysisConfig struct {
	ListingLimit   int
	AnalyzeLimit   int
	RouteLimit     int
	ListingPreview int
	TopN           int
	SampleSize     int
}

// ScanEvent is published on domain.ChannelOpportunities after every analysis.
type ScanEvent struct {
	Event         string                   `json:"event"`
	RunID         string                   `json:"run_id"`
	GeneratedAt   time.Time                `json:"generated_at"`
	Summary       domain.AnalysisSummary   `json:"summary"`
	Opportunities []domain.RouteStatistics `json:"opportunities"`
}

// AnalysisService runs fetch, normalize and detect on demand. Offers are
// never cached between calls.
type AnalysisService struct {
	source     ProposalSource
	normalizer RecordNormalizer
	creds      CredentialStatus
	cfg        AnalysisConfig
	logger     *slog.Logger
	now        func() time.Time

	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
}

// NewAnalysisService creates an AnalysisService.
func NewAnalysisService(
	source ProposalSource,
	normalizer RecordNormalizer,
	creds CredentialStatus,
	cfg AnalysisConfig,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		source:     source,
		normalizer: normalizer,
		creds:      creds,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "analysis_service")),
		now:        time.Now,
	}
}

// WithSignalBus publishes scan events on bus after each analysis.
func (s *AnalysisService) WithSignalBus(bus domain.SignalBus) *AnalysisService {
	s.bus = bus
	return s
}

// WithAudit records each completed analysis in the audit log.
func (s *AnalysisService) WithAudit(audit domain.AuditStore) *AnalysisService {
	s.audit = audit
	return s
}

// WithNotifier alerts on detected opportunities.
func (s *AnalysisService) WithNotifier(n EventNotifier) *AnalysisService {
	s.notifier = n
	return s
}

// WithClock overrides the time source.
func (s *AnalysisService) WithClock(now func() time.Time) *AnalysisService {
	s.now = now
	return s
}

// Status reports whether credentials are present. When they are, a token is
// obtained (or reused) to prove the marketplace accepts them; a failed grant
// is returned as an error.
func (s *AnalysisService) Status(ctx context.Context) (domain.StatusReport, error) {
	report := domain.StatusReport{
		Configured:   s.creds.IsConfigured(),
		RequiredVars: append([]string(nil), RequiredVars...),
		Timestamp:    s.now().UTC(),
	}
	if !report.Configured {
		return report, nil
	}
	if _, err := s.creds.Token(ctx); err != nil {
		return report, fmt.Errorf("analysis: status: %w", err)
	}
	report.HasToken = s.creds.HasToken()
	return report, nil
}

// records fetches up to limit offers and normalizes them.
func (s *AnalysisService) records(ctx context.Context, limit int) ([]domain.FreightRecord, error) {
	if !s.creds.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}
	offers, err := s.source.FetchProposals(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.normalizer.Normalize(offers), nil
}

// Freights returns a preview of the current marketplace listing.
func (s *AnalysisService) Freights(ctx context.Context) (domain.FreightListing, error) {
	records, err := s.records(ctx, s.cfg.ListingLimit)
	if err != nil {
		return domain.FreightListing{}, fmt.Errorf("analysis: freights: %w", err)
	}
	return domain.FreightListing{
		Freights:   head(records, s.cfg.ListingPreview),
		TotalCount: len(records),
		Summary: domain.ListingSummary{
			TotalFreights: len(records),
			UniqueRoutes:  arbitrage.UniqueRoutes(records),
			AvgPrice:      arbitrage.AveragePrice(records),
		},
	}, nil
}

// Analyze fetches the listing, detects volatile routes and returns the top
// opportunities. Publishing, auditing and notifying happen afterwards; their
// failures are logged and never returned.
func (s *AnalysisService) Analyze(ctx context.Context) (domain.AnalysisReport, error) {
	records, err := s.records(ctx, s.cfg.AnalyzeLimit)
	if err != nil {
		return domain.AnalysisReport{}, fmt.Errorf("analysis: analyze: %w", err)
	}
	if len(records) == 0 {
		return domain.AnalysisReport{}, fmt.Errorf("analysis: analyze: %w", domain.ErrNoData)
	}

	opps := arbitrage.Detect(records)
	report := domain.AnalysisReport{
		RunID:         uuid.NewString(),
		GeneratedAt:   s.now().UTC(),
		Opportunities: head(opps, s.cfg.TopN),
		Sample:        head(records, s.cfg.SampleSize),
		Summary: domain.AnalysisSummary{
			TotalFreights:      len(records),
			UniqueRoutes:       arbitrage.UniqueRoutes(records),
			OpportunitiesFound: len(opps),
			AvgVolatility:      arbitrage.AverageVolatility(opps),
		},
	}

	s.logger.InfoContext(ctx, "analysis completed",
		slog.String("run_id", report.RunID),
		slog.Int("freights", report.Summary.TotalFreights),
		slog.Int("routes", report.Summary.UniqueRoutes),
		slog.Int("opportunities", report.Summary.OpportunitiesFound),
	)

	s.publish(ctx, report)
	s.record(ctx, report)
	s.alert(ctx, report)
	return report, nil
}

// RouteDetail returns every fetched record on one route, the detector
// statistics of the route and the raw-price summary. A route without offers
// yields domain.ErrNotFound.
func (s *AnalysisService) RouteDetail(ctx context.Context, code string) (domain.RouteDetail, error) {
	records, err := s.records(ctx, s.cfg.RouteLimit)
	if err != nil {
		return domain.RouteDetail{}, fmt.Errorf("analysis: route %s: %w", code, err)
	}
	stats, err := arbitrage.RouteStatistics(records, code)
	if err != nil {
		return domain.RouteDetail{}, fmt.Errorf("analysis: %w", err)
	}
	onRoute := arbitrage.FilterRoute(records, stats.Route)
	return domain.RouteDetail{
		Route:           stats.Route,
		Freights:        onRoute,
		Statistics:      arbitrage.Summarize(onRoute),
		RouteStatistics: stats,
	}, nil
}

func (s *AnalysisService) publish(ctx context.Context, report domain.AnalysisReport) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ScanEvent{
		Event:         "analysis",
		RunID:         report.RunID,
		GeneratedAt:   report.GeneratedAt,
		Summary:       report.Summary,
		Opportunities: report.Opportunities,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "marshal scan event", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelOpportunities, payload); err != nil {
		s.logger.WarnContext(ctx, "publish scan event", slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamScans, payload); err != nil {
		s.logger.WarnContext(ctx, "append scan stream", slog.String("error", err.Error()))
	}
}

func (s *AnalysisService) record(ctx context.Context, report domain.AnalysisReport) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, "analysis.completed", map[string]any{
		"run_id":              report.RunID,
		"total_freights":      report.Summary.TotalFreights,
		"unique_routes":       report.Summary.UniqueRoutes,
		"opportunities_found": report.Summary.OpportunitiesFound,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit analysis", slog.String("error", err.Error()))
	}
}

func (s *AnalysisService) alert(ctx context.Context, report domain.AnalysisReport) {
	if s.notifier == nil || report.Summary.OpportunitiesFound == 0 {
		return
	}
	title := fmt.Sprintf("%d freight arbitrage opportunities", report.Summary.OpportunitiesFound)
	if err := s.notifier.Notify(ctx, notify.EventOpportunityDetected, title,
		notify.FormatOpportunities(report.Opportunities, 5)); err != nil {
		s.logger.WarnContext(ctx, "notify opportunities", slog.String("error", err.Error()))
	}
}

// head returns at most n leading items; n <= 0 keeps everything.
func head[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
