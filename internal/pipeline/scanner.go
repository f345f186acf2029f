package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/freightarb/internal/domain"
	"github.com/alanyoungcy/freightarb/internal/notify"
)

// ScanLockKey is the lock that keeps replicas from scanning concurrently.
const ScanLockKey = "freightarb:scan"

// Analyzer runs one full analysis.
type Analyzer interface {
	Analyze(ctx context.Context) (domain.AnalysisReport, error)
}

// EventNotifier delivers filtered alerts.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Scanner runs the analysis periodically. With a LockManager, a tick only
// scans when this replica obtains ScanLockKey; the lock is kept until it
// expires so that other replicas skip the same interval.
type Scanner struct {
	analyzer Analyzer
	locks    domain.LockManager
	notifier EventNotifier
	interval time.Duration
	logger   *slog.Logger
}

// NewScanner creates a Scanner. locks and notifier may be nil.
func NewScanner(analyzer Analyzer, locks domain.LockManager, notifier EventNotifier, interval time.Duration, logger *slog.Logger) *Scanner {
	return &Scanner{
		analyzer: analyzer,
		locks:    locks,
		notifier: notifier,
		interval: interval,
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// lockTTL is slightly shorter than the interval so the holder can take the
// lock again on its next tick.
func (s *Scanner) lockTTL() time.Duration {
	return s.interval * 9 / 10
}

// Run performs a single scan. A lock held by another replica is not an
// error.
func (s *Scanner) Run(ctx context.Context) error {
	var unlock func()
	if s.locks != nil {
		var err error
		unlock, err = s.locks.Acquire(ctx, ScanLockKey, s.lockTTL())
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "scan skipped, lock held elsewhere")
			return nil
		}
		if err != nil {
			return fmt.Errorf("scanner: lock: %w", err)
		}
	}

	start := time.Now()
	report, err := s.analyzer.Analyze(ctx)
	if err != nil {
		if unlock != nil {
			unlock()
		}
		s.alertFailure(ctx, err)
		return fmt.Errorf("scanner: %w", err)
	}

	s.logger.InfoContext(ctx, "scan completed",
		slog.String("run_id", report.RunID),
		slog.Int("opportunities", report.Summary.OpportunitiesFound),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// alertFailure notifies scan_failed. Missing credentials and an empty
// marketplace are expected states and stay silent.
func (s *Scanner) alertFailure(ctx context.Context, scanErr error) {
	if s.notifier == nil || ctx.Err() != nil {
		return
	}
	if errors.Is(scanErr, domain.ErrNotConfigured) || errors.Is(scanErr, domain.ErrNoData) {
		return
	}
	if err := s.notifier.Notify(ctx, notify.EventScanFailed, "Freight scan failed", scanErr.Error()); err != nil {
		s.logger.WarnContext(ctx, "notify scan failure", slog.String("error", err.Error()))
	}
}

// RunLoop scans immediately and then on every interval until ctx is done.
func (s *Scanner) RunLoop(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scanner: interval must be positive, got %s", s.interval)
	}
	s.logger.Info("scanner started", slog.Duration("interval", s.interval))

	if err := s.Run(ctx); err != nil {
		s.logger.Error("scan failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("scan failed", slog.String("error", err.Error()))
			}
		}
	}
}
