package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/freightarb/internal/pipeline"
	"github.com/alanyoungcy/freightarb/internal/server"
	"github.com/alanyoungcy/freightarb/internal/server/handler"
	"github.com/alanyoungcy/freightarb/internal/server/ws"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take after the
// context is cancelled.
const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP API. The periodic scanner also runs when
// scanner.enabled is set; the audit archiver runs whenever it is wired.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Bool("scanner", a.cfg.Scanner.Enabled),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startJobs(ctx, g, deps, a.cfg.Scanner.Enabled)
	return g.Wait()
}

// ScanMode runs only the background jobs: the periodic scanner and, when
// wired, the audit archiver.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.Duration("interval", a.cfg.Scanner.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startJobs(ctx, g, deps, true)
	return g.Wait()
}

// FullMode runs the HTTP API together with every background job.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startJobs(ctx, g, deps, true)
	return g.Wait()
}

// startJobs builds the pipeline orchestrator. Nothing is started when neither
// the scanner nor the archiver applies.
func (a *App) startJobs(ctx context.Context, g *errgroup.Group, deps *Dependencies, withScanner bool) {
	var scanner *pipeline.Scanner
	if withScanner {
		var notifier pipeline.EventNotifier
		if deps.Notifier.Enabled() {
			notifier = deps.Notifier
		}
		scanner = pipeline.NewScanner(deps.Analysis, deps.LockManager, notifier, a.cfg.Scanner.Interval.Duration, a.logger)
	}

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	}

	if scanner == nil && archiver == nil {
		return
	}
	orch := pipeline.NewOrchestrator(scanner, archiver, a.cfg.Archive.Cron, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer registers the API and, with Redis wired, the WebSocket hub.
// The server is shut down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(),
		Analysis: handler.NewAnalysisHandler(deps.Analysis, a.logger),
	}
	if deps.ScanHistory != nil || deps.AuditStore != nil {
		handlers.History = handler.NewHistoryHandler(deps.ScanHistory, deps.AuditStore, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, deps.ScanHistory, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "ws hub stopped, live updates disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}
