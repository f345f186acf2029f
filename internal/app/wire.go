package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	s3blob "github.com/alanyoungcy/freightarb/internal/blob/s3"
	"github.com/alanyoungcy/freightarb/internal/cache/redis"
	"github.com/alanyoungcy/freightarb/internal/config"
	"github.com/alanyoungcy/freightarb/internal/crypto"
	"github.com/alanyoungcy/freightarb/internal/domain"
	"github.com/alanyoungcy/freightarb/internal/notify"
	"github.com/alanyoungcy/freightarb/internal/platform/transeu"
	"github.com/alanyoungcy/freightarb/internal/service"
	"github.com/alanyoungcy/freightarb/internal/store/postgres"
)

// Dependencies bundles everything the modes need. The marketplace pieces and
// the analysis service are always present; the infrastructure fields are nil
// when their backend is disabled.
type Dependencies struct {
	// Marketplace
	Tokens   *transeu.TokenManager
	Analysis *service.AnalysisService

	// Postgres
	AuditStore   domain.AuditStore
	AuditArchive domain.AuditArchiveStore

	// Redis
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	ScanHistory domain.ScanHistory

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		audit := postgres.NewAuditStore(pgClient.Pool())
		deps.AuditStore = audit
		deps.AuditArchive = audit
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = bus
		deps.ScanHistory = bus
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, archive runs will fail until it is",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.AuditArchive != nil {
			deps.Archiver = s3blob.NewAuditArchiver(deps.BlobWriter, deps.BlobReader, deps.AuditArchive, deps.AuditStore, logger)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Trans.eu and analysis ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		Raw:           cfg.TransEU.ClientSecret,
		EncryptedPath: cfg.TransEU.EncryptedSecretPath,
		Password:      cfg.TransEU.SecretPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: transeu client secret: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.TransEU.Timeout.Duration}
	deps.Tokens = transeu.NewTokenManager(cfg.TransEU.BaseURL, transeu.Credentials{
		APIKey:       cfg.TransEU.APIKey,
		ClientID:     cfg.TransEU.ClientID,
		ClientSecret: secret,
	}, httpClient, logger)
	if !deps.Tokens.IsConfigured() {
		logger.WarnContext(ctx, "trans.eu credentials missing, analysis endpoints will answer 503",
			slog.Any("required_vars", service.RequiredVars),
		)
	}

	analysis := service.NewAnalysisService(
		transeu.NewClient(cfg.TransEU.BaseURL, deps.Tokens, httpClient, logger),
		transeu.NewNormalizer(logger),
		deps.Tokens,
		service.AnalysisConfig{
			ListingLimit:   cfg.Analysis.ListingLimit,
			AnalyzeLimit:   cfg.Analysis.AnalyzeLimit,
			RouteLimit:     cfg.Analysis.RouteLimit,
			ListingPreview: cfg.Analysis.ListingPreview,
			TopN:           cfg.Analysis.TopN,
			SampleSize:     cfg.Analysis.SampleSize,
		},
		logger,
	)
	if deps.SignalBus != nil {
		analysis.WithSignalBus(deps.SignalBus)
	}
	if deps.AuditStore != nil {
		analysis.WithAudit(deps.AuditStore)
	}
	if deps.Notifier.Enabled() {
		analysis.WithNotifier(deps.Notifier)
	}
	deps.Analysis = analysis

	return deps, cleanup, nil
}
