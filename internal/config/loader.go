package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. A missing file is not an error so the service can run from the
// environment alone. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set (i.e. not empty). The
// bare TRANSEU_* and PORT names are honoured first so that FREIGHTARB_* wins
// when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── Trans.eu ──
	setStr(&cfg.TransEU.APIKey, "TRANSEU_API_KEY")
	setStr(&cfg.TransEU.ClientID, "TRANSEU_CLIENT_ID")
	setStr(&cfg.TransEU.ClientSecret, "TRANSEU_CLIENT_SECRET")
	setStr(&cfg.TransEU.BaseURL, "FREIGHTARB_TRANSEU_BASE_URL")
	setStr(&cfg.TransEU.APIKey, "FREIGHTARB_TRANSEU_API_KEY")
	setStr(&cfg.TransEU.ClientID, "FREIGHTARB_TRANSEU_CLIENT_ID")
	setStr(&cfg.TransEU.ClientSecret, "FREIGHTARB_TRANSEU_CLIENT_SECRET")
	setStr(&cfg.TransEU.EncryptedSecretPath, "FREIGHTARB_TRANSEU_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.TransEU.SecretPassword, "FREIGHTARB_TRANSEU_SECRET_PASSWORD")
	setDuration(&cfg.TransEU.Timeout, "FREIGHTARB_TRANSEU_TIMEOUT")

	// ── Analysis ──
	setInt(&cfg.Analysis.ListingLimit, "FREIGHTARB_ANALYSIS_LISTING_LIMIT")
	setInt(&cfg.Analysis.AnalyzeLimit, "FREIGHTARB_ANALYSIS_ANALYZE_LIMIT")
	setInt(&cfg.Analysis.RouteLimit, "FREIGHTARB_ANALYSIS_ROUTE_LIMIT")
	setInt(&cfg.Analysis.TopN, "FREIGHTARB_ANALYSIS_TOP_N")

	// ── Scanner ──
	setBool(&cfg.Scanner.Enabled, "FREIGHTARB_SCANNER_ENABLED")
	setDuration(&cfg.Scanner.Interval, "FREIGHTARB_SCANNER_INTERVAL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FREIGHTARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FREIGHTARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FREIGHTARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FREIGHTARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FREIGHTARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FREIGHTARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FREIGHTARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FREIGHTARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FREIGHTARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FREIGHTARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FREIGHTARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FREIGHTARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FREIGHTARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FREIGHTARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FREIGHTARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FREIGHTARB_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "FREIGHTARB_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "FREIGHTARB_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FREIGHTARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FREIGHTARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FREIGHTARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "FREIGHTARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FREIGHTARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FREIGHTARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FREIGHTARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FREIGHTARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "FREIGHTARB_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "FREIGHTARB_ARCHIVE_CRON")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setBool(&cfg.Server.Enabled, "FREIGHTARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FREIGHTARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FREIGHTARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FREIGHTARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "FREIGHTARB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "FREIGHTARB_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FREIGHTARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FREIGHTARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FREIGHTARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FREIGHTARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FREIGHTARB_MODE")
	setStr(&cfg.LogLevel, "FREIGHTARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
