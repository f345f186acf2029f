package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.platform.trans.eu", cfg.TransEU.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.TransEU.Timeout.Duration)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[transeu]
client_id = "from-file"
timeout = "5s"

[scanner]
interval = "10m"

[server]
port = 8080
cors_origins = ["https://ops.example.com"]
`), 0o600))

	t.Setenv("TRANSEU_API_KEY", "legacy-key")
	t.Setenv("TRANSEU_CLIENT_SECRET", "legacy-secret")
	t.Setenv("FREIGHTARB_TRANSEU_CLIENT_SECRET", "preferred-secret")
	t.Setenv("PORT", "9000")
	t.Setenv("FREIGHTARB_SERVER_CORS_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	t.Setenv("FREIGHTARB_SCANNER_INTERVAL", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "from-file", cfg.TransEU.ClientID)
	assert.Equal(t, "legacy-key", cfg.TransEU.APIKey)
	assert.Equal(t, "preferred-secret", cfg.TransEU.ClientSecret)
	assert.Equal(t, 5*time.Second, cfg.TransEU.Timeout.Duration)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	// Unparseable overrides leave the file value in place.
	assert.Equal(t, 10*time.Minute, cfg.Scanner.Interval.Duration)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
