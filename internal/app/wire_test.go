package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/freightarb/internal/config"
	"github.com/alanyoungcy/freightarb/internal/crypto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireWithoutBackends(t *testing.T) {
	cfg := config.Defaults()

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Analysis)
	assert.False(t, deps.Tokens.IsConfigured())
	assert.Nil(t, deps.AuditStore)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Archiver)
	assert.False(t, deps.Notifier.Enabled())
}

func TestWireResolvesSealedSecret(t *testing.T) {
	sealed, err := crypto.EncryptSecret("client-secret", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	cfg := config.Defaults()
	cfg.TransEU.APIKey = "key"
	cfg.TransEU.ClientID = "id"
	cfg.TransEU.EncryptedSecretPath = path
	cfg.TransEU.SecretPassword = "pw"
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/hook"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, deps.Tokens.IsConfigured())
	assert.True(t, deps.Notifier.Enabled())

	cfg.TransEU.SecretPassword = "wrong"
	_, _, err = Wire(context.Background(), &cfg, testLogger())
	assert.Error(t, err)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"

	a := New(&cfg, testLogger())
	defer a.Close()
	err := a.Run(context.Background())
	assert.ErrorContains(t, err, "unsupported mode")
}
