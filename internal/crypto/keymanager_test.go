package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	sealed, err := EncryptSecret("client-secret-value", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "client-secret-value")

	got, err := DecryptSecret(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "client-secret-value", got)

	_, err = DecryptSecret(sealed, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestEncryptSecretRejectsEmptyInput(t *testing.T) {
	_, err := EncryptSecret("secret", "")
	require.Error(t, err)

	_, err = EncryptSecret("  ", "pw")
	require.Error(t, err)
}

func TestDecryptSecretRejectsUnknownVersion(t *testing.T) {
	_, err := DecryptSecret([]byte(`{"version":2,"salt":"","nonce":"","ciphertext":""}`), "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version 2")
}

func TestLoadSecret(t *testing.T) {
	sealed, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	t.Run("raw wins", func(t *testing.T) {
		got, err := LoadSecret(SecretConfig{Raw: "raw", EncryptedPath: path, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "raw", got)
	})

	t.Run("encrypted file", func(t *testing.T) {
		got, err := LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "from-file", got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		got, err := LoadSecret(SecretConfig{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSecret(SecretConfig{EncryptedPath: filepath.Join(t.TempDir(), "nope"), Password: "pw"})
		require.Error(t, err)
	})
}
