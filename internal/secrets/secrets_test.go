package secrets_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/secrets"
)

func TestGenerateSaveLoadRoundTrip(t *testing.T) {
	s, file, err := secrets.Generate("correct horse battery staple")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, secrets.Save(path, file))

	loaded, err := secrets.Load(path, "correct horse battery staple")
	require.NoError(t, err)

	assert.Equal(t, s.PrivateKey.D, loaded.PrivateKey.D)
	assert.Equal(t, s.PublicKey.N, loaded.PublicKey.N)
	assert.Equal(t, s.EncryptionKey, loaded.EncryptionKey)
	assert.Equal(t, s.ApiKey, loaded.ApiKey)
}

func TestLoadRejectsWrongPassphrase(t *testing.T) {
	_, file, err := secrets.Generate("pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, secrets.Save(path, file))

	_, err = secrets.Load(path, "not-pw")
	assert.ErrorIs(t, err, errs.ErrKeyManagement)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := secrets.Load(filepath.Join(t.TempDir(), "does-not-exist.json"), "pw")
	assert.ErrorIs(t, err, errs.ErrKeyManagement)
}
