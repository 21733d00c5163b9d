package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tumblrbackup/pkg/config"
)

var samplePair = &TokenPair{AccessToken: "access-token-1234", AccessTokenSecret: "secret-abcdefgh"}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tumblr_tokens")
	store := NewFileStore(path)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrTokensNotFound)

	require.NoError(t, store.Save(samplePair))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "access-token-1234", onDisk["access_token"])
	assert.Equal(t, "secret-abcdefgh", onDisk["access_token_secret"])

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, samplePair, loaded)

	require.NoError(t, store.Delete())
	assert.ErrorIs(t, store.Delete(), ErrTokensNotFound)
}

func TestFileStoreRejectsIncompletePair(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens"))
	assert.ErrorIs(t, store.Save(&TokenPair{AccessToken: "only"}), ErrInvalidTokens)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokensNotFound)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")
	store := NewEncryptedFileStoreWithPassphrase(path, "correct horse")

	require.NoError(t, store.Save(samplePair))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), samplePair.AccessToken)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, samplePair, loaded)

	_, err = NewEncryptedFileStoreWithPassphrase(path, "wrong").Load()
	assert.Error(t, err)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	path := filepath.Join(t.TempDir(), "tokens.enc")

	first, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(samplePair))

	second, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	loaded, err := second.Load()
	require.NoError(t, err)
	assert.Equal(t, samplePair, loaded)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvAccessToken, "")
	t.Setenv(EnvAccessTokenSecret, "")
	store := NewEnvironmentStore()

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrTokensNotFound)

	t.Setenv(EnvAccessToken, "env-token")
	t.Setenv(EnvAccessTokenSecret, "env-secret")
	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", tokens.AccessToken)
	assert.ErrorIs(t, store.Save(samplePair), ErrStoreUnavailable)
}

func TestManagerFallsBackThroughChain(t *testing.T) {
	primary := NewMockStore(nil)
	secondary := NewMockStore(samplePair)
	m := NewManagerWithStores(primary, secondary)

	tokens, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, samplePair, tokens)
	assert.Equal(t, "mock", m.Source())

	fresh := &TokenPair{AccessToken: "new", AccessTokenSecret: "pair"}
	require.NoError(t, m.Save(fresh))
	assert.Equal(t, 1, primary.Saves())
	assert.Equal(t, 0, secondary.Saves())

	tokens, err = m.Load()
	require.NoError(t, err)
	assert.Equal(t, fresh, tokens)
}

func TestManagerLoadSurfacesStoreErrors(t *testing.T) {
	broken := NewMockStore(nil)
	broken.LoadError = errors.New("disk on fire")

	_, err := NewManagerWithStores(broken).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestManagerDelete(t *testing.T) {
	primary := NewMockStore(samplePair)
	m := NewManagerWithStores(primary, NewEnvironmentStore())

	require.NoError(t, m.Delete())
	_, err := primary.Load()
	assert.ErrorIs(t, err, ErrTokensNotFound)
	assert.NoError(t, m.Delete(), "deleting twice is not an error")
}

func TestNewManagerFromConfig(t *testing.T) {
	t.Setenv(EnvAccessToken, "")
	path := filepath.Join(t.TempDir(), ".tumblr_tokens")

	m, err := NewManager(&config.AuthConfig{Store: config.TokenStoreFile, TokenFile: path})
	require.NoError(t, err)
	assert.Equal(t, "file", m.Primary().Name())

	require.NoError(t, m.Save(samplePair))
	_, err = os.Stat(path)
	assert.NoError(t, err)

	_, err = NewManager(&config.AuthConfig{Store: "vault"})
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", Mask("short"))
	assert.Equal(t, "acce...1234", Mask("access-token-1234"))
}
