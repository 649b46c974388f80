package auth

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coshub/models"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Get()
	assert.False(t, ok)

	require.NoError(t, store.Set(validCreds()))
	got, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, validCreds(), got)

	require.NoError(t, store.Clear())
	_, ok = store.Get()
	assert.False(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, ".auth")

	_, ok := store.Get()
	assert.False(t, ok)

	require.NoError(t, store.Set(validCreds()))
	got, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, validCreds(), got)

	// a second store over the same fs sees the same pair
	again := NewFileStore(fs, ".auth")
	got, ok = again.Get()
	require.True(t, ok)
	assert.Equal(t, validCreds(), got)

	require.NoError(t, store.Clear())
	_, ok = store.Get()
	assert.False(t, ok)

	// clearing an already-empty store is fine
	require.NoError(t, store.Clear())
}

func TestFileStoreIgnoresCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ".auth/twitter-cookies.json", []byte("{broken"), 0600))

	_, ok := NewFileStore(fs, ".auth").Get()
	assert.False(t, ok)
}

func TestFileStoreRequiresBothTokens(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, ".auth")
	require.NoError(t, store.Set(models.Credentials{AuthToken: "only-auth-token"}))

	_, ok := store.Get()
	assert.False(t, ok, "a partial pair does not resolve")
}
