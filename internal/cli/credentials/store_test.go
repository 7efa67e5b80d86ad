package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	store, err := NewStore()
	require.NoError(t, err)
	return store, tmpDir
}

func TestContextIsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		expected  bool
	}{
		{
			name:      "expired in past",
			expiresAt: time.Now().Add(-1 * time.Hour),
			expected:  true,
		},
		{
			name:      "expires soon (within 60s)",
			expiresAt: time.Now().Add(30 * time.Second),
			expected:  true,
		},
		{
			name:      "not expired",
			expiresAt: time.Now().Add(2 * time.Hour),
			expected:  false,
		},
		{
			name:      "no expiry",
			expiresAt: time.Time{},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &Context{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expected, ctx.IsExpired())
		})
	}
}

func TestStoreOperations(t *testing.T) {
	store, tmpDir := newTestStore(t)

	assert.Equal(t, filepath.Join(tmpDir, "nfs4state", FileName), store.ConfigPath())

	_, err := store.GetCurrentContext()
	assert.ErrorIs(t, err, ErrNoCurrentContext)
	assert.Empty(t, store.ListContexts())

	require.NoError(t, store.SetContext("default", &Context{
		ServerURL: "http://localhost:8080",
		Subject:   "ops",
		Role:      "admin",
		Token:     "token1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.UseContext("default"))

	current, err := store.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", current.ServerURL)
	assert.True(t, current.HasToken())

	require.NoError(t, store.SetContext("production", &Context{ServerURL: "http://production:8080"}))
	assert.Equal(t, []string{"default", "production"}, store.ListContexts())

	require.NoError(t, store.UseContext("production"))
	assert.Equal(t, "production", store.GetCurrentContextName())

	// A second store sees what the first saved.
	reopened, err := NewStore()
	require.NoError(t, err)
	assert.Equal(t, "production", reopened.GetCurrentContextName())

	require.NoError(t, store.DeleteContext("production"))
	assert.Empty(t, store.GetCurrentContextName())

	_, err = store.GetContext("nonexistent")
	assert.ErrorIs(t, err, ErrContextNotFound)
	assert.ErrorIs(t, store.UseContext("nonexistent"), ErrContextNotFound)

	info, err := os.Stat(store.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermissions), info.Mode().Perm())
}

func TestStoreClearCurrentContext(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SetContext("default", &Context{
		ServerURL: "http://localhost:8080",
		Token:     "token",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.UseContext("default"))

	require.NoError(t, store.ClearCurrentContext())

	current, err := store.GetCurrentContext()
	require.NoError(t, err)
	assert.False(t, current.HasToken())
	assert.True(t, current.ExpiresAt.IsZero())
	assert.Equal(t, "http://localhost:8080", current.ServerURL)
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SetContext("default", &Context{ServerURL: "http://localhost:8080"}))
	}

	entries, err := os.ReadDir(filepath.Dir(store.ConfigPath()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())
}

func TestStoreCorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path := filepath.Join(tmpDir, "nfs4state", FileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), DirPermissions))
	require.NoError(t, os.WriteFile(path, []byte("contexts: [unclosed"), FilePermissions))

	_, err := NewStore()
	assert.Error(t, err)
}

func TestGenerateContextName(t *testing.T) {
	assert.Equal(t, "localhost-8080", GenerateContextName("http://localhost:8080"))
	assert.Equal(t, "nfs-example-com", GenerateContextName("https://nfs.example.com"))
	assert.Equal(t, "default", GenerateContextName("not a url"))
}
