package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

func TestBackends(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	backends := map[string]backend{
		"sqlite": db,
		"file":   NewFileBackend(afero.NewMemMapFs(), "/data"),
	}

	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := b.Load(ctx, "sessions")
			require.NoError(t, err)
			assert.Nil(t, got, "missing key loads as nil")

			require.NoError(t, b.Save(ctx, "sessions", []byte(`[1]`)))
			require.NoError(t, b.Save(ctx, "sessions", []byte(`[1,2]`)))

			got, err = b.Load(ctx, "sessions")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))
		})
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Save(context.Background(), "k", []byte("v")))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	versions, err := db.appliedVersions()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	got, err := db.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestLoadMissingKey(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Load(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileBackendRejectsBadKeys(t *testing.T) {
	b := NewFileBackend(afero.NewMemMapFs(), "/data")
	tests := []string{"", "../escape", "a/b", ".."}
	for _, key := range tests {
		err := b.Save(context.Background(), key, []byte("x"))
		var se *StorageError
		assert.ErrorAs(t, err, &se, key)
	}

	require.NoError(t, b.Save(context.Background(), "ok", []byte("x")))
	require.NoError(t, b.Delete(context.Background(), "ok"))
	require.NoError(t, b.Delete(context.Background(), "ok"))
	exists, err := afero.Exists(b.fs, "/data/ok.json")
	require.NoError(t, err)
	assert.False(t, exists)
}
