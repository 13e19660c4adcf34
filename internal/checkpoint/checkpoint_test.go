package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "nested", "state.db"))
	key := Key("/x/chat.db", 0)

	_, ok, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, key, 42))
	got, ok, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), got)
}

func TestSaveNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "state.db"))
	key := Key("/x/chat.db", 7)

	require.NoError(t, s.Save(ctx, key, 100))
	require.NoError(t, s.Save(ctx, key, 60))
	got, _, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)
}

func TestCursorsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Key("/x/chat.db", 0), 9))
	require.NoError(t, s.Close())

	s = openStore(t, path)
	got, ok, err := s.Load(ctx, Key("/x/chat.db", 0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), got)

	_, ok, err = s.Load(ctx, Key("/x/chat.db", 1))
	require.NoError(t, err)
	assert.False(t, ok, "chat filters have separate cursors")
}
