package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/memevault/memevault/domain/meme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_MissingFileIsEmpty(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), LedgerFilename))

	set, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())

	ok, err := l.Contains(context.Background(), "/a.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_AddAllPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", LedgerFilename)
	l := NewLedger(path)

	require.NoError(t, l.AddAll(ctx, []string{"/b.png", "/a.png"}))
	require.NoError(t, l.AddAll(ctx, []string{"/a.png", "/c.png"}))

	reopened := NewLedger(path)
	set, err := reopened.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.png", "/b.png", "/c.png"}, set.Slice())
}

func TestLedger_AddAllEmptyWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), LedgerFilename)
	require.NoError(t, NewLedger(path).AddAll(context.Background(), nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLedger_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), LedgerFilename)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewLedger(path).All(context.Background())
	require.ErrorIs(t, err, meme.ErrStorage)
}

func TestLedger_ConcurrentAddAll(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LedgerFilename)
	l := NewLedger(path)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := filepath.ToSlash(filepath.Join("/memes", string(rune('a'+i))+".png"))
			assert.NoError(t, l.AddAll(ctx, []string{id}))
		}(i)
	}
	wg.Wait()

	set, err := l.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, set.Len())
}
