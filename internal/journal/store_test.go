package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eprints2bags/internal/journal"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	when := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"10", "11", "12"} {
		_, err := store.Record(ctx, journal.Entry{
			RunID:        "run-1",
			Identifier:   id,
			ArtifactPath: "/out/" + id + ".tgz",
			SHA256:       "abc",
			Bytes:        int64(100 * (i + 1)),
			Documents:    i,
			CreatedAt:    when,
		})
		require.NoError(t, err)
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "12", recent[0].Identifier)
	assert.Equal(t, "11", recent[1].Identifier)
	assert.EqualValues(t, 300, recent[0].Bytes)
	assert.Equal(t, 2, recent[0].Documents)
	assert.True(t, when.Equal(recent[0].CreatedAt))

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordWithoutChecksum(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, journal.Entry{RunID: "run-2", Identifier: "7", ArtifactPath: "/out/7"})
	require.NoError(t, err)
	_, err = store.Record(ctx, journal.Entry{RunID: "run-3", Identifier: "7", ArtifactPath: "/out/7.tgz", SHA256: "def"})
	require.NoError(t, err)

	entries, err := store.ForIdentifier(ctx, "7")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "def", entries[0].SHA256)
	assert.Empty(t, entries[1].SHA256)
	assert.False(t, entries[1].CreatedAt.IsZero())
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.Open(path)
	require.NoError(t, err)
	_, err = store.Record(context.Background(), journal.Entry{RunID: "r", Identifier: "1", ArtifactPath: "/out/1.tgz"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = journal.Open(path)
	require.NoError(t, err)
	defer store.Close()
	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, path, store.Path())
}
