package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Record(ctx, Entry{
		Kind:        "plate",
		Input:       "30A-12345",
		SiteResults: "stp=success",
	}))
	require.NoError(t, store.Record(ctx, Entry{
		Kind:        "title",
		Input:       "CT 01234",
		SiteResults: "stp=permanent failure; dsnc=success",
		Note:        "two rows matched",
	}))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	require.Equal(t, "title", entries[0].Kind)
	require.Equal(t, "CT 01234", entries[0].Input)
	require.Equal(t, "two rows matched", entries[0].Note)
	require.Equal(t, "plate", entries[1].Kind)
	require.WithinDuration(t, time.Now(), entries[0].CreatedAt, time.Minute)
}

func TestRecentLimit(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, Entry{Kind: "plate", Input: "x", SiteResults: "stp=success"}))
	}
	entries, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}
