package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestAppendEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("success entry is recorded", func(t *testing.T) {
		store := newTestStore(t)

		err := store.AppendEntry(ctx, Entry{
			BookID:         "B1",
			Title:          "The Idiot",
			Status:         StatusSuccess,
			AttemptCount:   1,
			PlatformPostID: "media-123",
		})
		require.NoError(t, err)

		ok, err := store.HasSucceeded(ctx, "B1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("second success for same book is rejected", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "B1", Status: StatusSuccess}))

		err := store.AppendEntry(ctx, Entry{BookID: "B1", Status: StatusSuccess})
		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrStorage)

		// The duplicate write must not corrupt the history
		ok, err := store.HasSucceeded(ctx, "B1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("failed entries may repeat", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "B2", Status: StatusFailed, ErrorKind: "transient_network", AttemptCount: 1}))
		require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "B2", Status: StatusFailed, ErrorKind: "transient_network", AttemptCount: 2}))

		n, err := store.FailedAttempts(ctx, "B2")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ok, err := store.HasSucceeded(ctx, "B2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("success after failures still allowed", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "B3", Status: StatusFailed, AttemptCount: 1}))
		require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "B3", Status: StatusSuccess, AttemptCount: 2}))

		ok, err := store.HasSucceeded(ctx, "B3")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestExcludedIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "posted", Status: StatusSuccess}))
	require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "rejected", Status: StatusFailed, ErrorKind: "permanent_rejected", Terminal: true}))
	require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "retryable", Status: StatusFailed, ErrorKind: "transient_network"}))

	excluded, err := store.ExcludedIDs(ctx)
	require.NoError(t, err)

	assert.True(t, excluded["posted"])
	assert.True(t, excluded["rejected"])
	assert.False(t, excluded["retryable"])
}

func TestRecentAndTerminalEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "a", Status: StatusSuccess, PostedAt: base}))
	require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "b", Status: StatusFailed, ErrorKind: "unknown", Terminal: true, AttemptCount: 3, PostedAt: base.Add(time.Hour)}))
	require.NoError(t, store.AppendEntry(ctx, Entry{BookID: "c", Status: StatusFailed, ErrorKind: "rate_limited", PostedAt: base.Add(2 * time.Hour)}))

	recent, err := store.RecentEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].BookID)
	assert.Equal(t, "b", recent[1].BookID)
	assert.True(t, recent[1].Terminal)

	terminal, err := store.TerminalEntries(ctx)
	require.NoError(t, err)
	require.Len(t, terminal, 1)
	assert.Equal(t, "b", terminal[0].BookID)
	assert.Equal(t, 3, terminal[0].AttemptCount)

	success, err := store.CountByStatus(ctx, StatusSuccess)
	require.NoError(t, err)
	assert.EqualValues(t, 1, success)

	failed, err := store.CountByStatus(ctx, StatusFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 2, failed)
}

func TestNewStore(t *testing.T) {
	t.Run("creates directory and database", func(t *testing.T) {
		ctx := context.Background()
		dbPath := filepath.Join(t.TempDir(), "subdir", "test.db")

		store, err := NewStore(ctx, dbPath)
		require.NoError(t, err)
		defer store.Close()

		var result int
		err = store.QueryRowContext(ctx, "SELECT 1").Scan(&result)
		assert.NoError(t, err)
		assert.Equal(t, 1, result)
	})

	t.Run("sets WAL mode", func(t *testing.T) {
		ctx := context.Background()
		store, err := NewStore(ctx, filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		defer store.Close()

		var mode string
		err = store.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
		assert.NoError(t, err)
		assert.Equal(t, "wal", mode)
	})

	t.Run("migrate is idempotent", func(t *testing.T) {
		ctx := context.Background()
		store, err := NewStore(ctx, filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Migrate(ctx))
		require.NoError(t, store.Migrate(ctx))
	})
}
