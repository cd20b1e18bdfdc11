package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browser-bridge/bridge/internal/db"
	"github.com/browser-bridge/bridge/internal/model"
)

func newTestRepo(t *testing.T) (*JournalRepository, *sql.DB) {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	return NewJournalRepository(testDB), testDB
}

func TestJournalRecent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Open(ctx, fmt.Sprintf("conn-%d", i%2), time.Now())
		require.NoError(t, err)
	}

	all, err := repo.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Greater(t, all[0].ID, all[4].ID)

	limited, err := repo.Recent(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	filtered, err := repo.Recent(ctx, "conn-1", 10)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
	for _, e := range filtered {
		assert.Equal(t, "conn-1", e.ConnectionID)
	}

	none, err := repo.Recent(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestJournalMissingEntry(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, model.ErrJournalEntryNotFound)

	err = repo.Close(ctx, 42, time.Now(), 0, "", "peer")
	assert.ErrorIs(t, err, model.ErrJournalEntryNotFound)
}

func TestJournalCloseDangling(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.Open(ctx, "a", time.Now())
	require.NoError(t, err)
	_, err = repo.Open(ctx, "b", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Close(ctx, a, time.Now(), 3, "console", "peer"))

	open, err := repo.CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	n, err := repo.CloseDangling(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err = repo.CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, open)

	entries, err := repo.Recent(ctx, "b", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "restart", entries[0].CloseReason)

	first, err := repo.GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "peer", first.CloseReason)
}
