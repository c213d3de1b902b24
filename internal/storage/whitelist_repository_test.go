package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhitelistAddRemoveContains(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhitelistRepository(db)
	require.NoError(t, repo.MigrateTable())

	ctx := context.Background()

	ok, err := repo.Contains(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Add(ctx, 42, 1, "manually reviewed"))

	ok, err = repo.Contains(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	// Double add is a conflict, not a silent duplicate.
	err = repo.Add(ctx, 42, 2, "")
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, repo.Remove(ctx, 42))
	ok, err = repo.Contains(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	err = repo.Remove(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
