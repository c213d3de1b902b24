package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Logger.Level = "ERROR"

	db, err := Initialize(cfg)
	require.NoError(t, err)
	return db
}

func TestAtomicUpdateCreatesAndMutates(t *testing.T) {
	db := newTestDB(t)
	repo := NewViolationRepository(db)
	require.NoError(t, repo.MigrateTable())

	ctx := context.Background()
	key := Key{GroupID: -100, UserID: 42}
	now := time.Now()

	rec, err := repo.AtomicUpdate(ctx, key, models.KindProfile, now, func(rec *models.ViolationRecord) error {
		rec.Count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, models.ActorNone, rec.RestrictedBy)

	rec, err = repo.AtomicUpdate(ctx, key, models.KindProfile, now, func(rec *models.ViolationRecord) error {
		rec.Count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count)

	got, err := repo.Get(ctx, key, models.KindProfile)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
}

func TestGetUnknownKeyIsNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewViolationRepository(db)
	require.NoError(t, repo.MigrateTable())

	_, err := repo.Get(context.Background(), Key{GroupID: -100, UserID: 404}, models.KindProfile)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkRestrictedFiresOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewViolationRepository(db)
	require.NoError(t, repo.MigrateTable())

	ctx := context.Background()
	key := Key{GroupID: -100, UserID: 42}

	_, err := repo.AtomicUpdate(ctx, key, models.KindProfile, time.Now(), func(rec *models.ViolationRecord) error {
		rec.Count = 3
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, repo.MarkRestricted(ctx, key, models.KindProfile, models.ActorSystem))

	// The conditional update fails on an already-restricted row.
	err = repo.MarkRestricted(ctx, key, models.KindProfile, models.ActorAdmin)
	assert.ErrorIs(t, err, ErrConflict)

	rec, err := repo.Get(ctx, key, models.KindProfile)
	require.NoError(t, err)
	assert.Equal(t, models.ActorSystem, rec.RestrictedBy)
}

func TestResetDisambiguatesMissingAndProtected(t *testing.T) {
	db := newTestDB(t)
	repo := NewViolationRepository(db)
	require.NoError(t, repo.MigrateTable())

	ctx := context.Background()
	key := Key{GroupID: -100, UserID: 42}

	// Absent record.
	err := repo.Reset(ctx, key, models.KindProfile, models.ActorSystem)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.AtomicUpdate(ctx, key, models.KindProfile, time.Now(), func(rec *models.ViolationRecord) error {
		rec.Count = 5
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkRestricted(ctx, key, models.KindProfile, models.ActorAdmin))

	// Admin-protected record: a system reset is rejected as a conflict.
	err = repo.Reset(ctx, key, models.KindProfile, models.ActorSystem)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, repo.Reset(ctx, key, models.KindProfile, models.ActorAdmin))
	rec, err := repo.Get(ctx, key, models.KindProfile)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Count)
	assert.False(t, rec.Restricted)
	assert.True(t, rec.ProbationUntil.IsZero())
}

func TestDeleteByUserRemovesAllKinds(t *testing.T) {
	db := newTestDB(t)
	repo := NewViolationRepository(db)
	require.NoError(t, repo.MigrateTable())

	ctx := context.Background()
	key := Key{GroupID: -100, UserID: 42}
	now := time.Now()

	for _, kind := range []models.TrackerKind{models.KindProfile, models.KindProbation} {
		_, err := repo.AtomicUpdate(ctx, key, kind, now, func(rec *models.ViolationRecord) error {
			rec.Count = 1
			return nil
		})
		require.NoError(t, err)
	}

	n, err := repo.DeleteByUser(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.Get(ctx, key, models.KindProfile)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaleUnrestrictedFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewViolationRepository(db)
	require.NoError(t, repo.MigrateTable())

	ctx := context.Background()
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	mk := func(userID int64, firstSeen time.Time, restricted bool) {
		_, err := repo.AtomicUpdate(ctx, Key{GroupID: -100, UserID: userID}, models.KindProfile, firstSeen,
			func(rec *models.ViolationRecord) error {
				rec.Count = 2
				rec.FirstSeenAt = firstSeen
				rec.LastSeenAt = firstSeen
				rec.Restricted = restricted
				return nil
			})
		require.NoError(t, err)
	}

	mk(1, old, false)  // stale, should match
	mk(2, now, false)  // fresh
	mk(3, old, true)   // already restricted

	recs, err := repo.StaleUnrestricted(ctx, models.KindProfile, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].UserID)
}
