package enforce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

func TestProbationLifecycle(t *testing.T) {
	violations, _ := newTestRepos(t)
	probation := NewProbation(violations, 3, 72*time.Hour)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	require.NoError(t, probation.Begin(ctx, key, now))

	active, err := probation.Active(ctx, key, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, active)

	dec, err := probation.RecordViolation(ctx, key, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, dec.Action)

	dec, err = probation.RecordViolation(ctx, key, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ActionSilent, dec.Action)

	dec, err = probation.RecordViolation(ctx, key, now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ActionRestrict, dec.Action)
	assert.Equal(t, 3, dec.Count)

	rec, err := probation.Status(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.Restricted)
	assert.Equal(t, models.ActorSystem, rec.RestrictedBy)
}

func TestProbationThresholdOneRestrictsImmediately(t *testing.T) {
	violations, _ := newTestRepos(t)
	probation := NewProbation(violations, 1, 72*time.Hour)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	require.NoError(t, probation.Begin(ctx, key, now))

	dec, err := probation.RecordViolation(ctx, key, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ActionRestrict, dec.Action)
	assert.Equal(t, 1, dec.Count)
}

func TestProbationWindowResetsOnLateViolation(t *testing.T) {
	violations, _ := newTestRepos(t)
	window := 72 * time.Hour
	probation := NewProbation(violations, 3, window)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	require.NoError(t, probation.Begin(ctx, key, now))
	_, err := probation.RecordViolation(ctx, key, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = probation.RecordViolation(ctx, key, now.Add(2*time.Hour))
	require.NoError(t, err)

	// A violation after the window closed does not inherit the stale count:
	// the record resets and this event opens a fresh window as count one.
	late := now.Add(window + time.Hour)
	dec, err := probation.RecordViolation(ctx, key, late)
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, dec.Action)
	assert.Equal(t, 1, dec.Count)

	rec, err := probation.Status(ctx, key)
	require.NoError(t, err)
	assert.WithinDuration(t, late.Add(window), rec.ProbationUntil, time.Second)
}

func TestProbationActiveCleansExpiredWindow(t *testing.T) {
	violations, _ := newTestRepos(t)
	window := 72 * time.Hour
	probation := NewProbation(violations, 3, window)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	require.NoError(t, probation.Begin(ctx, key, now))
	_, err := probation.RecordViolation(ctx, key, now.Add(time.Hour))
	require.NoError(t, err)

	active, err := probation.Active(ctx, key, now.Add(window+time.Minute))
	require.NoError(t, err)
	assert.False(t, active)

	// The expired cycle was neutralized on read.
	rec, err := probation.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Count)
}

func TestProbationActiveUnknownUser(t *testing.T) {
	violations, _ := newTestRepos(t)
	probation := NewProbation(violations, 3, 72*time.Hour)

	active, err := probation.Active(context.Background(), storage.Key{GroupID: -100, UserID: 404}, time.Now())
	require.NoError(t, err)
	assert.False(t, active)
}

func TestProbationBeginReopensWindow(t *testing.T) {
	violations, _ := newTestRepos(t)
	window := 72 * time.Hour
	probation := NewProbation(violations, 3, window)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	require.NoError(t, probation.Begin(ctx, key, now))
	_, err := probation.RecordViolation(ctx, key, now.Add(time.Hour))
	require.NoError(t, err)

	// User left and rejoined: verification opens a clean window.
	rejoin := now.Add(10 * time.Hour)
	require.NoError(t, probation.Begin(ctx, key, rejoin))

	rec, err := probation.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Count)
	assert.WithinDuration(t, rejoin.Add(window), rec.ProbationUntil, time.Second)
}

func TestProbationDoesNotTouchProfileRecords(t *testing.T) {
	violations, _ := newTestRepos(t)
	probation := NewProbation(violations, 3, 72*time.Hour)
	tracker := NewTracker(violations, models.KindProfile, 3, 0)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	_, err := tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)
	require.NoError(t, probation.Begin(ctx, key, now))

	// The profile record for the same key keeps its count.
	rec, err := tracker.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
}
