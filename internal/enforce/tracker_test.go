package enforce

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

func TestTrackerProgression(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 3, 0)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	dec, err := tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, dec.Action)
	assert.Equal(t, 1, dec.Count)

	dec, err = tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)
	assert.Equal(t, ActionSilent, dec.Action)
	assert.Equal(t, 2, dec.Count)

	dec, err = tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)
	assert.Equal(t, ActionRestrict, dec.Action)
	assert.Equal(t, 3, dec.Count)

	// Past the threshold, an already-restricted record never fires again.
	dec, err = tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)
	assert.Equal(t, ActionNoOp, dec.Action)
	assert.Equal(t, 4, dec.Count)

	rec, err := tracker.Status(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.Restricted)
	assert.Equal(t, models.ActorSystem, rec.RestrictedBy)
}

func TestTrackerThresholdOneRestrictsImmediately(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 1, 0)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 42}
	now := time.Now()

	// The threshold outranks the first-violation warning: with N=1 the
	// very first violation restricts, it does not warn.
	dec, err := tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)
	assert.Equal(t, ActionRestrict, dec.Action)
	assert.Equal(t, 1, dec.Count)

	dec, err = tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)
	assert.Equal(t, ActionNoOp, dec.Action)

	rec, err := tracker.Status(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.Restricted)
	assert.Equal(t, models.ActorSystem, rec.RestrictedBy)
}

func TestTrackerKeysAreIndependent(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 2, 0)

	ctx := context.Background()
	now := time.Now()

	dec, err := tracker.RecordViolation(ctx, storage.Key{GroupID: -100, UserID: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, dec.Action)

	// Same user in a different group starts from zero.
	dec, err = tracker.RecordViolation(ctx, storage.Key{GroupID: -200, UserID: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, dec.Action)
	assert.Equal(t, 1, dec.Count)
}

func TestTrackerExactlyOneRestrict(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 10, 0)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 7}

	var restricts int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				dec, err := tracker.RecordViolation(ctx, key, time.Now())
				if !assert.NoError(t, err) {
					return
				}
				if dec.Action == ActionRestrict {
					atomic.AddInt64(&restricts, 1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), restricts)

	rec, err := tracker.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 40, rec.Count)
	assert.True(t, rec.Restricted)
}

func TestTrackerResetActorPolicy(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 3, 0)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 9}
	now := time.Now()

	_, err := tracker.RecordViolation(ctx, key, now)
	require.NoError(t, err)

	// Restriction placed by an administrator outside the engine.
	require.NoError(t, tracker.MarkRestricted(ctx, key, models.ActorAdmin))

	// A system reset must not clear an admin restriction; the call reports
	// success but the record is untouched.
	require.NoError(t, tracker.Reset(ctx, key, models.ActorSystem))
	rec, err := tracker.Status(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.Restricted)
	assert.Equal(t, models.ActorAdmin, rec.RestrictedBy)
	assert.Equal(t, 1, rec.Count)

	// An admin reset clears anything.
	require.NoError(t, tracker.Reset(ctx, key, models.ActorAdmin))
	rec, err = tracker.Status(ctx, key)
	require.NoError(t, err)
	assert.False(t, rec.Restricted)
	assert.Equal(t, models.ActorNone, rec.RestrictedBy)
	assert.Equal(t, 0, rec.Count)
}

func TestTrackerResetAbsentRecord(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 3, 0)

	err := tracker.Reset(context.Background(), storage.Key{GroupID: -100, UserID: 404}, models.ActorAdmin)
	assert.NoError(t, err)
}

func TestTrackerEscalateStale(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 100, time.Hour)

	ctx := context.Background()
	key := storage.Key{GroupID: -100, UserID: 5}
	old := time.Now().Add(-2 * time.Hour)

	_, err := tracker.RecordViolation(ctx, key, old)
	require.NoError(t, err)
	_, err = tracker.RecordViolation(ctx, key, old.Add(time.Minute))
	require.NoError(t, err)

	escalations, err := tracker.EscalateStale(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, escalations, 1)
	assert.Equal(t, key, escalations[0].Key)
	assert.Equal(t, 2, escalations[0].Count)

	rec, err := tracker.Status(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.Restricted)
	assert.Equal(t, models.ActorSystem, rec.RestrictedBy)

	// Second sweep finds nothing left to escalate.
	escalations, err = tracker.EscalateStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, escalations)
}

func TestTrackerEscalateStaleSkipsFreshRecords(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 100, time.Hour)

	ctx := context.Background()
	_, err := tracker.RecordViolation(ctx, storage.Key{GroupID: -100, UserID: 6}, time.Now())
	require.NoError(t, err)

	escalations, err := tracker.EscalateStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, escalations)
}

func TestTrackerEscalateDisabledWithoutMaxAge(t *testing.T) {
	violations, _ := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 3, 0)

	ctx := context.Background()
	_, err := tracker.RecordViolation(ctx, storage.Key{GroupID: -100, UserID: 6}, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)

	escalations, err := tracker.EscalateStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, escalations)
}
