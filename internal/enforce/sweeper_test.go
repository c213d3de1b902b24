package enforce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

func TestSweepExpiresDueCaptchasAndEscalatesStaleWarnings(t *testing.T) {
	violations, captchas := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 100, time.Hour)
	captcha := NewCaptcha(captchas, 2*time.Minute)

	ctx := context.Background()
	now := time.Now()

	// One captcha past its deadline, one still counting down.
	dueKey := storage.Key{GroupID: -100, UserID: 1}
	_, err := captcha.Create(ctx, dueKey, ChallengeMeta{}, now.Add(-10*time.Minute))
	require.NoError(t, err)
	freshKey := storage.Key{GroupID: -100, UserID: 2}
	_, err = captcha.Create(ctx, freshKey, ChallengeMeta{}, now)
	require.NoError(t, err)

	// One warning record old enough for time-based escalation.
	staleKey := storage.Key{GroupID: -100, UserID: 3}
	_, err = tracker.RecordViolation(ctx, staleKey, now.Add(-2*time.Hour))
	require.NoError(t, err)

	var mu sync.Mutex
	var expired, escalated []storage.Key
	hooks := Hooks{
		OnCaptchaExpired: func(_ context.Context, rec *models.CaptchaRecord) {
			mu.Lock()
			defer mu.Unlock()
			expired = append(expired, storage.Key{GroupID: rec.GroupID, UserID: rec.UserID})
		},
		OnEscalated: func(_ context.Context, esc Escalation) {
			mu.Lock()
			defer mu.Unlock()
			escalated = append(escalated, esc.Key)
		},
	}

	sweeper := NewSweeper(tracker, captcha, hooks, time.Minute, 0)
	sweeper.Sweep(ctx, now)

	assert.Equal(t, []storage.Key{dueKey}, expired)
	assert.Equal(t, []storage.Key{staleKey}, escalated)

	rec, err := captcha.Status(ctx, dueKey)
	require.NoError(t, err)
	assert.Equal(t, models.CaptchaExpired, rec.Status)

	rec, err = captcha.Status(ctx, freshKey)
	require.NoError(t, err)
	assert.Equal(t, models.CaptchaPending, rec.Status)

	vrec, err := tracker.Status(ctx, staleKey)
	require.NoError(t, err)
	assert.True(t, vrec.Restricted)

	// A second pass over the same state fires nothing twice.
	sweeper.Sweep(ctx, now)
	assert.Len(t, expired, 1)
	assert.Len(t, escalated, 1)
}

func TestSweeperStartHonorsContextCancel(t *testing.T) {
	violations, captchas := newTestRepos(t)
	tracker := NewTracker(violations, models.KindProfile, 3, 0)
	captcha := NewCaptcha(captchas, 2*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSweeper(tracker, captcha, Hooks{}, time.Minute, time.Hour)
	sweeper.Start(ctx)

	// Cancelling during the startup delay must stop the loop promptly; this
	// would hang the test binary on leaked tickers otherwise.
	cancel()
	time.Sleep(50 * time.Millisecond)
}
