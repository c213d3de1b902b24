package enforce

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// Hooks are the caller-supplied effects executed when a sweep or a timer
// produces a decision. The engine never talks to Telegram itself.
type Hooks struct {
	// OnEscalated fires after the sweep restricts a stale warning record.
	OnEscalated func(ctx context.Context, esc Escalation)
	// OnCaptchaExpired fires after a pending captcha transitions to expired.
	OnCaptchaExpired func(ctx context.Context, rec *models.CaptchaRecord)
}

// Sweeper periodically re-evaluates all outstanding state on wall-clock
// time, independent of message traffic. It only supplies now and the keys;
// every decision comes from the trackers and the captcha lifecycle, the same
// operations the message path calls.
type Sweeper struct {
	tracker *Tracker
	captcha *Captcha
	hooks   Hooks

	interval     time.Duration
	startupDelay time.Duration
}

// NewSweeper creates a sweeper over the profile tracker and the captcha
// lifecycle. First run happens startupDelay after Start, then every interval.
func NewSweeper(tracker *Tracker, captcha *Captcha, hooks Hooks, interval, startupDelay time.Duration) *Sweeper {
	return &Sweeper{
		tracker:      tracker,
		captcha:      captcha,
		hooks:        hooks,
		interval:     interval,
		startupDelay: startupDelay,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		logger.Infof("Sweep scheduler starting: interval=%v, first run in %v", s.interval, s.startupDelay)

		select {
		case <-time.After(s.startupDelay):
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Sweep(ctx, time.Now())
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx, time.Now())
			case <-ctx.Done():
				logger.Infof("Sweep scheduler stopped")
				return
			}
		}
	}()
}

// Sweep runs one pass. Store errors fail only this pass; the next tick
// retries.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	s.sweepCaptchas(ctx, now)
	s.sweepWarnings(ctx, now)
}

func (s *Sweeper) sweepCaptchas(ctx context.Context, now time.Time) {
	due, err := s.captcha.PendingDue(ctx, now)
	if err != nil {
		logger.Warningf("Sweep: listing due captchas failed: %v", err)
		return
	}

	for _, rec := range due {
		key := storage.Key{GroupID: rec.GroupID, UserID: rec.UserID}
		expired, err := s.captcha.Expire(ctx, key, now)
		if errors.Is(err, storage.ErrAlreadyTerminal) || errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.Warningf("Sweep: expiring captcha for user %d failed: %v", rec.UserID, err)
			continue
		}
		logger.Infof("Sweep: captcha expired for user %d in group %d", rec.UserID, rec.GroupID)
		if s.hooks.OnCaptchaExpired != nil {
			s.hooks.OnCaptchaExpired(ctx, expired)
		}
	}
}

func (s *Sweeper) sweepWarnings(ctx context.Context, now time.Time) {
	escalations, err := s.tracker.EscalateStale(ctx, now)
	if err != nil {
		logger.Warningf("Sweep: time-based escalation failed: %v", err)
		return
	}

	for _, esc := range escalations {
		logger.Infof("Sweep: auto-restricted user %d in group %d after %d messages past the time threshold",
			esc.Key.UserID, esc.Key.GroupID, esc.Count)
		if s.hooks.OnEscalated != nil {
			s.hooks.OnEscalated(ctx, esc)
		}
	}
}
