package enforce

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// Reconciler makes a restart invisible to the captcha lifecycle. It runs
// once at process start, before the first sweep tick and before any update
// is consumed: deadlines that passed while the process was down expire
// immediately, future ones get their expiry timer re-armed.
type Reconciler struct {
	captcha *Captcha
	hooks   Hooks
}

// NewReconciler creates a reconciler sharing the sweeper's hooks.
func NewReconciler(captcha *Captcha, hooks Hooks) *Reconciler {
	return &Reconciler{
		captcha: captcha,
		hooks:   hooks,
	}
}

// SetHooks installs the hooks after construction. The handler layer needs
// the reconciler to arm timers, so the two are wired in two steps; must be
// called before Run.
func (r *Reconciler) SetHooks(hooks Hooks) {
	r.hooks = hooks
}

// Run reloads every outstanding captcha record and reconciles its deadline
// against now. It performs no other state mutation.
func (r *Reconciler) Run(ctx context.Context, now time.Time) error {
	pending, err := r.captcha.Pending(ctx)
	if err != nil {
		return err
	}

	recovered, rearmed := 0, 0
	for _, rec := range pending {
		if rec.Deadline.After(now) {
			r.Arm(rec, now)
			rearmed++
			continue
		}
		r.expire(ctx, storage.Key{GroupID: rec.GroupID, UserID: rec.UserID}, now)
		recovered++
	}

	logger.Infof("Captcha recovery: %d expired immediately, %d timers re-armed", recovered, rearmed)
	return nil
}

// Arm schedules the per-record expiry callback for the remaining time until
// the record's deadline. The timer is never cancelled on verify; the firing
// callback is a no-op against a terminal record.
func (r *Reconciler) Arm(rec *models.CaptchaRecord, now time.Time) {
	key := storage.Key{GroupID: rec.GroupID, UserID: rec.UserID}
	time.AfterFunc(rec.Deadline.Sub(now), func() {
		r.expire(context.Background(), key, time.Now())
	})
}

func (r *Reconciler) expire(ctx context.Context, key storage.Key, now time.Time) {
	expired, err := r.captcha.Expire(ctx, key, now)
	if errors.Is(err, storage.ErrAlreadyTerminal) || errors.Is(err, storage.ErrNotFound) {
		// Verified in the meantime, or the sweep got here first.
		logger.Debugf("Captcha for user %d in group %d already settled", key.UserID, key.GroupID)
		return
	}
	if errors.Is(err, storage.ErrTooEarly) {
		// Clock skew between arming and firing; the sweep will catch it.
		logger.Debugf("Captcha expiry for user %d fired before deadline, deferring to sweep", key.UserID)
		return
	}
	if err != nil {
		logger.Warningf("Captcha expiry for user %d in group %d failed: %v", key.UserID, key.GroupID, err)
		return
	}

	logger.Infof("Captcha timeout for user %d in group %d - kept restricted", key.UserID, key.GroupID)
	if r.hooks.OnCaptchaExpired != nil {
		r.hooks.OnCaptchaExpired(ctx, expired)
	}
}
