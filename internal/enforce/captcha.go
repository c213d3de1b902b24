package enforce

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// Captcha runs the join-time verification lifecycle: pending -> verified on
// success, pending -> expired once the deadline passes. Terminal states are
// immutable, which is what makes a stale expiry timer firing after a verify
// a safe no-op.
type Captcha struct {
	repo    *storage.CaptchaRepository
	timeout time.Duration
}

// ChallengeMeta carries the challenge-message bookkeeping stored alongside
// the record so the prompt can be edited or deleted later.
type ChallengeMeta struct {
	ChatID    int64
	MessageID int
	UserName  string
}

// NewCaptcha creates the captcha lifecycle with the configured timeout.
func NewCaptcha(repo *storage.CaptchaRepository, timeout time.Duration) *Captcha {
	return &Captcha{
		repo:    repo,
		timeout: timeout,
	}
}

// Timeout returns the configured verification window.
func (c *Captcha) Timeout() time.Duration {
	return c.timeout
}

// Create opens a pending challenge with deadline = now + timeout. Fails with
// storage.ErrAlreadyPending when a non-terminal record exists for the key.
func (c *Captcha) Create(ctx context.Context, key storage.Key, meta ChallengeMeta, now time.Time) (*models.CaptchaRecord, error) {
	rec := &models.CaptchaRecord{
		GroupID:   key.GroupID,
		UserID:    key.UserID,
		JoinedAt:  now,
		Deadline:  now.Add(c.timeout),
		ChatID:    meta.ChatID,
		MessageID: meta.MessageID,
		UserName:  meta.UserName,
	}
	if err := c.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Verify transitions the pending record to verified and returns it. Returns
// storage.ErrAlreadyTerminal when the record is already verified or expired
// (idempotent from the caller's perspective) and storage.ErrNotFound when no
// record exists for the key.
func (c *Captcha) Verify(ctx context.Context, key storage.Key, now time.Time) (*models.CaptchaRecord, error) {
	err := c.repo.MarkVerified(ctx, key)
	if errors.Is(err, storage.ErrConflict) {
		return c.terminalReason(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return c.repo.GetLatest(ctx, key)
}

// Expire transitions the pending record to expired, but only once the
// deadline has passed: calling early reports storage.ErrTooEarly rather
// than expiring ahead of schedule. Double expiry (timer vs sweep) is
// absorbed by the terminal-state guard.
func (c *Captcha) Expire(ctx context.Context, key storage.Key, now time.Time) (*models.CaptchaRecord, error) {
	err := c.repo.MarkExpired(ctx, key, now)
	if errors.Is(err, storage.ErrConflict) {
		rec, terr := c.repo.GetPending(ctx, key)
		if terr == nil && now.Before(rec.Deadline) {
			return nil, storage.ErrTooEarly
		}
		return c.terminalReason(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return c.repo.GetLatest(ctx, key)
}

// terminalReason maps a failed conditional transition to the taxonomy:
// no record at all is NotFound, an existing terminal record is AlreadyTerminal.
func (c *Captcha) terminalReason(ctx context.Context, key storage.Key) (*models.CaptchaRecord, error) {
	rec, err := c.repo.GetLatest(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, storage.ErrAlreadyTerminal
	}
	// Pending record reappeared between the update and this read; treat as
	// a conflict the caller may retry.
	return nil, storage.ErrConflict
}

// RecordAttempt bumps the attempt counter on a wrong answer. Absent or
// terminal records are a benign no-op.
func (c *Captcha) RecordAttempt(ctx context.Context, key storage.Key) error {
	err := c.repo.IncrementAttempts(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Pending returns every outstanding (non-terminal) record.
func (c *Captcha) Pending(ctx context.Context) ([]*models.CaptchaRecord, error) {
	return c.repo.Pending(ctx)
}

// PendingDue returns outstanding records whose deadline has passed as of now.
func (c *Captcha) PendingDue(ctx context.Context, now time.Time) ([]*models.CaptchaRecord, error) {
	return c.repo.PendingDue(ctx, now)
}

// Status returns the most recent record for the key.
func (c *Captcha) Status(ctx context.Context, key storage.Key) (*models.CaptchaRecord, error) {
	return c.repo.GetLatest(ctx, key)
}
