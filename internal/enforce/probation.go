package enforce

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// Probation enforces the link/forward rules for newly joined users. Same
// progressive machinery as Tracker, plus a wall-clock window: once the
// window elapses without a new violation the record resets itself, so an old
// cycle never accumulates into a new one.
type Probation struct {
	repo      *storage.ViolationRepository
	threshold int
	window    time.Duration
}

// NewProbation creates the probation tracker. threshold and window are
// configured independently from the profile tracker.
func NewProbation(repo *storage.ViolationRepository, threshold int, window time.Duration) *Probation {
	return &Probation{
		repo:      repo,
		threshold: threshold,
		window:    window,
	}
}

// Begin opens (or reopens) a probation window for the key, typically right
// after the user passes captcha verification.
func (p *Probation) Begin(ctx context.Context, key storage.Key, now time.Time) error {
	_, err := p.repo.AtomicUpdate(ctx, key, models.KindProbation, now, func(rec *models.ViolationRecord) error {
		rec.Count = 0
		rec.FirstSeenAt = time.Time{}
		rec.LastSeenAt = now
		rec.ProbationUntil = now.Add(p.window)
		return nil
	})
	if errors.Is(err, storage.ErrConflict) {
		_, err = p.repo.AtomicUpdate(ctx, key, models.KindProbation, now, func(rec *models.ViolationRecord) error {
			rec.Count = 0
			rec.FirstSeenAt = time.Time{}
			rec.LastSeenAt = now
			rec.ProbationUntil = now.Add(p.window)
			return nil
		})
	}
	return err
}

// Active reports whether the key is currently under probation. An expired
// window is cleaned up on read.
func (p *Probation) Active(ctx context.Context, key storage.Key, now time.Time) (bool, error) {
	rec, err := p.repo.Get(ctx, key, models.KindProbation)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.ProbationUntil.IsZero() || !now.Before(rec.ProbationUntil) {
		// Window over; neutralize the record so stale counts cannot leak
		// into a future cycle. Admin restrictions survive the reset.
		if err := p.repo.Reset(ctx, key, models.KindProbation, models.ActorSystem); err != nil &&
			!errors.Is(err, storage.ErrConflict) && !errors.Is(err, storage.ErrNotFound) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// RecordViolation counts a probation violation and returns the decision.
// If the stored window already elapsed, the record resets first and the new
// event counts as violation one of a fresh window.
func (p *Probation) RecordViolation(ctx context.Context, key storage.Key, now time.Time) (Decision, error) {
	dec, err := p.recordOnce(ctx, key, now)
	if errors.Is(err, storage.ErrConflict) {
		dec, err = p.recordOnce(ctx, key, now)
		if errors.Is(err, storage.ErrConflict) {
			return Decision{Action: ActionNoOp}, nil
		}
	}
	return dec, err
}

func (p *Probation) recordOnce(ctx context.Context, key storage.Key, now time.Time) (Decision, error) {
	var dec Decision
	rec, err := p.repo.AtomicUpdate(ctx, key, models.KindProbation, now, func(rec *models.ViolationRecord) error {
		if !rec.ProbationUntil.IsZero() && now.After(rec.ProbationUntil) && !rec.LastSeenAt.After(rec.ProbationUntil) {
			rec.Count = 0
			rec.FirstSeenAt = time.Time{}
			if rec.RestrictedBy != models.ActorAdmin {
				rec.Restricted = false
				rec.RestrictedBy = models.ActorNone
			}
			rec.ProbationUntil = now.Add(p.window)
		}

		rec.Count++
		rec.LastSeenAt = now
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		if rec.ProbationUntil.IsZero() {
			rec.ProbationUntil = now.Add(p.window)
		}

		switch {
		case rec.Count >= p.threshold && !rec.Restricted:
			rec.Restricted = true
			rec.RestrictedBy = models.ActorSystem
			dec.Action = ActionRestrict
		case rec.Count >= p.threshold:
			dec.Action = ActionNoOp
		case rec.Count == 1:
			dec.Action = ActionWarn
		default:
			dec.Action = ActionSilent
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	dec.Count = rec.Count
	return dec, nil
}

// Status returns a read-only snapshot of the probation record.
func (p *Probation) Status(ctx context.Context, key storage.Key) (*models.ViolationRecord, error) {
	return p.repo.Get(ctx, key, models.KindProbation)
}

// Reset clears the probation record on behalf of actor.
func (p *Probation) Reset(ctx context.Context, key storage.Key, actor models.Actor) error {
	err := p.repo.Reset(ctx, key, models.KindProbation, actor)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
		return nil
	}
	return err
}
