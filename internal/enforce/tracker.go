package enforce

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/storage"
)

// Tracker is a generic progressive-enforcement engine. Two instances run
// with independent configuration: one for profile compliance, one for
// link/forward probation. All state lives in the store; a Tracker holds no
// mutable state of its own and is safe for concurrent use.
type Tracker struct {
	repo      *storage.ViolationRepository
	kind      models.TrackerKind
	threshold int
	maxAge    time.Duration
}

// NewTracker creates a tracker for the given kind. threshold is the count at
// which RESTRICT fires; maxAge is the wall-clock age at which the sweep
// escalates regardless of count (zero disables time-based escalation).
func NewTracker(repo *storage.ViolationRepository, kind models.TrackerKind, threshold int, maxAge time.Duration) *Tracker {
	return &Tracker{
		repo:      repo,
		kind:      kind,
		threshold: threshold,
		maxAge:    maxAge,
	}
}

// RecordViolation increments the count by exactly one and returns the
// enforcement decision for the post-increment count. Concurrent calls for
// the same key both increment; the one whose increment reaches the threshold
// first is the only one that gets ActionRestrict.
func (t *Tracker) RecordViolation(ctx context.Context, key storage.Key, now time.Time) (Decision, error) {
	dec, err := t.recordOnce(ctx, key, now)
	if errors.Is(err, storage.ErrConflict) {
		// Another caller created or transitioned the row first; one retry
		// against the now-existing state, then defer to whoever won.
		dec, err = t.recordOnce(ctx, key, now)
		if errors.Is(err, storage.ErrConflict) {
			return Decision{Action: ActionNoOp}, nil
		}
	}
	return dec, err
}

func (t *Tracker) recordOnce(ctx context.Context, key storage.Key, now time.Time) (Decision, error) {
	var dec Decision
	rec, err := t.repo.AtomicUpdate(ctx, key, t.kind, now, func(rec *models.ViolationRecord) error {
		rec.Count++
		rec.LastSeenAt = now
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}

		// Threshold wins over the first-violation warning so a
		// threshold of 1 restricts immediately.
		switch {
		case rec.Count >= t.threshold && !rec.Restricted:
			rec.Restricted = true
			rec.RestrictedBy = models.ActorSystem
			dec.Action = ActionRestrict
		case rec.Count >= t.threshold:
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

// Reset zeroes the record. A reset on behalf of the system will not clear a
// restriction applied by an administrator; that outcome is reported as a
// no-op. Resetting an absent record is benign.
func (t *Tracker) Reset(ctx context.Context, key storage.Key, actor models.Actor) error {
	err := t.repo.Reset(ctx, key, t.kind, actor)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
		return nil
	}
	return err
}

// Status returns a read-only snapshot of the record, or storage.ErrNotFound.
func (t *Tracker) Status(ctx context.Context, key storage.Key) (*models.ViolationRecord, error) {
	return t.repo.Get(ctx, key, t.kind)
}

// MarkRestricted records a restriction applied outside the engine, typically
// by an administrator acting directly in the chat. Already-restricted
// records are left as they are.
func (t *Tracker) MarkRestricted(ctx context.Context, key storage.Key, by models.Actor) error {
	err := t.repo.MarkRestricted(ctx, key, t.kind, by)
	if errors.Is(err, storage.ErrConflict) {
		return nil
	}
	return err
}

// EscalateStale restricts every unrestricted record whose first event is
// older than the configured max age. Each restriction runs the same
// conditional update as the message path, so a record the message path
// restricts mid-sweep is skipped, never double-fired.
func (t *Tracker) EscalateStale(ctx context.Context, now time.Time) ([]Escalation, error) {
	if t.maxAge <= 0 {
		return nil, nil
	}

	recs, err := t.repo.StaleUnrestricted(ctx, t.kind, now.Add(-t.maxAge))
	if err != nil {
		return nil, err
	}

	var out []Escalation
	for _, rec := range recs {
		key := storage.Key{GroupID: rec.GroupID, UserID: rec.UserID}
		err := t.repo.MarkRestricted(ctx, key, t.kind, models.ActorSystem)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			logger.Warningf("escalation failed for user %d in group %d: %v", rec.UserID, rec.GroupID, err)
			continue
		}
		out = append(out, Escalation{Key: key, Count: rec.Count})
	}
	return out, nil
}
