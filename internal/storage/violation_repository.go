package storage

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Key identifies a user within a group.
type Key struct {
	GroupID int64
	UserID  int64
}

// ViolationRepository handles database operations for ViolationRecord.
// All mutations run as store-level transactions or single conditional
// statements; no caller-side locking is involved.
type ViolationRepository struct {
	db *gorm.DB
}

// NewViolationRepository creates a new ViolationRepository
func NewViolationRepository(db *gorm.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// MigrateTable ensures the ViolationRecord table exists
func (r *ViolationRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.ViolationRecord{})
}

// locked adds a row lock on backends that support it. SQLite serializes
// write transactions at the connection level (immediate txlock), so the
// clause is only needed for MySQL.
func (r *ViolationRepository) locked(tx *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// AtomicUpdate runs fn against the current record for key/kind inside a
// single transaction, creating the record on first touch. The row stays
// locked from read to write, so concurrent callers cannot act on the same
// pre-update value. A racing first-touch insert surfaces as ErrConflict; the
// caller retries and finds the row.
func (r *ViolationRepository) AtomicUpdate(ctx context.Context, key Key, kind models.TrackerKind, now time.Time, fn func(rec *models.ViolationRecord) error) (*models.ViolationRecord, error) {
	var out models.ViolationRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.ViolationRecord
		res := r.locked(tx).
			Where("group_id = ? AND user_id = ? AND kind = ?", key.GroupID, key.UserID, kind).
			First(&rec)
		if res.Error != nil {
			if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return res.Error
			}
			rec = models.ViolationRecord{
				GroupID:      key.GroupID,
				UserID:       key.UserID,
				Kind:         kind,
				FirstSeenAt:  now,
				LastSeenAt:   now,
				RestrictedBy: models.ActorNone,
			}
		}

		if err := fn(&rec); err != nil {
			return err
		}

		if err := tx.Save(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns a consistent snapshot of the record for key/kind.
func (r *ViolationRepository) Get(ctx context.Context, key Key, kind models.TrackerKind) (*models.ViolationRecord, error) {
	var rec models.ViolationRecord
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND kind = ?", key.GroupID, key.UserID, kind).
		First(&rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &rec, nil
}

// MarkRestricted flips restricted false -> true in one conditional
// statement. ErrConflict means another path already restricted the user.
func (r *ViolationRepository) MarkRestricted(ctx context.Context, key Key, kind models.TrackerKind, by models.Actor) error {
	res := r.db.WithContext(ctx).Model(&models.ViolationRecord{}).
		Where("group_id = ? AND user_id = ? AND kind = ? AND restricted = ?",
			key.GroupID, key.UserID, kind, false).
		Updates(map[string]interface{}{"restricted": true, "restricted_by": by})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Reset zeroes the record for key/kind. A non-admin actor must not clear a
// restriction an administrator applied; that attempt reports ErrConflict and
// leaves the record untouched.
func (r *ViolationRepository) Reset(ctx context.Context, key Key, kind models.TrackerKind, actor models.Actor) error {
	q := r.db.WithContext(ctx).Model(&models.ViolationRecord{}).
		Where("group_id = ? AND user_id = ? AND kind = ?", key.GroupID, key.UserID, kind)
	if actor != models.ActorAdmin {
		q = q.Where("restricted_by <> ?", models.ActorAdmin)
	}
	res := q.Updates(map[string]interface{}{
		"count":           0,
		"restricted":      false,
		"restricted_by":   models.ActorNone,
		"first_seen_at":   time.Time{},
		"probation_until": time.Time{},
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, key, kind); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// Delete removes the record entirely (administrative clear).
func (r *ViolationRepository) Delete(ctx context.Context, key Key, kind models.TrackerKind) error {
	return r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND kind = ?", key.GroupID, key.UserID, kind).
		Delete(&models.ViolationRecord{}).Error
}

// DeleteByUser removes all records for a user in a group, any kind.
func (r *ViolationRepository) DeleteByUser(ctx context.Context, key Key) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", key.GroupID, key.UserID).
		Delete(&models.ViolationRecord{})
	return res.RowsAffected, res.Error
}

// StaleUnrestricted returns unrestricted records of the given kind whose
// first event is at or before cutoff. Used by the time-based escalation
// sweep.
func (r *ViolationRepository) StaleUnrestricted(ctx context.Context, kind models.TrackerKind, cutoff time.Time) ([]*models.ViolationRecord, error) {
	var recs []*models.ViolationRecord
	res := r.db.WithContext(ctx).
		Where("kind = ? AND restricted = ? AND count > 0 AND first_seen_at <= ?", kind, false, cutoff).
		Find(&recs)
	return recs, res.Error
}
