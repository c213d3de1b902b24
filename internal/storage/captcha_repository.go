package storage

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/models"

	"gorm.io/gorm"
)

// CaptchaRepository handles database operations for CaptchaRecord. Terminal
// transitions are single conditional statements guarded on status=pending,
// so a stale timer and the sweep racing each other cannot both fire.
type CaptchaRepository struct {
	db *gorm.DB
}

// NewCaptchaRepository creates a new CaptchaRepository
func NewCaptchaRepository(db *gorm.DB) *CaptchaRepository {
	return &CaptchaRepository{db: db}
}

// MigrateTable ensures the CaptchaRecord table exists
func (r *CaptchaRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.CaptchaRecord{})
}

// Create inserts a new pending record, failing with ErrAlreadyPending when a
// non-terminal record for the key already exists. The existence check and
// insert run in one transaction.
func (r *CaptchaRepository) Create(ctx context.Context, rec *models.CaptchaRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CaptchaRecord{}).
			Where("group_id = ? AND user_id = ? AND status = ?",
				rec.GroupID, rec.UserID, models.CaptchaPending).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyPending
		}
		rec.Status = models.CaptchaPending
		return tx.Create(rec).Error
	})
}

// GetPending returns the pending record for the key, if any.
func (r *CaptchaRepository) GetPending(ctx context.Context, key Key) (*models.CaptchaRecord, error) {
	var rec models.CaptchaRecord
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND status = ?", key.GroupID, key.UserID, models.CaptchaPending).
		First(&rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &rec, nil
}

// GetLatest returns the most recent record for the key regardless of status.
func (r *CaptchaRepository) GetLatest(ctx context.Context, key Key) (*models.CaptchaRecord, error) {
	var rec models.CaptchaRecord
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", key.GroupID, key.UserID).
		Order("id DESC").
		First(&rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &rec, nil
}

// MarkVerified transitions pending -> verified. ErrConflict when no pending
// row matched, which the caller disambiguates into NotFound/AlreadyTerminal.
func (r *CaptchaRepository) MarkVerified(ctx context.Context, key Key) error {
	res := r.db.WithContext(ctx).Model(&models.CaptchaRecord{}).
		Where("group_id = ? AND user_id = ? AND status = ?", key.GroupID, key.UserID, models.CaptchaPending).
		Update("status", models.CaptchaVerified)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkExpired transitions pending -> expired, and only once the deadline has
// passed; the deadline guard is part of the statement so the check cannot
// race the update.
func (r *CaptchaRepository) MarkExpired(ctx context.Context, key Key, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.CaptchaRecord{}).
		Where("group_id = ? AND user_id = ? AND status = ? AND deadline <= ?",
			key.GroupID, key.UserID, models.CaptchaPending, now).
		Update("status", models.CaptchaExpired)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// IncrementAttempts bumps the attempt counter on the pending record.
func (r *CaptchaRepository) IncrementAttempts(ctx context.Context, key Key) error {
	res := r.db.WithContext(ctx).Model(&models.CaptchaRecord{}).
		Where("group_id = ? AND user_id = ? AND status = ?", key.GroupID, key.UserID, models.CaptchaPending).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Pending returns all pending records.
func (r *CaptchaRepository) Pending(ctx context.Context) ([]*models.CaptchaRecord, error) {
	var recs []*models.CaptchaRecord
	res := r.db.WithContext(ctx).
		Where("status = ?", models.CaptchaPending).
		Find(&recs)
	return recs, res.Error
}

// PendingDue returns pending records whose deadline is at or before now.
func (r *CaptchaRepository) PendingDue(ctx context.Context, now time.Time) ([]*models.CaptchaRecord, error) {
	var recs []*models.CaptchaRecord
	res := r.db.WithContext(ctx).
		Where("status = ? AND deadline <= ?", models.CaptchaPending, now).
		Find(&recs)
	return recs, res.Error
}
