package storage

import (
	"context"
	"errors"
	"time"

	"tg-groupguard/internal/models"

	"gorm.io/gorm"
)

// WhitelistRepository handles database operations for PhotoWhitelist
type WhitelistRepository struct {
	db *gorm.DB
}

// NewWhitelistRepository creates a new WhitelistRepository
func NewWhitelistRepository(db *gorm.DB) *WhitelistRepository {
	return &WhitelistRepository{db: db}
}

// MigrateTable ensures the PhotoWhitelist table exists
func (r *WhitelistRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.PhotoWhitelist{})
}

// Add inserts a whitelist entry; ErrConflict if the user is already listed.
func (r *WhitelistRepository) Add(ctx context.Context, userID, verifiedBy int64, notes string) error {
	entry := &models.PhotoWhitelist{
		UserID:     userID,
		VerifiedBy: verifiedBy,
		VerifiedAt: time.Now(),
		Notes:      notes,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Remove deletes a whitelist entry; ErrNotFound if the user is not listed.
func (r *WhitelistRepository) Remove(ctx context.Context, userID int64) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.PhotoWhitelist{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Contains reports whether the user is whitelisted.
func (r *WhitelistRepository) Contains(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PhotoWhitelist{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}
