package models

import "time"

// PhotoWhitelist stores users whose profile photos are manually verified by
// an admin, typically because privacy settings hide the photo from the bot.
// Whitelisted users bypass the automatic profile photo check.
type PhotoWhitelist struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID     int64 `gorm:"uniqueIndex;not null"`
	VerifiedBy int64 `gorm:"not null"`
	VerifiedAt time.Time
	Notes      string `gorm:"type:text"`
}
