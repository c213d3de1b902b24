package models

import "time"

// CaptchaStatus is the lifecycle state of a join verification challenge.
// Transitions only move forward: pending -> verified, pending -> expired.
type CaptchaStatus string

const (
	CaptchaPending  CaptchaStatus = "pending"
	CaptchaVerified CaptchaStatus = "verified"
	CaptchaExpired  CaptchaStatus = "expired"
)

// Terminal reports whether the status can never change again.
func (s CaptchaStatus) Terminal() bool {
	return s == CaptchaVerified || s == CaptchaExpired
}

// CaptchaRecord tracks one join-time verification challenge. At most one
// pending record exists per (group, user); terminal records are immutable.
type CaptchaRecord struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time

	GroupID int64 `gorm:"index:idx_captcha_group_user;not null"`
	UserID  int64 `gorm:"index:idx_captcha_group_user;not null"`

	Status   CaptchaStatus `gorm:"type:varchar(16);index;not null;default:'pending'"`
	JoinedAt time.Time
	Deadline time.Time `gorm:"index"`
	Attempts int       `gorm:"not null;default:0"`

	// Challenge message bookkeeping so the prompt can be edited or deleted
	// once the record goes terminal.
	ChatID    int64
	MessageID int
	UserName  string `gorm:"type:varchar(255)"`
}
