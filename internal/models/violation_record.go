package models

import "time"

// TrackerKind distinguishes the independently configured tracker instances
// sharing the violation_records table.
type TrackerKind string

const (
	// KindProfile tracks messages sent with an incomplete profile.
	KindProfile TrackerKind = "profile"
	// KindProbation tracks link/forward violations during new-user probation.
	KindProbation TrackerKind = "probation"
)

// Actor identifies who applied (or cleared) a restriction.
type Actor string

const (
	ActorNone   Actor = "none"
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
)

// ViolationRecord tracks progressive-enforcement state for one user in one
// group, one row per tracker kind. Count only moves forward except on an
// explicit reset, and a restriction applied by an admin is never cleared by
// the system on its own.
type ViolationRecord struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time

	GroupID int64       `gorm:"uniqueIndex:idx_group_user_kind;not null"`
	UserID  int64       `gorm:"uniqueIndex:idx_group_user_kind;not null"`
	Kind    TrackerKind `gorm:"uniqueIndex:idx_group_user_kind;type:varchar(16);not null"`

	Count        int       `gorm:"not null;default:0"`
	FirstSeenAt  time.Time `gorm:"index"`
	LastSeenAt   time.Time
	Restricted   bool  `gorm:"not null;default:false"`
	RestrictedBy Actor `gorm:"type:varchar(16);default:'none'"`

	// ProbationUntil is only meaningful for KindProbation rows; zero otherwise.
	ProbationUntil time.Time
}
