package model

import "time"

// PresenceStatus is the current state of a member.
type PresenceStatus string

const (
	StatusIn  PresenceStatus = "in"
	StatusOut PresenceStatus = "out"
)

// PresenceRecord holds the current presence of a member (hot table).
// CheckedInAt and SessionID are set only while Status is StatusIn.
type PresenceRecord struct {
	MemberID    string         `gorm:"primaryKey;size:64"`
	Status      PresenceStatus `gorm:"size:8;not null;default:out;index"`
	CheckedInAt *time.Time
	SessionID   *string `gorm:"size:36"`
	LastScanAt  *time.Time
	UpdatedAt   time.Time `gorm:"not null"`
}
