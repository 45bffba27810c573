package model

import "time"

// ScanAction is the transition recorded by a scan event.
type ScanAction string

const (
	ActionIn        ScanAction = "in"
	ActionOut       ScanAction = "out"
	ActionAutoOut   ScanAction = "auto_out"
	ActionForcedOut ScanAction = "forced_out"
)

// ScanSource identifies where a transition originated.
type ScanSource string

const (
	SourceRFID     ScanSource = "rfid"
	SourceSimulate ScanSource = "simulate"
	SourceSweeper  ScanSource = "sweeper"
	SourceAdmin    ScanSource = "admin"
)

// ScanEvent is an append-only log entry of a presence transition (cold table).
type ScanEvent struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID        string         `gorm:"size:64;not null;index" json:"member_id"`
	Action          ScanAction     `gorm:"size:16;not null" json:"action"`
	Status          PresenceStatus `gorm:"size:8;not null" json:"status"`
	Forced          bool           `gorm:"not null;default:false" json:"forced"`
	CreditedSeconds int64          `gorm:"not null;default:0" json:"credited_seconds"`
	SessionID       *string        `gorm:"size:36" json:"session_id,omitempty"`
	Source          ScanSource     `gorm:"size:16;not null" json:"source"`
	ScannedAt       time.Time      `gorm:"not null;index" json:"scanned_at"`
}
