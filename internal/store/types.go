package store

import (
	"errors"
	"time"

	"presence-tracker-backend/internal/model"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrMemberExists   = errors.New("member already exists")
	ErrNotPresent     = errors.New("member is not checked in")
)

// Transition describes one applied presence change.
type Transition struct {
	MemberID     string               `json:"member_id"`
	Name         string               `json:"name"`
	Action       model.ScanAction     `json:"action"`
	Status       model.PresenceStatus `json:"status"`
	Forced       bool                 `json:"forced"`
	Elapsed      time.Duration        `json:"-"`
	Credited     time.Duration        `json:"-"`
	TotalSeconds int64                `json:"total_seconds"`
	SessionID    string               `json:"session_id,omitempty"`
	At           time.Time            `json:"at"`
}

// MemberPresence is a member joined with its presence record.
type MemberPresence struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Category     *string              `json:"category"`
	BoatClass    *string              `json:"boat_class"`
	TotalSeconds int64                `json:"total_seconds"`
	Status       model.PresenceStatus `json:"status"`
	CheckedInAt  *time.Time           `json:"checked_in_at"`
	LastScanAt   *time.Time           `json:"last_scan_at"`
}

// MemberUpdate carries the fields of an admin edit. Nil fields are left unchanged.
type MemberUpdate struct {
	Name         *string
	Category     *string
	BoatClass    *string
	TotalSeconds *int64
}

// BoatClassStat aggregates accumulated time per boat class.
type BoatClassStat struct {
	BoatClass    string `json:"boat_class"`
	TotalSeconds int64  `json:"total_seconds"`
	MemberCount  int64  `json:"member_count"`
}

// LeaderboardEntry is one ranked member.
type LeaderboardEntry struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     *string `json:"category"`
	BoatClass    *string `json:"boat_class"`
	TotalSeconds int64   `json:"total_seconds"`
}

// Leaderboard is the ranking shown on the kiosk.
type Leaderboard struct {
	BoatClasses  []BoatClassStat    `json:"boat_classes"`
	Top          []LeaderboardEntry `json:"top_individuals"`
	TotalSeconds int64              `json:"total_seconds"`
	MemberCount  int64              `json:"member_count"`
}
