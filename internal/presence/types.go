package presence

import (
	"errors"
	"time"

	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/store"
)

var (
	ErrEmptyIdentifier = errors.New("identifier is required")
	// ErrStoreUnavailable wraps persistence failures; the scan can be retried.
	ErrStoreUnavailable = errors.New("presence store unavailable")
)

// Mode selects how a scan is interpreted.
type Mode int

const (
	ModeAttendance Mode = iota
	ModeRegistration
)

func (m Mode) String() string {
	if m == ModeRegistration {
		return "registration"
	}
	return "attendance"
}

// Outcome is the engine's decision for one scan.
type Outcome string

const (
	OutcomeCheckedIn  Outcome = "checked_in"
	OutcomeCheckedOut Outcome = "checked_out"
	OutcomeDebounced  Outcome = "debounced"
	OutcomeUnknown    Outcome = "unknown"
	OutcomePending    Outcome = "pending"
)

// Scan is one identifier read, together with the mode it was read in.
type Scan struct {
	Identifier string
	Mode       Mode
	Source     model.ScanSource
}

// Result is returned to the scanner and the web layer for feedback.
type Result struct {
	Outcome         Outcome              `json:"outcome"`
	Identifier      string               `json:"identifier"`
	MemberID        string               `json:"member_id,omitempty"`
	Name            string               `json:"name,omitempty"`
	Status          model.PresenceStatus `json:"status,omitempty"`
	Forced          bool                 `json:"forced,omitempty"`
	CreditedSeconds int64                `json:"credited_seconds"`
	TotalHours      float64              `json:"total_hours"`
	At              time.Time            `json:"at"`
}

// PresentMember is a checked-in member with the length of the current session.
type PresentMember struct {
	store.MemberPresence
	DurationSeconds float64 `json:"duration_seconds"`
	DurationText    string  `json:"duration_formatted"`
}

// Notifier is told about every check-in.
type Notifier interface {
	NotifyCheckIn(memberID string)
}
