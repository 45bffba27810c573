package model

import (
	"time"

	"gorm.io/gorm"
)

// Member represents a registered rower. The ID is the tag identifier.
type Member struct {
	ID           string         `gorm:"primaryKey;size:64" json:"id"`
	Name         string         `gorm:"size:128;not null" json:"name"`
	Category     *string        `gorm:"size:64" json:"category"`
	BoatClass    *string        `gorm:"size:64;index" json:"boat_class"`
	TotalSeconds int64          `gorm:"not null;default:0" json:"total_seconds"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TotalHours returns the accumulated time in hours.
func (m Member) TotalHours() float64 {
	return float64(m.TotalSeconds) / 3600
}
