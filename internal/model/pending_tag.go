package model

import "time"

// PendingTag is a tag captured in registration mode that has no member yet.
type PendingTag struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// Setting is a persisted key/value flag.
type Setting struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"size:256;not null"`
}
