package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// A subscriber is notified when any of its followed members checks in.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Members []*Member `gorm:"many2many:subscription_member_mapping;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
