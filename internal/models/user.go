package models

import (
	"time"
)

type User struct {
	ID              uint   `gorm:"primaryKey"`
	TelegramID      int64  `gorm:"uniqueIndex;not null"`
	Username        string `gorm:"size:255"`
	FullName        string `gorm:"size:255"`
	IsAdmin         bool   `gorm:"default:false"`
	Notified        bool   `gorm:"default:false"`
	ProfileData     string `gorm:"size:1024"` // JSON-encoded VPN profile, empty when none
	SubscriptionEnd *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasProfile reports whether a panel-side client is provisioned for the user.
func (u *User) HasProfile() bool {
	return u.ProfileData != ""
}
