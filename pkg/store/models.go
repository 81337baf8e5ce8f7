package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ProfileModel struct {
	UserID          string `gorm:"primaryKey"`
	BirthDate       *time.Time
	Tier            string    `gorm:"not null"`
	Verified        bool      `gorm:"not null"`
	GuardianConsent bool      `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time
}

type EntryModel struct {
	ID          string         `gorm:"primaryKey"`
	UserID      string         `gorm:"not null;index"`
	Role        string         `gorm:"not null"`
	Text        string         `gorm:"type:text;not null"`
	TierAtWrite string         `gorm:"not null"`
	Redactions  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null;index"`
}
