package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a server-side session record. Only the SHA-256 hash of the
// bearer token is stored; the raw token is returned to the client exactly
// once at issuance. ExpiresAt is fixed at issuance and never extended —
// a longer-lived session requires a fresh login.
type Session struct {
	BaseModel
	UserID        uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	TokenHash     string    `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	TwoFAComplete bool      `json:"twoFAComplete" gorm:"not null;default:false"`
	IssuedAt      time.Time `json:"issuedAt" gorm:"not null"`
	ExpiresAt     time.Time `json:"expiresAt" gorm:"not null;index"`
	IPAddress     string    `json:"ipAddress" gorm:"type:varchar(45)"`
	UserAgent     string    `json:"userAgent" gorm:"type:varchar(255)"`
	User          User      `json:"-" gorm:"foreignKey:UserID"`
}

func (Session) TableName() string {
	return "sessions"
}
