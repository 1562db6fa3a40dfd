package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingLogin represents "password verified, second factor outstanding".
// It is destroyed when the second factor succeeds (completion issues a new,
// distinct Session — a pending login is never upgraded in place) and is
// lazily invalid once ExpiresAt has passed.
type PendingLogin struct {
	BaseModel
	UserID    uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	TokenHash string    `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	IPAddress string    `json:"ipAddress" gorm:"type:varchar(45)"`
	User      User      `json:"-" gorm:"foreignKey:UserID"`
}

func (PendingLogin) TableName() string {
	return "pending_logins"
}
