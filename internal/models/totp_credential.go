package models

import (
	"time"

	"github.com/google/uuid"
)

// TOTPCredential holds a user's authenticator-app secret. The secret is
// AES-GCM encrypted at rest. A credential only authenticates once Enabled
// is true (set after the user proves possession during setup).
//
// LastUsedCounter stores the 30-second time step of the most recently
// accepted code so the same code can never be replayed within its window.
type TOTPCredential struct {
	BaseModel
	UserID          uuid.UUID  `json:"userID" gorm:"type:uuid;uniqueIndex;not null"`
	Secret          string     `json:"-" gorm:"type:text;not null"`
	Enabled         bool       `json:"enabled" gorm:"not null;default:false"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
	LastUsedCounter int64      `json:"-" gorm:"not null;default:0"`
	User            User       `json:"-" gorm:"foreignKey:UserID"`
}

func (TOTPCredential) TableName() string {
	return "totp_credentials"
}
