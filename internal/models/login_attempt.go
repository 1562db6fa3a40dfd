package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoginAttempt is one row per authentication attempt, keyed by account +
// origin. It exists only to compute sliding-window rate limits; rows older
// than the window are pruned opportunistically. It does NOT use BaseModel
// because attempt rows are never updated.
type LoginAttempt struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SubjectKey string    `json:"subjectKey" gorm:"type:varchar(320);not null;index"`
	Success    bool      `json:"success" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;index"`
}

func (a *LoginAttempt) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (LoginAttempt) TableName() string {
	return "login_attempts"
}
