package models

import (
	"github.com/google/uuid"
)

// BackupCode is a single-use recovery credential. One row per code: redeeming
// is a conditional DELETE on (user_id, code_hash), so two concurrent requests
// presenting the same code cannot both succeed — the database guarantees
// exactly one of them observes RowsAffected == 1.
type BackupCode struct {
	BaseModel
	UserID   uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	CodeHash string    `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	User     User      `json:"-" gorm:"foreignKey:UserID"`
}

func (BackupCode) TableName() string {
	return "backup_codes"
}
