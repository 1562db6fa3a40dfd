package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

const backupCodeCount = 10

// BackupCodeService issues and redeems single-use recovery codes. Codes are
// stored one row per code as SHA-256 hashes; the plaintext is returned to the
// caller exactly once for display.
type BackupCodeService struct {
	DB *gorm.DB
}

func NewBackupCodeService(db *gorm.DB) *BackupCodeService {
	return &BackupCodeService{DB: db}
}

// Generate mints a fresh code batch for a user inside the given transaction
// handle and returns the plaintext codes.
func (s *BackupCodeService) Generate(tx *gorm.DB, userID uuid.UUID, n int) ([]string, error) {
	codes := make([]string, 0, n)
	rows := make([]models.BackupCode, 0, n)

	for i := 0; i < n; i++ {
		raw := make([]byte, 8)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generating backup code: %w", err)
		}
		code := hex.EncodeToString(raw)
		codes = append(codes, code)
		rows = append(rows, models.BackupCode{
			UserID:   userID,
			CodeHash: utils.HashToken(code),
		})
	}

	if err := tx.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("saving backup codes: %w", err)
	}

	return codes, nil
}

// Redeem consumes a code. The find-and-remove is a single conditional DELETE,
// so of two concurrent requests presenting the same valid code exactly one
// succeeds and the other observes "not found".
func (s *BackupCodeService) Redeem(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	hash := utils.HashToken(strings.ToLower(strings.TrimSpace(code)))

	result := s.DB.WithContext(ctx).
		Where("user_id = ? AND code_hash = ?", userID, hash).
		Delete(&models.BackupCode{})
	if result.Error != nil {
		return false, fmt.Errorf("redeeming backup code: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// Regenerate atomically replaces a user's entire code set, invalidating all
// previous codes.
func (s *BackupCodeService) Regenerate(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var codes []string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error; err != nil {
			return fmt.Errorf("clearing backup codes: %w", err)
		}

		generated, err := s.Generate(tx, userID, backupCodeCount)
		if err != nil {
			return err
		}

		codes = generated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// RemoveAll deletes a user's code set, used when two-factor auth is disabled.
func (s *BackupCodeService) RemoveAll(ctx context.Context, userID uuid.UUID) error {
	return s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error
}

// Count reports how many unused codes a user has left.
func (s *BackupCodeService) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.BackupCode{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
