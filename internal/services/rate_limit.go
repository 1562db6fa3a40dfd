package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/pkg/logger"
	"gorm.io/gorm"
)

// RateLimitService tracks authentication attempts per account+origin and
// blocks once failures within a sliding window reach the threshold. A
// success never clears prior failures: the lockout only lifts when the old
// failures age out of the window, so a lucky guess cannot reset an
// attacker's budget. One row per attempt keeps increments atomic under
// concurrent requests.
type RateLimitService struct {
	DB        *gorm.DB
	Window    time.Duration
	Threshold int
}

func NewRateLimitService(db *gorm.DB, window time.Duration, threshold int) *RateLimitService {
	return &RateLimitService{DB: db, Window: window, Threshold: threshold}
}

// AttemptKey builds the composite subject key for an account and request
// origin.
func AttemptKey(email, originIP string) string {
	return NormalizeEmail(email) + "|" + originIP
}

// RecordAttempt logs one attempt and opportunistically prunes rows that have
// aged out of the window for this key.
func (s *RateLimitService) RecordAttempt(ctx context.Context, key string, success bool) error {
	attempt := models.LoginAttempt{
		SubjectKey: key,
		Success:    success,
	}
	if err := s.DB.WithContext(ctx).Create(&attempt).Error; err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}

	cutoff := time.Now().UTC().Add(-s.Window)
	if err := s.DB.WithContext(ctx).
		Where("subject_key = ? AND created_at < ?", key, cutoff).
		Delete(&models.LoginAttempt{}).Error; err != nil {
		logger.Warn("attempt_prune_failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return nil
}

// IsBlocked reports whether the key has reached the failure threshold within
// the current window.
func (s *RateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	cutoff := time.Now().UTC().Add(-s.Window)

	var failures int64
	err := s.DB.WithContext(ctx).Model(&models.LoginAttempt{}).
		Where("subject_key = ? AND success = ? AND created_at >= ?", key, false, cutoff).
		Count(&failures).Error
	if err != nil {
		return false, fmt.Errorf("counting failures: %w", err)
	}

	return failures >= int64(s.Threshold), nil
}

// RetryAfter reports how long until the oldest failure in the window ages
// out, i.e. the earliest moment the key could unblock.
func (s *RateLimitService) RetryAfter(ctx context.Context, key string) time.Duration {
	cutoff := time.Now().UTC().Add(-s.Window)

	var oldest models.LoginAttempt
	err := s.DB.WithContext(ctx).
		Where("subject_key = ? AND success = ? AND created_at >= ?", key, false, cutoff).
		Order("created_at ASC").
		First(&oldest).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("retry_after_lookup_failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return 0
	}

	remaining := time.Until(oldest.CreatedAt.Add(s.Window))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CleanupExpiredAttempts removes attempt rows older than the window across
// all keys.
func CleanupExpiredAttempts(db *gorm.DB, window time.Duration) {
	db.Where("created_at < ?", time.Now().UTC().Add(-window)).Delete(&models.LoginAttempt{})
}
