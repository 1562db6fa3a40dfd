package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

// Token prefixes distinguish the two token families on the wire. Neither
// carries any meaning beyond routing a presented token to the right table.
const (
	sessionTokenPrefix = "lws_"
	pendingTokenPrefix = "lwp_"
)

// Origin is the request metadata bound to an issued session.
type Origin struct {
	IP        string
	UserAgent string
}

// SessionService issues, validates and revokes server-side sessions. Only
// the SHA-256 hash of a token is stored; expiry is fixed at issuance and
// checked lazily by timestamp comparison, never by background sweeps.
type SessionService struct {
	DB  *gorm.DB
	TTL time.Duration
}

func NewSessionService(db *gorm.DB, ttl time.Duration) *SessionService {
	return &SessionService{DB: db, TTL: ttl}
}

// Issue mints a new session and returns the raw bearer token exactly once.
func (s *SessionService) Issue(ctx context.Context, userID uuid.UUID, twoFAComplete bool, origin Origin) (string, *models.Session, error) {
	rawToken, err := utils.GenerateToken(sessionTokenPrefix)
	if err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}

	now := time.Now().UTC()
	session := models.Session{
		UserID:        userID,
		TokenHash:     utils.HashToken(rawToken),
		TwoFAComplete: twoFAComplete,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.TTL),
		IPAddress:     origin.IP,
		UserAgent:     origin.UserAgent,
	}

	if err := s.DB.WithContext(ctx).Create(&session).Error; err != nil {
		return "", nil, fmt.Errorf("saving session: %w", err)
	}

	return rawToken, &session, nil
}

// Validate resolves a presented token. It distinguishes ErrSessionExpired
// from ErrSessionNotFound so callers can tell a stale client from a bogus
// token; the stored record is not mutated either way.
func (s *SessionService) Validate(ctx context.Context, rawToken string, now time.Time) (*models.Session, error) {
	var session models.Session
	err := s.DB.WithContext(ctx).First(&session, "token_hash = ?", utils.HashToken(rawToken)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	if now.After(session.ExpiresAt) || now.Equal(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// Revoke deletes the session for a raw token. Revoking an unknown or already
// revoked token is a no-op.
func (s *SessionService) Revoke(ctx context.Context, rawToken string) error {
	err := s.DB.WithContext(ctx).
		Where("token_hash = ?", utils.HashToken(rawToken)).
		Delete(&models.Session{}).Error
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeByID deletes one of a user's sessions by record id.
func (s *SessionService) RevokeByID(ctx context.Context, userID, sessionID uuid.UUID) (bool, error) {
	result := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.Session{})
	if result.Error != nil {
		return false, fmt.Errorf("revoking session: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// RevokeAllForUser deletes every session belonging to a user except the one
// matching keepTokenHash (pass "" to revoke all). Used on password change
// and account deactivation.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID uuid.UUID, keepTokenHash string) error {
	query := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if keepTokenHash != "" {
		query = query.Where("token_hash <> ?", keepTokenHash)
	}
	if err := query.Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	return nil
}

// ListForUser returns a user's sessions that are still live at now.
func (s *SessionService) ListForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("issued_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// PurgeExpiredSessions opportunistically removes rows past expiry. Expired
// sessions are already invalid without this; it only bounds table growth.
func PurgeExpiredSessions(db *gorm.DB) {
	db.Where("expires_at < ?", time.Now().UTC()).Delete(&models.Session{})
}
