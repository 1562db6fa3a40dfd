package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/internal/observability/metrics"
	"github.com/loanworks/backend/pkg/logger"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

// LoginOutcome tags the result of a login step.
type LoginOutcome string

const (
	// OutcomeAuthenticated means a full session was issued.
	OutcomeAuthenticated LoginOutcome = "authenticated"
	// OutcomePending means the password was verified and a second factor is
	// outstanding.
	OutcomePending LoginOutcome = "pending"
)

// LoginResult is the tagged union returned by the login protocol. Exactly
// one branch is populated, selected by Outcome.
type LoginResult struct {
	Outcome LoginOutcome

	// Authenticated branch.
	Token   string
	Session *models.Session
	User    *models.User

	// Pending branch.
	PendingToken     string
	PendingExpiresAt time.Time
}

// LoginService orchestrates the multi-step login protocol:
//
//	password -> (optional second factor) -> issued session
//
// composing the credential, rate-limit, TOTP, backup-code and session
// services. All attempt logging happens here.
type LoginService struct {
	DB          *gorm.DB
	Credentials *CredentialService
	TOTP        *TOTPService
	BackupCodes *BackupCodeService
	RateLimit   *RateLimitService
	Sessions    *SessionService
	PendingTTL  time.Duration
}

func NewLoginService(
	db *gorm.DB,
	credentials *CredentialService,
	totpService *TOTPService,
	backupCodes *BackupCodeService,
	rateLimit *RateLimitService,
	sessions *SessionService,
	pendingTTL time.Duration,
) *LoginService {
	return &LoginService{
		DB:          db,
		Credentials: credentials,
		TOTP:        totpService,
		BackupCodes: backupCodes,
		RateLimit:   rateLimit,
		Sessions:    sessions,
		PendingTTL:  pendingTTL,
	}
}

// Authenticate runs the password step. Accounts with a confirmed TOTP
// credential receive a short-lived pending token instead of a session.
func (s *LoginService) Authenticate(ctx context.Context, email, password string, origin Origin) (*LoginResult, error) {
	key := AttemptKey(email, origin.IP)

	if err := s.checkBlocked(ctx, key); err != nil {
		return nil, err
	}

	user, err := s.Credentials.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			if recordErr := s.RateLimit.RecordAttempt(ctx, key, false); recordErr != nil {
				logger.Error("attempt_record_failed", recordErr, map[string]interface{}{"key": key})
			}
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		}
		return nil, err
	}

	cred, err := s.TOTP.Credential(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if cred == nil || !cred.Enabled {
		if err := s.RateLimit.RecordAttempt(ctx, key, true); err != nil {
			logger.Error("attempt_record_failed", err, map[string]interface{}{"key": key})
		}
		return s.issueSession(ctx, user, origin)
	}

	rawToken, err := utils.GenerateToken(pendingTokenPrefix)
	if err != nil {
		return nil, fmt.Errorf("generating pending token: %w", err)
	}

	pending := models.PendingLogin{
		UserID:    user.ID,
		TokenHash: utils.HashToken(rawToken),
		ExpiresAt: time.Now().UTC().Add(s.PendingTTL),
		IPAddress: origin.IP,
	}
	if err := s.DB.WithContext(ctx).Create(&pending).Error; err != nil {
		return nil, fmt.Errorf("saving pending login: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("pending_second_factor").Inc()
	logger.Info("login_second_factor_pending", map[string]interface{}{
		"user_id": user.ID.String(),
		"ip":      origin.IP,
	})

	return &LoginResult{
		Outcome:          OutcomePending,
		PendingToken:     rawToken,
		PendingExpiresAt: pending.ExpiresAt,
	}, nil
}

// CompleteSecondFactor runs the second step. A failed code leaves the
// pending login intact so the user may retry until it expires or the rate
// limiter blocks the key; success destroys it and issues a fresh session.
func (s *LoginService) CompleteSecondFactor(ctx context.Context, pendingToken, code string, origin Origin) (*LoginResult, error) {
	var pending models.PendingLogin
	err := s.DB.WithContext(ctx).First(&pending, "token_hash = ?", utils.HashToken(pendingToken)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("loading pending login: %w", err)
	}

	now := time.Now().UTC()
	if now.After(pending.ExpiresAt) {
		s.DB.WithContext(ctx).Delete(&pending)
		return nil, ErrSessionExpired
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", pending.UserID).Error; err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !user.Active {
		s.DB.WithContext(ctx).Delete(&pending)
		return nil, ErrSessionExpired
	}

	key := AttemptKey(user.Email, origin.IP)
	if err := s.checkBlocked(ctx, key); err != nil {
		return nil, err
	}

	verified, method, err := s.verifySecondFactor(ctx, &user, code, now)
	if err != nil {
		return nil, err
	}

	if !verified {
		if recordErr := s.RateLimit.RecordAttempt(ctx, key, false); recordErr != nil {
			logger.Error("attempt_record_failed", recordErr, map[string]interface{}{"key": key})
		}
		metrics.SecondFactorTotal.WithLabelValues(method, "failure").Inc()
		return nil, ErrInvalidSecondFactor
	}

	// The pending login is consumed exactly once; losing this delete to a
	// concurrent completion means the other request already finished.
	result := s.DB.WithContext(ctx).Where("id = ?", pending.ID).Delete(&models.PendingLogin{})
	if result.Error != nil {
		return nil, fmt.Errorf("consuming pending login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrSessionExpired
	}

	if err := s.RateLimit.RecordAttempt(ctx, key, true); err != nil {
		logger.Error("attempt_record_failed", err, map[string]interface{}{"key": key})
	}
	metrics.SecondFactorTotal.WithLabelValues(method, "success").Inc()

	return s.issueSession(ctx, &user, origin)
}

func (s *LoginService) verifySecondFactor(ctx context.Context, user *models.User, code string, now time.Time) (bool, string, error) {
	if IsTOTPFormat(code) {
		cred, err := s.TOTP.Credential(ctx, user.ID)
		if err != nil {
			return false, "totp", err
		}
		if cred == nil {
			return false, "totp", nil
		}
		ok, err := s.TOTP.Verify(ctx, cred, code, now)
		return ok, "totp", err
	}

	ok, err := s.BackupCodes.Redeem(ctx, user.ID, code)
	return ok, "backup_code", err
}

func (s *LoginService) issueSession(ctx context.Context, user *models.User, origin Origin) (*LoginResult, error) {
	rawToken, session, err := s.Sessions.Issue(ctx, user.ID, true, origin)
	if err != nil {
		return nil, err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.SessionsIssuedTotal.Inc()
	logger.Info("login_succeeded", map[string]interface{}{
		"user_id":    user.ID.String(),
		"ip":         origin.IP,
		"expires_at": session.ExpiresAt,
	})

	return &LoginResult{
		Outcome: OutcomeAuthenticated,
		Token:   rawToken,
		Session: session,
		User:    user,
	}, nil
}

func (s *LoginService) checkBlocked(ctx context.Context, key string) error {
	blocked, err := s.RateLimit.IsBlocked(ctx, key)
	if err != nil {
		return err
	}
	if blocked {
		metrics.RateLimitedTotal.Inc()
		metrics.LoginsTotal.WithLabelValues("rate_limited").Inc()
		return &RateLimitError{RetryAfter: s.RateLimit.RetryAfter(ctx, key)}
	}
	return nil
}

// CleanupExpiredPendingLogins removes pending logins past their expiry.
func CleanupExpiredPendingLogins(db *gorm.DB) {
	db.Where("expires_at < ?", time.Now().UTC()).Delete(&models.PendingLogin{})
}
