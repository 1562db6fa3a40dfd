package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/pkg/utils"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

const (
	totpPeriod = 30
	totpDigits = 6
	// totpSkew is the number of adjacent time steps accepted on either side
	// of the current one, tolerating client clock drift up to one period.
	totpSkew = 1
)

// TOTPService generates authenticator-app secrets and verifies time-based
// codes. Verification tracks the last accepted time step per credential, so
// an intercepted code cannot be replayed within its validity window.
type TOTPService struct {
	DB     *gorm.DB
	Issuer string
}

func NewTOTPService(db *gorm.DB, issuer string) *TOTPService {
	return &TOTPService{DB: db, Issuer: issuer}
}

// GenerateSecret starts (or restarts) TOTP enrollment for a user. The
// credential stays disabled until Confirm proves the user's authenticator
// produces matching codes; a disabled credential never authenticates.
func (s *TOTPService) GenerateSecret(ctx context.Context, user *models.User) (secret, provisioningURI string, err error) {
	var existing models.TOTPCredential
	lookupErr := s.DB.WithContext(ctx).First(&existing, "user_id = ?", user.ID).Error
	if lookupErr == nil && existing.Enabled {
		return "", "", ErrTOTPAlreadyEnabled
	}
	if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return "", "", fmt.Errorf("loading totp credential: %w", lookupErr)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return "", "", fmt.Errorf("generating totp secret: %w", err)
	}

	encrypted, err := utils.EncryptAESGCM(key.Secret())
	if err != nil {
		return "", "", fmt.Errorf("encrypting totp secret: %w", err)
	}

	if lookupErr == nil {
		err = s.DB.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
			"secret":            encrypted,
			"enabled":           false,
			"confirmed_at":      nil,
			"last_used_counter": 0,
		}).Error
	} else {
		err = s.DB.WithContext(ctx).Create(&models.TOTPCredential{
			UserID: user.ID,
			Secret: encrypted,
		}).Error
	}
	if err != nil {
		return "", "", fmt.Errorf("saving totp credential: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// Confirm enables an enrolled credential after the user submits a code
// matching the freshly provisioned secret.
func (s *TOTPService) Confirm(ctx context.Context, user *models.User, code string, now time.Time) error {
	var cred models.TOTPCredential
	if err := s.DB.WithContext(ctx).First(&cred, "user_id = ?", user.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTOTPNotConfigured
		}
		return fmt.Errorf("loading totp credential: %w", err)
	}

	if cred.Enabled {
		return ErrTOTPAlreadyEnabled
	}

	secret := utils.DecryptOrPlaintext(cred.Secret)
	counter, ok := matchCode(secret, code, now)
	if !ok {
		return ErrInvalidSecondFactor
	}

	confirmedAt := now.UTC()
	if err := s.DB.WithContext(ctx).Model(&cred).Updates(map[string]interface{}{
		"enabled":           true,
		"confirmed_at":      confirmedAt,
		"last_used_counter": counter,
	}).Error; err != nil {
		return fmt.Errorf("enabling totp credential: %w", err)
	}

	return nil
}

// Verify checks a submitted code against an enabled credential, accepting the
// current 30-second step and one step on either side. The matched step is
// recorded so the same (or an earlier) step can never be accepted again; the
// record happens with a conditional update, so two concurrent requests
// carrying the same code cannot both pass.
func (s *TOTPService) Verify(ctx context.Context, cred *models.TOTPCredential, code string, now time.Time) (bool, error) {
	if !cred.Enabled {
		return false, nil
	}

	secret := utils.DecryptOrPlaintext(cred.Secret)
	counter, ok := matchCode(secret, code, now)
	if !ok {
		return false, nil
	}

	if counter <= cred.LastUsedCounter {
		return false, nil
	}

	result := s.DB.WithContext(ctx).Model(&models.TOTPCredential{}).
		Where("id = ? AND last_used_counter < ?", cred.ID, counter).
		Update("last_used_counter", counter)
	if result.Error != nil {
		return false, fmt.Errorf("recording totp step: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race to a concurrent request using the same step.
		return false, nil
	}

	cred.LastUsedCounter = counter
	return true, nil
}

// Credential loads a user's TOTP credential, or nil when none exists.
func (s *TOTPService) Credential(ctx context.Context, userID interface{}) (*models.TOTPCredential, error) {
	var cred models.TOTPCredential
	err := s.DB.WithContext(ctx).First(&cred, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading totp credential: %w", err)
	}
	return &cred, nil
}

// IsTOTPFormat reports whether a submitted second-factor code has the shape
// of a TOTP code (exactly six digits). Backup codes are 16 hex characters,
// so the two verification paths never overlap.
func IsTOTPFormat(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// matchCode compares a normalized submitted code against the expected codes
// for the current step and its adjacent steps, returning the matched step.
func matchCode(secret, submitted string, now time.Time) (int64, bool) {
	submitted = strings.TrimSpace(submitted)
	if !IsTOTPFormat(submitted) {
		return 0, false
	}

	step := now.Unix() / totpPeriod
	for offset := int64(-totpSkew); offset <= totpSkew; offset++ {
		candidate := step + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(candidate*totpPeriod, 0), totp.ValidateOpts{
			Period:    totpPeriod,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1 {
			return candidate, true
		}
	}

	return 0, false
}
