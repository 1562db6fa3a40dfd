package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

// dummyHash is compared against when no account matches the email, so the
// request takes roughly the same time as a wrong-password attempt.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// CredentialService verifies a password against the stored bcrypt hash.
// It is read-only: attempt logging is the login state machine's job.
type CredentialService struct {
	DB *gorm.DB
}

func NewCredentialService(db *gorm.DB) *CredentialService {
	return &CredentialService{DB: db}
}

// Verify returns the identity for a correct email/password pair. Unknown
// email, wrong password and deactivated accounts all produce the same
// ErrInvalidCredentials.
func (s *CredentialService) Verify(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)

	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.CheckPassword(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !utils.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
