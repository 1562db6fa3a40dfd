package services

import (
	"errors"
	"fmt"
	"time"
)

// Authentication failures the surrounding system is expected to branch on.
// Handlers map these to HTTP status classes; anything else coming out of the
// service layer is an infrastructure failure and must NOT be presented to
// clients as an authentication error.
var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// deactivated accounts alike, so responses cannot be used to enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidSecondFactor covers bad TOTP codes and bad or already-used
	// backup codes.
	ErrInvalidSecondFactor = errors.New("invalid second factor code")

	// ErrSessionExpired means a pending or full session is past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionNotFound means the presented token matches no record.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManyAttempts is the rate-limit sentinel; the concrete error is a
	// *RateLimitError carrying retry-after guidance.
	ErrTooManyAttempts = errors.New("too many attempts")

	ErrTOTPAlreadyEnabled = errors.New("totp is already enabled")
	ErrTOTPNotConfigured  = errors.New("totp is not configured")
)

// RateLimitError reports a blocked key together with how long the caller
// should wait before the oldest failure leaves the window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrTooManyAttempts
}
