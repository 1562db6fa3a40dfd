package api

import "time"

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
}

// LoginData is the payload of POST /auth/login and /auth/login/2fa. Exactly
// one of the two shapes is populated: a pending grant when a second factor
// is still required, or a full session otherwise.
type LoginData struct {
	MFARequired  bool      `json:"mfaRequired"`
	PendingToken string    `json:"pendingToken"`
	Token        string    `json:"token"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
}

type MeData struct {
	IdentityID    string    `json:"identityId"`
	Role          string    `json:"role"`
	TwoFAComplete bool      `json:"twoFAComplete"`
	ExpiresAt     time.Time `json:"expiresAt"`
	User          User      `json:"user"`
}

type SessionInfo struct {
	ID            string    `json:"id"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `json:"userAgent"`
	TwoFAComplete bool      `json:"twoFAComplete"`
	Current       bool      `json:"current"`
}
