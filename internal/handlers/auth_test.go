package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/internal/services"
)

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("rejects malformed json", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPost, "/api/auth/register", strings.NewReader("{"), map[string]string{
			"Content-Type": "application/json",
		})
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "invalid request body")
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":     "not-an-email",
			"password":  "longenough",
			"firstName": "Ada",
			"lastName":  "Lovelace",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "a valid email is required")
	})

	t.Run("rejects short password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":     "ada@example.com",
			"password":  "short",
			"firstName": "Ada",
			"lastName":  "Lovelace",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "password must be at least 8 characters")
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		createTestUser(t, env, "taken@example.com", "password123", models.UserRoleUser)

		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":     "Taken@Example.com",
			"password":  "password123",
			"firstName": "Ada",
			"lastName":  "Lovelace",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "email is already registered")
	})
}

func TestLoginWithoutSecondFactor(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env, "plain@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "plain@example.com",
		"password": "password123",
	}, nil)
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", body["data"])
	}
	if _, present := data["mfaRequired"]; present {
		t.Fatalf("expected direct session, got pending response: %+v", data)
	}

	token, _ := data["token"].(string)
	if !strings.HasPrefix(token, "lws_") {
		t.Fatalf("expected session token with lws_ prefix, got %q", token)
	}

	meResp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
	meBody := decodeJSONMap(t, meResp)
	assertStatus(t, meResp, http.StatusOK)

	meData := meBody["data"].(map[string]any)
	if meData["twoFAComplete"] != true {
		t.Fatalf("expected twoFAComplete=true, got %v", meData["twoFAComplete"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env, "victim@example.com", "password123", models.UserRoleUser)

	for _, email := range []string{"victim@example.com", "nobody@example.com"} {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    email,
			"password": "wrongpassword",
		}, nil)
		body := decodeJSONMap(t, resp)

		// Unknown account and wrong password are indistinguishable.
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid email or password")
	}
}

func TestLoginSecondFactorFlow(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env, "mfa@example.com", "password123", models.UserRoleUser)
	secret, _ := enableTOTP(t, env, user)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "mfa@example.com",
		"password": "password123",
	}, nil)
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := body["data"].(map[string]any)
	if data["mfaRequired"] != true {
		t.Fatalf("expected mfaRequired=true, got %+v", data)
	}
	if _, present := data["token"]; present {
		t.Fatalf("no session token may be issued before the second factor: %+v", data)
	}

	pendingToken, _ := data["pendingToken"].(string)
	if !strings.HasPrefix(pendingToken, "lwp_") {
		t.Fatalf("expected pending token with lwp_ prefix, got %q", pendingToken)
	}

	t.Run("wrong code is rejected and pending grant survives", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/2fa", map[string]any{
			"pendingToken": pendingToken,
			"code":         "000000",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid second factor code")
	})

	var sessionToken string
	t.Run("valid code completes the login", func(t *testing.T) {
		code := totpCodeAt(t, secret, time.Now().Add(30*time.Second))
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/2fa", map[string]any{
			"pendingToken": pendingToken,
			"code":         code,
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		data := body["data"].(map[string]any)
		sessionToken, _ = data["token"].(string)
		if !strings.HasPrefix(sessionToken, "lws_") {
			t.Fatalf("expected session token, got %q", sessionToken)
		}
	})

	t.Run("pending grant is consumed", func(t *testing.T) {
		code := totpCodeAt(t, secret, time.Now().Add(30*time.Second))
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/2fa", map[string]any{
			"pendingToken": pendingToken,
			"code":         code,
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid or expired session")
	})

	t.Run("issued session works", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(sessionToken))
		assertStatus(t, resp, http.StatusOK)
	})
}

func TestLoginRateLimit(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env, "limited@example.com", "password123", models.UserRoleUser)

	for i := 0; i < 5; i++ {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "limited@example.com",
			"password": "wrongpassword",
		}, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	}

	t.Run("sixth attempt is blocked", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "limited@example.com",
			"password": "wrongpassword",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusTooManyRequests)
		assertEnvelopeError(t, body, "too many attempts")
		if resp.Header.Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header on 429 response")
		}
	})

	t.Run("correct password is also blocked", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "limited@example.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusTooManyRequests)
		assertEnvelopeError(t, body, "too many attempts")
	})

	t.Run("other accounts are unaffected", func(t *testing.T) {
		createTestUser(t, env, "bystander@example.com", "password123", models.UserRoleUser)

		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "bystander@example.com",
			"password": "password123",
		}, nil)
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})
}

func TestBackupCodeLogin(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env, "recovery@example.com", "password123", models.UserRoleUser)
	_, codes := enableTOTP(t, env, user)

	loginPending := func(t *testing.T) string {
		t.Helper()
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "recovery@example.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		pendingToken, _ := data["pendingToken"].(string)
		return pendingToken
	}

	t.Run("backup code completes the login", func(t *testing.T) {
		pendingToken := loginPending(t)
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/2fa", map[string]any{
			"pendingToken": pendingToken,
			"code":         codes[0],
		}, nil)
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})

	t.Run("a redeemed code never works again", func(t *testing.T) {
		pendingToken := loginPending(t)
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/2fa", map[string]any{
			"pendingToken": pendingToken,
			"code":         codes[0],
		}, nil)
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid second factor code")
	})

	t.Run("remaining codes still work", func(t *testing.T) {
		pendingToken := loginPending(t)
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/2fa", map[string]any{
			"pendingToken": pendingToken,
			"code":         codes[1],
		}, nil)
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env, "leaver@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/logout", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	meResp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
	assertStatus(t, meResp, http.StatusUnauthorized)
	meResp.Body.Close()

	// A second logout with the dead token still answers OK.
	again := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/logout", nil, authHeaders(token))
	assertStatus(t, again, http.StatusOK)
	again.Body.Close()
}

func TestExpiredSessionRejected(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env, "sleeper@example.com", "password123", models.UserRoleUser)

	err := env.db.Model(&models.Session{}).
		Where("user_id = ?", user.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("failed backdating session: %v", err)
	}

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
	body := decodeJSONMap(t, resp)

	assertStatus(t, resp, http.StatusUnauthorized)
	assertEnvelopeError(t, body, "session expired")
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env, "rotator@example.com", "password123", models.UserRoleUser)

	otherToken, _, err := env.sessions.Issue(context.Background(), user.ID, true, services.Origin{IP: "10.0.0.2", UserAgent: "other-device"})
	if err != nil {
		t.Fatalf("failed issuing second session: %v", err)
	}

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
		"currentPassword": "password123",
		"newPassword":     "password456",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	t.Run("other session is revoked", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(otherToken))
		assertStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	})

	t.Run("current session survives", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})

	t.Run("new password logs in", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "rotator@example.com",
			"password": "password456",
		}, nil)
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})
}
