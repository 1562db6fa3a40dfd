package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/loanworks/backend/internal/database"
	"github.com/loanworks/backend/internal/middleware"
	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/internal/observability/metrics"
	"github.com/loanworks/backend/internal/services"
	"github.com/loanworks/backend/pkg/logger"
	"github.com/loanworks/backend/pkg/utils"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

type testEnv struct {
	app         *fiber.App
	db          *gorm.DB
	sessions    *services.SessionService
	totp        *services.TOTPService
	backupCodes *services.BackupCodeService
	login       *services.LoginService
	rateLimit   *services.RateLimitService
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureEncryption("test-secret")
		metrics.MustRegister()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	credentialService := services.NewCredentialService(db)
	totpService := services.NewTOTPService(db, "LoanWorks")
	backupCodeService := services.NewBackupCodeService(db)
	rateLimitService := services.NewRateLimitService(db, 15*time.Minute, 5)
	sessionService := services.NewSessionService(db, time.Hour)
	loginService := services.NewLoginService(db, credentialService, totpService, backupCodeService, rateLimitService, sessionService, 10*time.Minute)
	auditService := services.NewAuditService(db)

	authHandler := NewAuthHandler(db, loginService, sessionService, auditService)
	mfaHandler := NewMFAHandler(db, totpService, backupCodeService, auditService)
	sessionsHandler := NewSessionsHandler(db, sessionService, auditService)
	usersHandler := NewUsersHandler(db, sessionService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db, sessionService)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.LoginPassword)
	authRoutes.Post("/login/2fa", authHandler.CompleteSecondFactor)
	authRoutes.Post("/logout", authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	mfaRoutes := api.Group("/auth/mfa", authMiddleware.RequireAuth)
	mfaRoutes.Get("/status", mfaHandler.Status)
	mfaRoutes.Post("/totp/setup", mfaHandler.TOTPSetup)
	mfaRoutes.Post("/totp/confirm", mfaHandler.TOTPConfirm)
	mfaRoutes.Post("/totp/disable", mfaHandler.TOTPDisable)
	mfaRoutes.Post("/backup-codes/regenerate", mfaHandler.RegenerateBackupCodes)

	sessionRoutes := api.Group("/auth/sessions", authMiddleware.RequireAuth)
	sessionRoutes.Get("/", sessionsHandler.List)
	sessionRoutes.Delete("/:id", sessionsHandler.Revoke)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id/deactivate", usersHandler.Deactivate)

	return &testEnv{
		app:         app,
		db:          db,
		sessions:    sessionService,
		totp:        totpService,
		backupCodes: backupCodeService,
		login:       loginService,
		rateLimit:   rateLimitService,
	}
}

func createTestUser(t *testing.T, env *testEnv, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Active:       true,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, _, err := env.sessions.Issue(context.Background(), user.ID, true, services.Origin{IP: "127.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("failed issuing session: %v", err)
	}

	return user, token
}

// enableTOTP enrolls and confirms a TOTP credential for the user, returning
// the shared secret and the backup code batch.
func enableTOTP(t *testing.T, env *testEnv, user *models.User) (string, []string) {
	t.Helper()

	secret, _, err := env.totp.GenerateSecret(context.Background(), user)
	if err != nil {
		t.Fatalf("failed generating totp secret: %v", err)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("failed generating totp code: %v", err)
	}
	if err := env.totp.Confirm(context.Background(), user, code, time.Now()); err != nil {
		t.Fatalf("failed confirming totp credential: %v", err)
	}

	codes, err := env.backupCodes.Regenerate(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed generating backup codes: %v", err)
	}

	return secret, codes
}

// totpCodeAt returns the code an authenticator would show at the given time.
func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("failed generating totp code: %v", err)
	}
	return code
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
