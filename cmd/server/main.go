package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/loanworks/backend/internal/config"
	"github.com/loanworks/backend/internal/database"
	"github.com/loanworks/backend/internal/handlers"
	"github.com/loanworks/backend/internal/middleware"
	"github.com/loanworks/backend/internal/observability/metrics"
	"github.com/loanworks/backend/internal/services"
	"github.com/loanworks/backend/pkg/logger"
	"github.com/loanworks/backend/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureEncryption(cfg.Auth.Secret)
	metrics.MustRegister()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	credentialService := services.NewCredentialService(db)
	totpService := services.NewTOTPService(db, cfg.Auth.TOTPIssuer)
	backupCodeService := services.NewBackupCodeService(db)
	rateLimitService := services.NewRateLimitService(db, cfg.RateLimit.Window, cfg.RateLimit.Threshold)
	sessionService := services.NewSessionService(db, cfg.Auth.SessionTTL)
	loginService := services.NewLoginService(db, credentialService, totpService, backupCodeService, rateLimitService, sessionService, cfg.Auth.PendingTTL)
	auditService := services.NewAuditService(db)

	authHandler := handlers.NewAuthHandler(db, loginService, sessionService, auditService)
	mfaHandler := handlers.NewMFAHandler(db, totpService, backupCodeService, auditService)
	sessionsHandler := handlers.NewSessionsHandler(db, sessionService, auditService)
	usersHandler := handlers.NewUsersHandler(db, sessionService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db, sessionService)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	authRoutes := api.Group("/auth", middleware.Throttle(rate.Limit(10), 20))
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

	stopCleanup := startCleanup(db, cfg.RateLimit.Window)
	defer close(stopCleanup)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

// startCleanup opportunistically purges rows that are already invalid by
// timestamp: expired sessions, expired pending logins and attempt rows past
// the rate-limit window. Correctness never depends on this loop.
func startCleanup(db *gorm.DB, attemptWindow time.Duration) chan struct{} {
	stop := make(chan struct{})
	ticker := time.NewTicker(10 * time.Minute)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				services.PurgeExpiredSessions(db)
				services.CleanupExpiredPendingLogins(db)
				services.CleanupExpiredAttempts(db, attemptWindow)
			case <-stop:
				return
			}
		}
	}()

	return stop
}
