package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB        DBConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type ServerConfig struct {
	Port string
}

type AuthConfig struct {
	// Secret derives the AES key protecting TOTP secrets at rest.
	Secret string
	// SessionTTL is the fixed, non-renewable lifetime of a session.
	SessionTTL time.Duration
	// PendingTTL bounds how long a second factor may remain outstanding.
	PendingTTL time.Duration
	// TOTPIssuer is the issuer name shown in authenticator apps.
	TOTPIssuer string
}

type RateLimitConfig struct {
	Window    time.Duration
	Threshold int
}

func Load() *Config {
	// Missing .env files are fine; the environment wins either way.
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "loanworks"),
			Password: getEnv("DB_PASSWORD", "loanworks_secret"),
			Name:     getEnv("DB_NAME", "loanworks"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Auth: AuthConfig{
			Secret:     getEnv("AUTH_SECRET", "change-me-in-production"),
			SessionTTL: getEnvAsDuration("SESSION_TTL", time.Hour),
			PendingTTL: getEnvAsDuration("PENDING_LOGIN_TTL", 10*time.Minute),
			TOTPIssuer: getEnv("TOTP_ISSUER", "LoanWorks"),
		},
		RateLimit: RateLimitConfig{
			Window:    getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			Threshold: getEnvAsInt("RATE_LIMIT_THRESHOLD", 5),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
