package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort                   = "8080"
	DefaultAccessTokenExpiryMin   = 15
	DefaultRefreshTokenExpiryMin  = 10080
	DefaultLoginMaxAttempts       = 5
	DefaultLoginLockoutMin        = 15
	DefaultLoginIPLimit           = 10
	DefaultLoginIPWindowSec       = 300
	DefaultDupCheckLimit          = 20
	DefaultDupCheckWindowSec      = 60
	DefaultMaxActiveSessions      = 5
	DefaultBcryptCost             = 12
	DefaultVerificationExpirySec  = 3600
	DefaultLoginAttemptsWindowSec = 900
)

type Config struct {
	Env  string
	Port string

	DBURL     string
	RedisAddr string
	RedisPass string
	RedisDB   int

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessExpiryMin    int
	RefreshExpiryMin   int

	LoginMaxAttempts       int
	LoginLockoutMin        int
	LoginIPLimit           int
	LoginIPWindowSec       int
	DupCheckLimit          int
	DupCheckWindowSec      int
	MaxActiveSessions      int
	BcryptCost             int
	VerificationExpirySec  int
	LoginAttemptsWindowSec int

	FrontendURL string
	SMTPHost    string
	SMTPPort    string
	SMTPFrom    string

	RunMigrations bool
}

// Load reads config/.env.dev or config/.env.prod depending on ENV, then lets
// real environment variables take precedence. Missing required keys are
// fatal at startup.
func Load() *Config {
	env := getEnv("ENV", "development")

	envFile := "config/.env.dev"
	if env == "production" {
		envFile = "config/.env.prod"
	}
	// Absent file is fine; env vars may carry everything.
	_ = godotenv.Load(envFile)

	return &Config{
		Env:  env,
		Port: getEnv("PORT", DefaultPort),

		DBURL:     mustGetEnv("DB_URL"),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass: getEnv("REDIS_PASSWORD", ""),
		RedisDB:   getEnvAsInt("REDIS_DB", 0),

		AccessTokenSecret:  mustGetEnv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: mustGetEnv("REFRESH_TOKEN_SECRET"),
		AccessExpiryMin:    getEnvAsInt("ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiryMin),
		RefreshExpiryMin:   getEnvAsInt("REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiryMin),

		LoginMaxAttempts:       getEnvAsInt("LOGIN_MAX_ATTEMPTS", DefaultLoginMaxAttempts),
		LoginLockoutMin:        getEnvAsInt("LOGIN_LOCKOUT_MINUTES", DefaultLoginLockoutMin),
		LoginIPLimit:           getEnvAsInt("LOGIN_IP_LIMIT", DefaultLoginIPLimit),
		LoginIPWindowSec:       getEnvAsInt("LOGIN_IP_WINDOW_SECONDS", DefaultLoginIPWindowSec),
		DupCheckLimit:          getEnvAsInt("DUP_CHECK_LIMIT", DefaultDupCheckLimit),
		DupCheckWindowSec:      getEnvAsInt("DUP_CHECK_WINDOW_SECONDS", DefaultDupCheckWindowSec),
		MaxActiveSessions:      getEnvAsInt("MAX_ACTIVE_SESSIONS", DefaultMaxActiveSessions),
		BcryptCost:             getEnvAsInt("BCRYPT_COST", DefaultBcryptCost),
		VerificationExpirySec:  getEnvAsInt("VERIFICATION_TOKEN_EXPIRY", DefaultVerificationExpirySec),
		LoginAttemptsWindowSec: getEnvAsInt("LOGIN_ATTEMPTS_WINDOW_SECONDS", DefaultLoginAttemptsWindowSec),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:4000"),
		SMTPHost:    getEnv("SMTP_HOST", ""),
		SMTPPort:    getEnv("SMTP_PORT", "587"),
		SMTPFrom:    getEnv("SMTP_FROM", "no-reply@shopping-mall.local"),

		RunMigrations: getEnv("RUN_MIGRATIONS", "false") == "true",
	}
}

// LoginAttemptWindow is how long failed-login counters (and therefore the
// lockout) live.
func (c *Config) LoginAttemptWindow() time.Duration {
	return time.Duration(c.LoginAttemptsWindowSec) * time.Second
}

func getEnv(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Fatalf("Missing required config: %s", key)
	return ""
}

func getEnvAsInt(key string, fallback int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, fallback)
		return fallback
	}
	return val
}
