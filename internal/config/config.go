package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev-secret-change-in-production"

var ErrInsecureSecret = errors.New("JWT_SECRET must be set in production environment")

type Config struct {
	Port        string
	Env         string
	DatabaseDSN string

	JWTSecret     string
	JWTExpiry     time.Duration
	ResetTokenTTL time.Duration

	FrontendURL string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	MailFrom    string
	MailTimeout time.Duration

	LogFormat string
	LogLevel  string

	SeedAdminEmail    string
	SeedAdminPassword string

	CORSOrigins []string
}

func Load() (Config, error) {
	cfg := Config{
		Port:              getEnv("PORT", "4000"),
		Env:               getEnv("ENV", "development"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "root:password@tcp(127.0.0.1:3306)/storefront"),
		JWTSecret:         getEnv("JWT_SECRET", devJWTSecret),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:3000"),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPass:          getEnv("SMTP_PASS", ""),
		MailFrom:          getEnv("MAIL_FROM", ""),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
		CORSOrigins:       getList("CORS_ORIGINS", []string{"*"}),
	}

	var err error
	if cfg.JWTExpiry, err = getDuration("JWT_EXPIRY", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ResetTokenTTL, err = getDuration("RESET_TOKEN_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.MailTimeout, err = getDuration("MAIL_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}

	if cfg.Env == "production" && cfg.JWTSecret == devJWTSecret {
		return Config{}, ErrInsecureSecret
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, v)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
