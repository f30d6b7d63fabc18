package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "JWT_SECRET", "JWT_EXPIRY", "RESET_TOKEN_TTL", "MAIL_TIMEOUT", "SMTP_PORT", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, time.Hour, cfg.JWTExpiry)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 30*time.Second, cfg.MailTimeout)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_EXPIRY", "15m")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("CORS_ORIGINS", "https://shop.example.com, https://admin.example.com ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInsecureSecret)

	t.Setenv("JWT_SECRET", "a-real-secret")
	_, err = Load()
	assert.NoError(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"JWT_EXPIRY", "soon"},
		{"RESET_TOKEN_TTL", "-1h"},
		{"MAIL_TIMEOUT", "0s"},
		{"SMTP_PORT", "smtp"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}
