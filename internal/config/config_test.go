package config

import (
	"testing"
	"time"

	"github.com/nitematch/nitematch/internal/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UNLOCK_AT", "2026-02-14T09:30:00+05:30")
	t.Setenv("OPERATING_TZ_OFFSET", "+05:30")
	t.Setenv("EMAIL_DOMAIN", "Campus.Example.EDU")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "campus.example.edu", cfg.EmailDomain)
	assert.Equal(t, 15*time.Minute, cfg.MagicLinkTTL)
	assert.Equal(t, MailDriverLog, cfg.MailDriver)
	assert.Equal(t, 0.75, cfg.Policy.Threshold)
	assert.Equal(t, 10, cfg.Policy.LimitFor(matching.Male))
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.False(t, cfg.OTel.Enabled)

	gate := cfg.Gate()
	assert.True(t, gate.IsUnlocked(time.Date(2026, 2, 14, 4, 0, 0, 0, time.UTC)))
	assert.False(t, gate.IsUnlocked(time.Date(2026, 2, 14, 3, 59, 59, 0, time.UTC)))
}

func TestLoad_GenderLimits(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MATCH_LIMIT_MALE", "3")
	t.Setenv("MATCH_LIMIT_FEMALE", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Policy.LimitFor(matching.Male))
	assert.Equal(t, 5, cfg.Policy.LimitFor(matching.Female))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unlock without offset", map[string]string{"UNLOCK_AT": "2026-02-14T09:30:00"}, "UNLOCK_AT"},
		{"missing unlock", map[string]string{"UNLOCK_AT": ""}, "UNLOCK_AT is required"},
		{"bad offset", map[string]string{"OPERATING_TZ_OFFSET": "IST"}, "OPERATING_TZ_OFFSET"},
		{"weights off", map[string]string{"WEIGHT_PSYCH": "0.5"}, "weights must sum to 1.0"},
		{"threshold range", map[string]string{"MATCH_THRESHOLD": "1.5"}, "threshold"},
		{"negative limit", map[string]string{"MATCH_LIMIT_DEFAULT": "-1"}, "must not be negative"},
		{"missing domain", map[string]string{"EMAIL_DOMAIN": ""}, "EMAIL_DOMAIN is required"},
		{"zero ttl", map[string]string{"SESSION_TTL": "0s"}, "SESSION_TTL must be positive"},
		{"bad duration", map[string]string{"MAGIC_LINK_TTL": "soon"}, "MAGIC_LINK_TTL"},
		{"bad integer", map[string]string{"REDIS_PORT": "six"}, "REDIS_PORT"},
		{"smtp without host", map[string]string{"MAIL_DRIVER": "smtp"}, "SMTP_HOST"},
		{"unknown driver", map[string]string{"MAIL_DRIVER": "pigeon"}, "unknown MAIL_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_SMTPDriver(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MAIL_DRIVER", "SMTP")
	t.Setenv("SMTP_HOST", "smtp.example.edu")
	t.Setenv("SMTP_FROM", "noreply@example.edu")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MailDriverSMTP, cfg.MailDriver)
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestLoad_OTelEnablesInstrumentation(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DB.Instrumented)
	assert.True(t, cfg.Redis.Instrumented)
}
