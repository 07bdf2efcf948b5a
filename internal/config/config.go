// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nitematch/nitematch/internal/cache"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/matching"
	"github.com/nitematch/nitematch/internal/notification"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/similarity"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// Mail drivers
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config is the full runtime configuration
type Config struct {
	HTTPAddr    string
	Environment string
	Version     string

	Log   telemetry.LogConfig
	OTel  telemetry.Config
	DB    database.Config
	Redis cache.RedisConfig

	// UnlockRaw keeps the configured string so Validate can report it.
	UnlockRaw string
	Unlock    time.Time
	Location  *time.Location

	EmailDomain string
	Policy      matching.Policy

	MagicLinkTTL  time.Duration
	SessionTTL    time.Duration
	MatchCacheTTL time.Duration

	BaseURL    string
	MailDriver string
	SMTP       notification.SMTPConfig

	MessageMaxLength int
	NoteMaxLength    int
}

// Load reads .env (when present) and the process environment. Parse failures
// are collected so a misconfigured deployment reports every bad key at once.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		HTTPAddr:    p.str("HTTP_ADDR", ":8080"),
		Environment: p.str("ENVIRONMENT", "development"),
		Version:     p.str("SERVICE_VERSION", "dev"),
		Log: telemetry.LogConfig{
			Level:      telemetry.LogLevel(strings.ToLower(p.str("LOG_LEVEL", "info"))),
			Format:     p.str("LOG_FORMAT", "json"),
			Output:     p.str("LOG_OUTPUT", "stdout"),
			Rotation:   p.boolean("LOG_ROTATION", false),
			MaxSize:    p.integer("LOG_MAX_SIZE_MB", 100),
			MaxBackups: p.integer("LOG_MAX_BACKUPS", 3),
			MaxAge:     p.integer("LOG_MAX_AGE_DAYS", 28),
			Compress:   p.boolean("LOG_COMPRESS", true),
		},
		DB: database.Config{
			Host:         p.str("DB_HOST", "localhost"),
			Port:         p.str("DB_PORT", "5432"),
			User:         p.str("DB_USER", "nitematch"),
			Password:     p.str("DB_PASSWORD", ""),
			DBName:       p.str("DB_NAME", "nitematch"),
			SSLMode:      p.str("DB_SSLMODE", "disable"),
			Instrumented: p.boolean("DB_INSTRUMENTED", false),
		},
		Redis: cache.RedisConfig{
			Host:     p.str("REDIS_HOST", "localhost"),
			Port:     p.integer("REDIS_PORT", 6379),
			Password: p.str("REDIS_PASSWORD", ""),
			DB:       p.integer("REDIS_DB", 0),
			PoolSize: p.integer("REDIS_POOL_SIZE", 10),
		},
		UnlockRaw:   p.str("UNLOCK_AT", ""),
		EmailDomain: strings.ToLower(strings.TrimSpace(p.str("EMAIL_DOMAIN", ""))),
		Policy: matching.Policy{
			Threshold:    p.float("MATCH_THRESHOLD", 0.75),
			DefaultLimit: p.integer("MATCH_LIMIT_DEFAULT", 10),
			GenderLimits: map[matching.Gender]int{},
			Weights: similarity.Weights{
				Psych:     p.float("WEIGHT_PSYCH", similarity.DefaultWeights.Psych),
				Interest:  p.float("WEIGHT_INTEREST", similarity.DefaultWeights.Interest),
				Situation: p.float("WEIGHT_SITUATION", similarity.DefaultWeights.Situation),
			},
			Schema: questionnaire.Current,
		},
		MagicLinkTTL:  p.duration("MAGIC_LINK_TTL", 15*time.Minute),
		SessionTTL:    p.duration("SESSION_TTL", 7*24*time.Hour),
		MatchCacheTTL: p.duration("MATCH_CACHE_TTL", 10*time.Minute),
		BaseURL:       strings.TrimRight(p.str("BASE_URL", "http://localhost:8080"), "/"),
		MailDriver:    strings.ToLower(p.str("MAIL_DRIVER", MailDriverLog)),
		SMTP: notification.SMTPConfig{
			Host:     p.str("SMTP_HOST", ""),
			Port:     p.integer("SMTP_PORT", 587),
			Username: p.str("SMTP_USERNAME", ""),
			Password: p.str("SMTP_PASSWORD", ""),
			From:     p.str("SMTP_FROM", ""),
		},
		MessageMaxLength: p.integer("MESSAGE_MAX_LENGTH", 1000),
		NoteMaxLength:    p.integer("NOTE_MAX_LENGTH", 200),
	}

	if v, ok := os.LookupEnv("MATCH_LIMIT_MALE"); ok && v != "" {
		cfg.Policy.GenderLimits[matching.Male] = p.integer("MATCH_LIMIT_MALE", 0)
	}
	if v, ok := os.LookupEnv("MATCH_LIMIT_FEMALE"); ok && v != "" {
		cfg.Policy.GenderLimits[matching.Female] = p.integer("MATCH_LIMIT_FEMALE", 0)
	}

	cfg.OTel = telemetry.Config{
		ServiceName:    p.str("OTEL_SERVICE_NAME", "nitematch"),
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   p.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		Enabled:        p.boolean("OTEL_ENABLED", false),
	}
	cfg.DB.Instrumented = cfg.DB.Instrumented || cfg.OTel.Enabled
	cfg.Redis.Instrumented = cfg.OTel.Enabled

	loc, err := phase.ParseOffset(p.str("OPERATING_TZ_OFFSET", "+00:00"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("OPERATING_TZ_OFFSET: %w", err))
	}
	cfg.Location = loc

	if cfg.UnlockRaw != "" {
		unlock, err := phase.ParseUnlock(cfg.UnlockRaw)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("UNLOCK_AT: %w", err))
		}
		cfg.Unlock = unlock
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules
func (c *Config) Validate() error {
	var errs []error

	if c.UnlockRaw == "" && c.Unlock.IsZero() {
		errs = append(errs, errors.New("UNLOCK_AT is required"))
	}
	if c.Location == nil {
		errs = append(errs, errors.New("operating timezone offset is required"))
	}
	if c.EmailDomain == "" {
		errs = append(errs, errors.New("EMAIL_DOMAIN is required"))
	}

	w := c.Policy.Weights
	if math.Abs(w.Psych+w.Interest+w.Situation-1.0) > 1e-9 {
		errs = append(errs, fmt.Errorf("weights must sum to 1.0, got %.4f", w.Psych+w.Interest+w.Situation))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}

	for name, ttl := range map[string]time.Duration{
		"MAGIC_LINK_TTL":  c.MagicLinkTTL,
		"SESSION_TTL":     c.SessionTTL,
		"MATCH_CACHE_TTL": c.MatchCacheTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	switch c.MailDriver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			errs = append(errs, errors.New("MAIL_DRIVER=smtp requires SMTP_HOST and SMTP_FROM"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver))
	}

	if c.MessageMaxLength <= 0 {
		errs = append(errs, errors.New("MESSAGE_MAX_LENGTH must be positive"))
	}
	if c.NoteMaxLength < 0 {
		errs = append(errs, errors.New("NOTE_MAX_LENGTH must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Gate builds the phase gate from the configured unlock instant
func (c *Config) Gate() *phase.Gate {
	return phase.NewGate(c.Unlock, c.Location)
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

type parser struct {
	errs []error
}

func (p *parser) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func (p *parser) integer(key string, fallback int) int {
	raw := p.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, raw))
		return fallback
	}
	return v
}

func (p *parser) boolean(key string, fallback bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return fallback
	}
	return v
}
