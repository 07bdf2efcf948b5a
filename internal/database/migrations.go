package database

import (
	"context"
	"fmt"

	"github.com/nitematch/nitematch/internal/telemetry"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                UUID PRIMARY KEY,
		alias             TEXT NOT NULL,
		gender            TEXT NOT NULL CHECK (gender IN ('male', 'female')),
		email_fingerprint CHAR(64) NOT NULL,
		contact_email     TEXT,
		schema_version    INTEGER NOT NULL,
		psych_vector      BIGINT[] NOT NULL,
		interest_vector   BIGINT[] NOT NULL DEFAULT '{}',
		situation_vector  BIGINT[] NOT NULL DEFAULT '{}',
		contact_handle    TEXT NOT NULL DEFAULT '',
		share_contact     BOOLEAN NOT NULL DEFAULT FALSE,
		note              TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_email_fingerprint_key UNIQUE (email_fingerprint)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_gender ON users (gender)`,
	`CREATE TABLE IF NOT EXISTS magic_tokens (
		token             TEXT PRIMARY KEY,
		user_id           UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		email_fingerprint CHAR(64) NOT NULL,
		email             TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		expires_at        TIMESTAMPTZ NOT NULL,
		used              BOOLEAN NOT NULL DEFAULT FALSE,
		used_at           TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id            TEXT PRIMARY KEY,
		member_a      UUID NOT NULL REFERENCES users (id),
		member_b      UUID NOT NULL REFERENCES users (id),
		created_at    TIMESTAMPTZ NOT NULL,
		last_activity TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_member_a ON conversations (member_a)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_member_b ON conversations (member_b)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		seq        BIGSERIAL PRIMARY KEY,
		id         UUID NOT NULL UNIQUE,
		channel_id TEXT NOT NULL REFERENCES conversations (id),
		sender_id  UUID NOT NULL REFERENCES users (id),
		text       TEXT NOT NULL,
		sent_at    TIMESTAMPTZ NOT NULL,
		is_read    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_channel ON chat_messages (channel_id, sent_at, seq)`,
}

// Migrate creates the tables and indexes if they are missing.
func (db *DB) Migrate(ctx context.Context) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "database_migrate",
		"statements": len(schema),
	})

	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.WithError(err).WithField("statement", i).Error("Migration failed")
			return fmt.Errorf("failed to apply migration statement %d: %w", i, err)
		}
	}

	logger.Info("Database schema is up to date")
	return nil
}
