package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// TokenStore persists magic-link tokens keyed by the token string.
type TokenStore struct {
	db *DB
}

func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Create(ctx context.Context, t *identity.MagicToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO magic_tokens (token, user_id, email_fingerprint, email, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
		t.Token, t.UserID, t.EmailFingerprint, t.Email, t.CreatedAt, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store magic token: %w", err)
	}
	return nil
}

// Get loads a token without changing it.
func (s *TokenStore) Get(ctx context.Context, token string) (*identity.MagicToken, error) {
	t := &identity.MagicToken{Token: token}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email_fingerprint, email, created_at, expires_at, used, used_at
		FROM magic_tokens WHERE token = $1`, token,
	).Scan(&t.UserID, &t.EmailFingerprint, &t.Email, &t.CreatedAt, &t.ExpiresAt, &t.Used, &t.UsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load magic token: %w", err)
	}
	return t, nil
}

// Consume marks the token used if and only if it is unused and unexpired at
// now. The check and the write are one statement, so concurrent redemptions
// of the same token cannot both succeed. On failure the row is re-read only
// to report whether it was missing, used or expired.
func (s *TokenStore) Consume(ctx context.Context, token string, now time.Time) (*identity.MagicToken, error) {
	logger := telemetry.GetContextualLogger(ctx).WithField("operation", "consume_magic_token")

	t := &identity.MagicToken{Token: token, Used: true}
	err := s.db.QueryRowContext(ctx, `
		UPDATE magic_tokens SET used = TRUE, used_at = $2
		WHERE token = $1 AND used = FALSE AND expires_at > $2
		RETURNING user_id, email_fingerprint, email, created_at, expires_at, used_at`,
		token, now.UTC(),
	).Scan(&t.UserID, &t.EmailFingerprint, &t.Email, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	if err == nil {
		logger.WithField("user_id", t.UserID).Debug("Magic token consumed")
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.WithError(err).Error("Failed to consume magic token")
		return nil, fmt.Errorf("failed to consume magic token: %w", err)
	}

	current, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if reason := current.CheckUsable(now); reason != nil {
		return nil, reason
	}
	// Lost a race between the update and the re-read.
	return nil, identity.ErrTokenUsed
}

// DeleteExpired prunes tokens that expired before cutoff.
func (s *TokenStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM magic_tokens WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune magic tokens: %w", err)
	}
	return res.RowsAffected()
}
