// Package identity derives privacy-preserving identity keys and manages
// single-use capability tokens.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDomainNotAllowed = errors.New("email domain not allowed")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenUsed        = errors.New("token already used")
	ErrTokenExpired     = errors.New("token expired")
)

// NormalizeEmail trims and lowercases an address so that equivalent spellings
// map to the same fingerprint.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Fingerprint returns the lowercase hex SHA-256 of the normalized address.
// Only fingerprints are persisted as identity keys.
func Fingerprint(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

// ShortFingerprint is the log-safe prefix of a fingerprint.
func ShortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}

// DomainGate admits addresses ending in exactly "@<domain>".
type DomainGate struct {
	suffix string
}

// NewDomainGate builds a gate for domain, with or without a leading "@".
func NewDomainGate(domain string) DomainGate {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
	return DomainGate{suffix: "@" + d}
}

// Domain returns the admitted domain without the "@".
func (g DomainGate) Domain() string { return strings.TrimPrefix(g.suffix, "@") }

// Check normalizes email and verifies its domain. Subdomains and lookalike
// domains are rejected.
func (g DomainGate) Check(email string) (string, error) {
	normalized := NormalizeEmail(email)
	at := strings.LastIndex(normalized, "@")
	if at <= 0 || strings.Count(normalized, "@") != 1 {
		return "", ErrInvalidEmail
	}
	if !strings.HasSuffix(normalized, g.suffix) || at != len(normalized)-len(g.suffix) {
		return "", fmt.Errorf("%w: %s", ErrDomainNotAllowed, normalized[at+1:])
	}
	return normalized, nil
}

// TokenBytes is the entropy of a capability token.
const TokenBytes = 32

// NewToken returns an unguessable URL-safe token.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MagicToken is a single-use login capability bound to a user.
type MagicToken struct {
	Token            string
	UserID           string
	EmailFingerprint string
	Email            string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Used             bool
	UsedAt           *time.Time
}

// NewMagicToken issues a token for userID that expires after ttl.
func NewMagicToken(userID, email string, now time.Time, ttl time.Duration) (*MagicToken, error) {
	tok, err := NewToken()
	if err != nil {
		return nil, err
	}
	return &MagicToken{
		Token:            tok,
		UserID:           userID,
		EmailFingerprint: Fingerprint(email),
		Email:            NormalizeEmail(email),
		CreatedAt:        now.UTC(),
		ExpiresAt:        now.UTC().Add(ttl),
	}, nil
}

// CheckUsable reports why a token cannot be redeemed at now. A used token
// reports ErrTokenUsed even after it has also expired. A token is already
// expired at the instant ExpiresAt.
func (t *MagicToken) CheckUsable(now time.Time) error {
	switch {
	case t == nil:
		return ErrTokenNotFound
	case t.Used:
		return ErrTokenUsed
	case !now.Before(t.ExpiresAt):
		return ErrTokenExpired
	}
	return nil
}

// Session is an authenticated browser session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession opens a session for userID lasting ttl.
func NewSession(userID string, now time.Time, ttl time.Duration) (*Session, error) {
	id, err := NewToken()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, UserID: userID, CreatedAt: now.UTC(), ExpiresAt: now.UTC().Add(ttl)}, nil
}
