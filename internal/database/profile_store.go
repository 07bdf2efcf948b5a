package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// ErrDuplicateFingerprint reports that a profile already exists for the email.
var ErrDuplicateFingerprint = errors.New("a profile with this email already exists")

const uniqueViolation = "23505"

const profileColumns = `id, alias, gender, email_fingerprint, contact_email, schema_version,
	psych_vector, interest_vector, situation_vector, contact_handle, share_contact, note, created_at`

// ProfileStore persists participant profiles.
type ProfileStore struct {
	db *DB
}

func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Create inserts p. The unique fingerprint constraint makes the dedup check
// and the insert a single atomic step; a conflicting row yields
// ErrDuplicateFingerprint.
func (s *ProfileStore) Create(ctx context.Context, p *Profile) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":   "create_profile",
		"user_id":     p.ID,
		"fingerprint": identity.ShortFingerprint(p.EmailFingerprint),
	})

	query := `
		INSERT INTO users (
			id, alias, gender, email_fingerprint, contact_email, schema_version,
			psych_vector, interest_vector, situation_vector,
			contact_handle, share_contact, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (email_fingerprint) DO NOTHING
		RETURNING created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Alias, p.Gender, p.EmailFingerprint, p.ContactEmail, p.SchemaVersion,
		p.Psych, p.Interest, p.Situation,
		p.ContactHandle, p.ShareContact, p.Note,
	).Scan(&p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		logger.Info("Rejected duplicate profile")
		return ErrDuplicateFingerprint
	}
	if err != nil {
		logger.WithError(err).Error("Failed to create profile")
		return fmt.Errorf("failed to create profile: %w", err)
	}

	logger.Info("Profile created")
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *ProfileStore) GetByID(ctx context.Context, id string) (*Profile, error) {
	return s.getOne(ctx, "get_profile_by_id", `WHERE id = $1`, id)
}

func (s *ProfileStore) GetByFingerprint(ctx context.Context, fingerprint string) (*Profile, error) {
	return s.getOne(ctx, "get_profile_by_fingerprint", `WHERE email_fingerprint = $1`, fingerprint)
}

// GetByAliasAndFingerprint requires both the alias and the fingerprint to match
// the same row.
func (s *ProfileStore) GetByAliasAndFingerprint(ctx context.Context, alias, fingerprint string) (*Profile, error) {
	return s.getOne(ctx, "get_profile_by_alias_and_fingerprint",
		`WHERE email_fingerprint = $1 AND alias = $2`, fingerprint, alias)
}

func (s *ProfileStore) getOne(ctx context.Context, op, where string, args ...interface{}) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM users `+where, args...)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithField("operation", op).
			WithError(err).Error("Failed to load profile")
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// ListAll returns every profile ordered by id.
func (s *ProfileStore) ListAll(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// Count returns the number of stored profiles.
func (s *ProfileStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

// BackfillContactEmail stores email on a profile that has none yet. It
// reports whether a write happened.
func (s *ProfileStore) BackfillContactEmail(ctx context.Context, id, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET contact_email = $2 WHERE id = $1 AND contact_email IS NULL`, id, email)
	if err != nil {
		return false, fmt.Errorf("failed to back-fill contact email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to back-fill contact email: %w", err)
	}
	return n == 1, nil
}

// UpdateContactConsent changes the contact handle and the consent flag.
func (s *ProfileStore) UpdateContactConsent(ctx context.Context, id, handle string, share bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET contact_handle = $2, share_contact = $3 WHERE id = $1`, id, handle, share)
	if err != nil {
		return fmt.Errorf("failed to update contact consent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row scanner) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(
		&p.ID, &p.Alias, &p.Gender, &p.EmailFingerprint, &p.ContactEmail, &p.SchemaVersion,
		&p.Psych, &p.Interest, &p.Situation, &p.ContactHandle, &p.ShareContact, &p.Note, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
