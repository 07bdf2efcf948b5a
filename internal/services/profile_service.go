package services

import (
	"context"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/matching"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// SubmitRequest is one questionnaire submission. Tags carry the shape rules;
// the note bound, domain and answers are checked by Submit.
type SubmitRequest struct {
	Alias           string                `json:"alias" binding:"required,max=40"`
	Email           string                `json:"email" binding:"required"`
	Gender          string                `json:"gender" binding:"required,oneof=male female"`
	Answers         questionnaire.Answers `json:"answers" binding:"required"`
	ContactHandle   string                `json:"contact_handle" binding:"max=64"`
	ShareContact    bool                  `json:"share_contact"`
	Note            string                `json:"note"`
	ConfirmEligible bool                  `json:"confirm_eligible"`
}

// ProfileView is what a signed-in participant sees about themselves
type ProfileView struct {
	ID              string    `json:"id"`
	Alias           string    `json:"alias"`
	Gender          string    `json:"gender"`
	SchemaVersion   int       `json:"schema_version"`
	ContactHandle   string    `json:"contact_handle,omitempty"`
	ShareContact    bool      `json:"share_contact"`
	Note            string    `json:"note,omitempty"`
	HasContactEmail bool      `json:"has_contact_email"`
	CreatedAt       time.Time `json:"created_at"`
}

func newProfileView(p *database.Profile) *ProfileView {
	return &ProfileView{
		ID:              p.ID,
		Alias:           p.Alias,
		Gender:          p.Gender,
		SchemaVersion:   p.SchemaVersion,
		ContactHandle:   p.ContactHandle,
		ShareContact:    p.ShareContact,
		Note:            p.Note,
		HasContactEmail: p.ContactEmail != nil && *p.ContactEmail != "",
		CreatedAt:       p.CreatedAt,
	}
}

// ProfileService accepts submissions during the collection phase
type ProfileService struct {
	profiles      ProfileRepository
	gate          *phase.Gate
	clock         phase.Clock
	domain        identity.DomainGate
	schema        questionnaire.Schema
	noteMaxLength int
	metrics       Metrics
}

// NewProfileService creates a profile service
func NewProfileService(profiles ProfileRepository, gate *phase.Gate, clock phase.Clock,
	domain identity.DomainGate, noteMaxLength int, metrics Metrics) *ProfileService {
	if clock == nil {
		clock = phase.SystemClock
	}
	return &ProfileService{
		profiles:      profiles,
		gate:          gate,
		clock:         clock,
		domain:        domain,
		schema:        questionnaire.Current,
		noteMaxLength: noteMaxLength,
		metrics:       metricsOrNoop(metrics),
	}
}

// Questionnaire returns the schema new submissions are encoded with
func (s *ProfileService) Questionnaire() questionnaire.Schema {
	return s.schema
}

// Submit validates and stores a submission. Nothing is written unless every
// check passes, and a second submission for the same address is rejected by
// the store's unique fingerprint.
func (s *ProfileService) Submit(ctx context.Context, req SubmitRequest) (*ProfileView, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "submit_profile",
		"service":   "profile",
	})

	if s.gate.IsUnlocked(s.clock.Now()) {
		s.metrics.RecordSubmission("closed")
		return nil, errors.NewSubmissionsClosedError(s.gate.Unlock())
	}

	profile, err := s.buildProfile(req)
	if err != nil {
		s.metrics.RecordSubmission("invalid")
		logger.WithError(err).Debug("Rejected submission")
		return nil, err
	}
	logger = logger.WithFields(map[string]interface{}{
		"profile_id":  profile.ID,
		"fingerprint": identity.ShortFingerprint(profile.EmailFingerprint),
	})

	if err := s.profiles.Create(ctx, profile); err != nil {
		if stderrors.Is(err, database.ErrDuplicateFingerprint) {
			s.metrics.RecordSubmission("duplicate")
			logger.Info("Duplicate submission rejected")
			return nil, errors.NewAlreadySubmittedError()
		}
		s.metrics.RecordSubmission("error")
		logger.WithError(err).Error("Failed to store submission")
		return nil, errors.NewDatabaseError("create profile", err)
	}

	s.metrics.RecordSubmission("created")
	logger.Info("Profile submitted")
	return newProfileView(profile), nil
}

func (s *ProfileService) buildProfile(req SubmitRequest) (*database.Profile, error) {
	if !req.ConfirmEligible {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, errors.CodeEligibilityRequired,
			"Please confirm you are eligible to take part")
	}

	alias := strings.TrimSpace(req.Alias)
	if alias == "" {
		return nil, errors.NewValidationError("alias", "Alias is required")
	}

	email, err := s.checkEmail(req.Email)
	if err != nil {
		return nil, err
	}

	gender, err := matching.ParseGender(req.Gender)
	if err != nil {
		return nil, errors.NewValidationError("gender", "Gender must be male or female")
	}

	note := strings.TrimSpace(req.Note)
	if utf8.RuneCountInString(note) > s.noteMaxLength {
		return nil, errors.NewValidationError("note", "Note is too long")
	}
	handle := strings.TrimSpace(req.ContactHandle)

	vectors, err := questionnaire.Encode(s.schema, req.Answers)
	if err != nil {
		return nil, errors.NewValidationError("answers", err.Error())
	}

	profile := &database.Profile{
		ID:               uuid.New().String(),
		Alias:            alias,
		Gender:           string(gender),
		EmailFingerprint: identity.Fingerprint(email),
		ContactHandle:    handle,
		ShareContact:     req.ShareContact && handle != "",
		Note:             note,
	}
	profile.SetVectors(vectors)
	return profile, nil
}

// checkEmail applies the institution domain gate
func (s *ProfileService) checkEmail(email string) (string, error) {
	return checkDomain(s.domain, email)
}

func checkDomain(gate identity.DomainGate, email string) (string, error) {
	normalized, err := gate.Check(email)
	switch {
	case err == nil:
		return normalized, nil
	case stderrors.Is(err, identity.ErrDomainNotAllowed):
		return "", errors.NewAppError(errors.ErrorTypeValidation, errors.CodeDomainNotAllowed,
			"Use your @"+gate.Domain()+" address").WithMetadata("field", "email")
	default:
		return "", errors.NewValidationError("email", "Enter a valid email address")
	}
}

// Me returns the signed-in participant's own profile
func (s *ProfileService) Me(ctx context.Context, userID string) (*ProfileView, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			return nil, errors.NewNotFoundError("profile")
		}
		return nil, errors.NewDatabaseError("get profile", err)
	}
	return newProfileView(profile), nil
}

// UpdateContact changes the contact handle and its sharing consent. Cached
// match lists only hold ids and scores, so counterparts see the change on
// their next read.
func (s *ProfileService) UpdateContact(ctx context.Context, userID, handle string, share bool) (*ProfileView, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "update_contact",
		"service":    "profile",
		"profile_id": userID,
	})

	handle = strings.TrimSpace(handle)
	share = share && handle != ""

	if err := s.profiles.UpdateContactConsent(ctx, userID, handle, share); err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			return nil, errors.NewNotFoundError("profile")
		}
		logger.WithError(err).Error("Failed to update contact consent")
		return nil, errors.NewDatabaseError("update contact", err)
	}

	logger.WithField("share_contact", share).Info("Contact consent updated")
	return s.Me(ctx, userID)
}
