package services

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/nitematch/nitematch/internal/cache"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/notification"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// Login methods as recorded in metrics
const (
	LoginMethodSecret    = "secret"
	LoginMethodMagicLink = "magic_link"
)

// AuthConfig holds the sign-in settings
type AuthConfig struct {
	BaseURL      string
	MagicLinkTTL time.Duration
	SessionTTL   time.Duration
}

// AuthService signs returning participants in
type AuthService struct {
	profiles ProfileRepository
	tokens   TokenRepository
	sessions SessionStore
	mailer   notification.Sender
	domain   identity.DomainGate
	clock    phase.Clock
	config   AuthConfig
	metrics  Metrics
}

// NewAuthService creates an auth service
func NewAuthService(profiles ProfileRepository, tokens TokenRepository, sessions SessionStore,
	mailer notification.Sender, domain identity.DomainGate, clock phase.Clock, config AuthConfig, metrics Metrics) *AuthService {
	if clock == nil {
		clock = phase.SystemClock
	}
	return &AuthService{
		profiles: profiles,
		tokens:   tokens,
		sessions: sessions,
		mailer:   mailer,
		domain:   domain,
		clock:    clock,
		config:   config,
		metrics:  metricsOrNoop(metrics),
	}
}

// LoginWithSecret signs in with the alias and email given at submission
func (s *AuthService) LoginWithSecret(ctx context.Context, alias, email string) (*identity.Session, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "login_with_secret",
		"service":   "auth",
	})

	normalized, err := checkDomain(s.domain, email)
	if err != nil {
		s.metrics.RecordLogin(LoginMethodSecret, "invalid")
		return nil, err
	}
	fingerprint := identity.Fingerprint(normalized)
	logger = logger.WithField("fingerprint", identity.ShortFingerprint(fingerprint))

	profile, err := s.profiles.GetByAliasAndFingerprint(ctx, strings.TrimSpace(alias), fingerprint)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			s.metrics.RecordLogin(LoginMethodSecret, "rejected")
			logger.Info("Alias and email do not match a profile")
			return nil, errors.NewAuthenticationError(errors.CodeInvalidCredentials,
				"No profile matches that alias and email")
		}
		s.metrics.RecordLogin(LoginMethodSecret, "error")
		logger.WithError(err).Error("Failed to look up profile")
		return nil, errors.NewDatabaseError("get profile", err)
	}

	session, err := s.openSession(ctx, profile.ID)
	if err != nil {
		s.metrics.RecordLogin(LoginMethodSecret, "error")
		return nil, err
	}
	s.metrics.RecordLogin(LoginMethodSecret, "success")
	logger.WithField("profile_id", profile.ID).Info("Signed in with alias and email")
	return session, nil
}

// RequestMagicLink mails a single-use sign-in link. Addresses without a
// profile get the same silent success so the endpoint does not reveal who
// took part. When delivery fails the token stays valid and the error is
// retryable.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "request_magic_link",
		"service":   "auth",
	})

	normalized, err := checkDomain(s.domain, email)
	if err != nil {
		s.metrics.RecordMagicLink("invalid")
		return err
	}
	fingerprint := identity.Fingerprint(normalized)
	logger = logger.WithField("fingerprint", identity.ShortFingerprint(fingerprint))

	profile, err := s.profiles.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			s.metrics.RecordMagicLink("unknown")
			logger.Info("Sign-in link requested for an address without a profile")
			return nil
		}
		s.metrics.RecordMagicLink("error")
		logger.WithError(err).Error("Failed to look up profile")
		return errors.NewDatabaseError("get profile", err)
	}
	logger = logger.WithField("profile_id", profile.ID)

	if profile.ContactEmail == nil || *profile.ContactEmail == "" {
		if _, err := s.profiles.BackfillContactEmail(ctx, profile.ID, normalized); err != nil {
			// The link can still be sent to the address just given.
			logger.WithError(err).Warn("Failed to back-fill contact email")
		}
	}

	token, err := identity.NewMagicToken(profile.ID, normalized, s.clock.Now(), s.config.MagicLinkTTL)
	if err != nil {
		s.metrics.RecordMagicLink("error")
		return errors.NewInternalError("Failed to create sign-in link", err)
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		s.metrics.RecordMagicLink("error")
		logger.WithError(err).Error("Failed to store magic token")
		return errors.NewDatabaseError("create magic token", err)
	}

	mail, err := notification.MagicLinkMail(s.config.BaseURL, normalized, token.Token, s.config.MagicLinkTTL)
	if err != nil {
		s.metrics.RecordMagicLink("error")
		return errors.NewInternalError("Failed to compose sign-in email", err)
	}
	if err := s.mailer.Send(ctx, mail); err != nil {
		s.metrics.RecordMagicLink("mail_failed")
		logger.WithError(err).Warn("Sign-in email delivery failed")
		return errors.NewMailDeliveryError(err)
	}

	s.metrics.RecordMagicLink("sent")
	logger.Info("Sign-in link sent")
	return nil
}

// VerifyMagicLink redeems a token and opens a session
func (s *AuthService) VerifyMagicLink(ctx context.Context, token string) (*identity.Session, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "verify_magic_link",
		"service":   "auth",
	})

	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.RecordLogin(LoginMethodMagicLink, "not_found")
		return nil, errors.NewInvalidLinkError("not_found")
	}

	redeemed, err := s.tokens.Consume(ctx, token, s.clock.Now())
	if err != nil {
		reason := ""
		switch {
		case stderrors.Is(err, identity.ErrTokenUsed):
			reason = "used"
		case stderrors.Is(err, identity.ErrTokenExpired):
			reason = "expired"
		case stderrors.Is(err, identity.ErrTokenNotFound):
			reason = "not_found"
		default:
			s.metrics.RecordLogin(LoginMethodMagicLink, "error")
			logger.WithError(err).Error("Failed to redeem magic token")
			return nil, errors.NewDatabaseError("consume magic token", err)
		}
		s.metrics.RecordLogin(LoginMethodMagicLink, reason)
		logger.WithField("reason", reason).Info("Rejected sign-in link")
		return nil, errors.NewInvalidLinkError(reason)
	}

	session, err := s.openSession(ctx, redeemed.UserID)
	if err != nil {
		s.metrics.RecordLogin(LoginMethodMagicLink, "error")
		return nil, err
	}
	s.metrics.RecordLogin(LoginMethodMagicLink, "success")
	logger.WithField("profile_id", redeemed.UserID).Info("Signed in with magic link")
	return session, nil
}

// Authenticate resolves a session id
func (s *AuthService) Authenticate(ctx context.Context, sessionID string) (*identity.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, cache.ErrNotFound) {
			return nil, errors.NewAuthenticationError(errors.CodeUnauthenticated,
				"Your session has ended, sign in again")
		}
		return nil, errors.NewCacheError("get session", err)
	}
	if !s.clock.Now().Before(session.ExpiresAt) {
		return nil, errors.NewAuthenticationError(errors.CodeUnauthenticated,
			"Your session has ended, sign in again")
	}
	return session, nil
}

// Logout ends a session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return errors.NewCacheError("delete session", err)
	}
	telemetry.GetContextualLogger(ctx).WithField("operation", "logout").Info("Session ended")
	return nil
}

// SessionTTL is how long new sessions last
func (s *AuthService) SessionTTL() time.Duration {
	return s.config.SessionTTL
}

func (s *AuthService) openSession(ctx context.Context, userID string) (*identity.Session, error) {
	session, err := identity.NewSession(userID, s.clock.Now(), s.config.SessionTTL)
	if err != nil {
		return nil, errors.NewInternalError("Failed to create session", err)
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		telemetry.GetContextualLogger(ctx).WithError(err).Error("Failed to save session")
		return nil, errors.NewCacheError("save session", err)
	}
	return session, nil
}
