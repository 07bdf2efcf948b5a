package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// SessionCookie is the cookie holding the session id
const SessionCookie = "nitematch_session"

const (
	userIDKey    = "user_id"
	sessionIDKey = "session_id"
)

// SessionAuthenticator resolves a session id to a live session
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*identity.Session, error)
}

// AuthMiddleware provides session authentication for API handlers
type AuthMiddleware struct {
	sessions SessionAuthenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(sessions SessionAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// RequireSession rejects requests without a valid session and stores the
// profile id for downstream handlers
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := SessionID(c)
		if sessionID == "" {
			Abort(c, errors.NewAuthenticationError(errors.CodeUnauthenticated, "Sign in to continue"))
			return
		}

		session, err := m.sessions.Authenticate(c.Request.Context(), sessionID)
		if err != nil {
			Abort(c, err)
			return
		}

		c.Set(userIDKey, session.UserID)
		c.Set(sessionIDKey, session.ID)

		logger := telemetry.GetContextualLogger(c.Request.Context())
		logger.WithField("user_id", session.UserID).Debug("Session authenticated")

		c.Next()
	}
}

// SessionID reads the session id from the cookie or a bearer token
func SessionID(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// UserID returns the authenticated profile id
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// MustUserID returns the authenticated profile id; it is only valid behind
// RequireSession
func MustUserID(c *gin.Context) string {
	return c.MustGet(userIDKey).(string)
}
