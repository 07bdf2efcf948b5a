// Package services orchestrates the domain packages behind the HTTP surface.
package services

import (
	"context"
	"time"

	"github.com/nitematch/nitematch/internal/chat"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/identity"
)

// ProfileRepository is the profile storage the services need
type ProfileRepository interface {
	Create(ctx context.Context, p *database.Profile) error
	GetByID(ctx context.Context, id string) (*database.Profile, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*database.Profile, error)
	GetByAliasAndFingerprint(ctx context.Context, alias, fingerprint string) (*database.Profile, error)
	ListAll(ctx context.Context) ([]*database.Profile, error)
	BackfillContactEmail(ctx context.Context, id, email string) (bool, error)
	UpdateContactConsent(ctx context.Context, id, handle string, share bool) error
}

// TokenRepository stores single-use sign-in tokens
type TokenRepository interface {
	Create(ctx context.Context, t *identity.MagicToken) error
	Consume(ctx context.Context, token string, now time.Time) (*identity.MagicToken, error)
}

// MessageRepository stores conversations and their messages
type MessageRepository interface {
	Append(ctx context.Context, ch chat.Channel, m *chat.Message) error
	List(ctx context.Context, channelID string) ([]chat.Message, error)
	MarkRead(ctx context.Context, channelID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, channelID, readerID string) (int, error)
	ListConversations(ctx context.Context, userID string) ([]database.ConversationSummary, error)
}

// SessionStore keeps browser sessions
type SessionStore interface {
	SaveSession(ctx context.Context, session *identity.Session) error
	GetSession(ctx context.Context, sessionID string) (*identity.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// MatchCache keeps computed match lists per viewer
type MatchCache interface {
	SetMatches(ctx context.Context, userID string, matches interface{}) error
	GetMatches(ctx context.Context, userID string, dest interface{}) error
}

// Metrics receives domain events
type Metrics interface {
	RecordSubmission(result string)
	RecordLogin(method, result string)
	RecordMagicLink(result string)
	RecordMatchComputation(poolSize, matches int, duration time.Duration)
	RecordMessageSent()
	RecordCacheOperation(operation, result string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmission(string)                        {}
func (noopMetrics) RecordLogin(string, string)                     {}
func (noopMetrics) RecordMagicLink(string)                         {}
func (noopMetrics) RecordMatchComputation(int, int, time.Duration) {}
func (noopMetrics) RecordMessageSent()                             {}
func (noopMetrics) RecordCacheOperation(string, string)            {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
