// Package interfaces declares what the HTTP layer needs from the services,
// so handlers can be tested against mocks.
package interfaces

import (
	"context"
	"time"

	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/services"
)

// ProfileServiceInterface defines submission and self-service operations
type ProfileServiceInterface interface {
	Questionnaire() questionnaire.Schema
	Submit(ctx context.Context, req services.SubmitRequest) (*services.ProfileView, error)
	Me(ctx context.Context, userID string) (*services.ProfileView, error)
	UpdateContact(ctx context.Context, userID, handle string, share bool) (*services.ProfileView, error)
}

// AuthServiceInterface defines sign-in and session operations
type AuthServiceInterface interface {
	LoginWithSecret(ctx context.Context, alias, email string) (*identity.Session, error)
	RequestMagicLink(ctx context.Context, email string) error
	VerifyMagicLink(ctx context.Context, token string) (*identity.Session, error)
	Authenticate(ctx context.Context, sessionID string) (*identity.Session, error)
	Logout(ctx context.Context, sessionID string) error
	SessionTTL() time.Duration
}

// MatchingServiceInterface defines reveal-phase match operations
type MatchingServiceInterface interface {
	Matches(ctx context.Context, userID string) (*services.MatchList, error)
	IsMatched(ctx context.Context, userID, otherID string) (bool, error)
}

// MessagingServiceInterface defines chat operations between matches
type MessagingServiceInterface interface {
	Send(ctx context.Context, channelID, senderID, text string) (*services.MessageView, error)
	List(ctx context.Context, channelID, readerID string) ([]services.MessageView, error)
	MarkRead(ctx context.Context, channelID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, channelID, readerID string) (int, error)
	Conversations(ctx context.Context, userID string) ([]database.ConversationSummary, error)
}

var (
	_ ProfileServiceInterface   = (*services.ProfileService)(nil)
	_ AuthServiceInterface      = (*services.AuthService)(nil)
	_ MatchingServiceInterface  = (*services.MatchingService)(nil)
	_ MessagingServiceInterface = (*services.MessagingService)(nil)
)
