package httpserver

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/services"
)

type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) Questionnaire() questionnaire.Schema {
	return m.Called().Get(0).(questionnaire.Schema)
}

func (m *MockProfileService) Submit(ctx context.Context, req services.SubmitRequest) (*services.ProfileView, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ProfileView), args.Error(1)
}

func (m *MockProfileService) Me(ctx context.Context, userID string) (*services.ProfileView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ProfileView), args.Error(1)
}

func (m *MockProfileService) UpdateContact(ctx context.Context, userID, handle string, share bool) (*services.ProfileView, error) {
	args := m.Called(ctx, userID, handle, share)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ProfileView), args.Error(1)
}

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) LoginWithSecret(ctx context.Context, alias, email string) (*identity.Session, error) {
	args := m.Called(ctx, alias, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockAuthService) RequestMagicLink(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAuthService) VerifyMagicLink(ctx context.Context, token string) (*identity.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockAuthService) Authenticate(ctx context.Context, sessionID string) (*identity.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *MockAuthService) SessionTTL() time.Duration {
	return 24 * time.Hour
}

type MockMatchingService struct {
	mock.Mock
}

func (m *MockMatchingService) Matches(ctx context.Context, userID string) (*services.MatchList, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MatchList), args.Error(1)
}

func (m *MockMatchingService) IsMatched(ctx context.Context, userID, otherID string) (bool, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Bool(0), args.Error(1)
}

type MockMessagingService struct {
	mock.Mock
}

func (m *MockMessagingService) Send(ctx context.Context, channelID, senderID, text string) (*services.MessageView, error) {
	args := m.Called(ctx, channelID, senderID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MessageView), args.Error(1)
}

func (m *MockMessagingService) List(ctx context.Context, channelID, readerID string) ([]services.MessageView, error) {
	args := m.Called(ctx, channelID, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.MessageView), args.Error(1)
}

func (m *MockMessagingService) MarkRead(ctx context.Context, channelID, readerID string) (int64, error) {
	args := m.Called(ctx, channelID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessagingService) UnreadCount(ctx context.Context, channelID, readerID string) (int, error) {
	args := m.Called(ctx, channelID, readerID)
	return args.Int(0), args.Error(1)
}

func (m *MockMessagingService) Conversations(ctx context.Context, userID string) ([]database.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.ConversationSummary), args.Error(1)
}
