package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nitematch/nitematch/internal/chat"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/notification"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/questionnaire"
)

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) Create(ctx context.Context, p *database.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id string) (*database.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Profile), args.Error(1)
}

func (m *MockProfileRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*database.Profile, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Profile), args.Error(1)
}

func (m *MockProfileRepository) GetByAliasAndFingerprint(ctx context.Context, alias, fingerprint string) (*database.Profile, error) {
	args := m.Called(ctx, alias, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Profile), args.Error(1)
}

func (m *MockProfileRepository) ListAll(ctx context.Context) ([]*database.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*database.Profile), args.Error(1)
}

func (m *MockProfileRepository) BackfillContactEmail(ctx context.Context, id, email string) (bool, error) {
	args := m.Called(ctx, id, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockProfileRepository) UpdateContactConsent(ctx context.Context, id, handle string, share bool) error {
	return m.Called(ctx, id, handle, share).Error(0)
}

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Create(ctx context.Context, t *identity.MagicToken) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTokenRepository) Consume(ctx context.Context, token string, now time.Time) (*identity.MagicToken, error) {
	args := m.Called(ctx, token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.MagicToken), args.Error(1)
}

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Append(ctx context.Context, ch chat.Channel, msg *chat.Message) error {
	return m.Called(ctx, ch, msg).Error(0)
}

func (m *MockMessageRepository) List(ctx context.Context, channelID string) ([]chat.Message, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chat.Message), args.Error(1)
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, channelID, readerID string) (int64, error) {
	args := m.Called(ctx, channelID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) UnreadCount(ctx context.Context, channelID, readerID string) (int, error) {
	args := m.Called(ctx, channelID, readerID)
	return args.Int(0), args.Error(1)
}

func (m *MockMessageRepository) ListConversations(ctx context.Context, userID string) ([]database.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.ConversationSummary), args.Error(1)
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) SaveSession(ctx context.Context, session *identity.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockSessionStore) GetSession(ctx context.Context, sessionID string) (*identity.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type MockMatchCache struct {
	mock.Mock
}

func (m *MockMatchCache) SetMatches(ctx context.Context, userID string, matches interface{}) error {
	return m.Called(ctx, userID, matches).Error(0)
}

func (m *MockMatchCache) GetMatches(ctx context.Context, userID string, dest interface{}) error {
	return m.Called(ctx, userID, dest).Error(0)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, mail notification.Mail) error {
	return m.Called(ctx, mail).Error(0)
}

type MockMatchChecker struct {
	mock.Mock
}

func (m *MockMatchChecker) IsMatched(ctx context.Context, userID, otherID string) (bool, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Bool(0), args.Error(1)
}

// unlockAt is the reveal instant used across service tests.
var unlockAt = time.Date(2026, 2, 14, 4, 0, 0, 0, time.UTC)

func testGate() *phase.Gate {
	return phase.NewGate(unlockAt, time.FixedZone("UTC+05:30", 5*3600+1800))
}

func fixedClock(t time.Time) phase.Clock {
	return phase.ClockFunc(func() time.Time { return t })
}

func validAnswers() questionnaire.Answers {
	s := questionnaire.Current
	answers := questionnaire.Answers{}
	for _, q := range s.Psych {
		answers[q.Key] = q.Labels()[len(q.Labels())-1]
	}
	for _, q := range s.Interest {
		answers[q.Key] = q.Labels()[0]
	}
	for _, q := range s.Situation {
		answers[q.Key] = q.Labels()[0]
	}
	return answers
}

func storedProfile(id, gender string) *database.Profile {
	p := &database.Profile{ID: id, Alias: "alias-" + id, Gender: gender}
	v, err := questionnaire.Encode(questionnaire.Current, validAnswers())
	if err != nil {
		panic(err)
	}
	p.SetVectors(v)
	return p
}
