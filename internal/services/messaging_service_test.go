package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nitematch/nitematch/internal/cache"
	"github.com/nitematch/nitematch/internal/chat"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/matching"
)

const (
	alice = "u-alice"
	bob   = "u-bob"
	carol = "u-carol"
)

func newMessagingService(messages *MockMessageRepository, matches *MockMatchChecker) *MessagingService {
	return NewMessagingService(messages, matches, fixedClock(unlockAt.Add(time.Hour)), 20, nil)
}

func TestMessagingService_Send(t *testing.T) {
	ctx := context.Background()
	channel := chat.ChannelID(alice, bob)

	messages, matches := new(MockMessageRepository), new(MockMatchChecker)
	matches.On("IsMatched", ctx, alice, bob).Return(true, nil)
	var stored *chat.Message
	messages.On("Append", ctx, mock.AnythingOfType("chat.Channel"), mock.AnythingOfType("*chat.Message")).
		Run(func(args mock.Arguments) { stored = args.Get(2).(*chat.Message) }).
		Return(nil)

	view, err := newMessagingService(messages, matches).Send(ctx, channel, alice, "  <b>hi</b> ")
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Equal(t, "<b>hi</b>", stored.Text)
	assert.Equal(t, channel, stored.ChannelID)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", view.Text)
	assert.True(t, view.Mine)
}

func TestMessagingService_SendRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		channel string
		sender  string
		text    string
		matched bool
		code    string
	}{
		{"outsider", chat.ChannelID(alice, bob), carol, "hi", true, errors.CodeForbidden},
		{"not matched", chat.ChannelID(alice, bob), alice, "hi", false, errors.CodeNotMatched},
		{"malformed channel", "nonsense", alice, "hi", true, errors.CodeValidation},
		{"empty text", chat.ChannelID(alice, bob), alice, "   ", true, errors.CodeValidation},
		{"too long", chat.ChannelID(alice, bob), alice, strings.Repeat("x", 21), true, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, matches := new(MockMessageRepository), new(MockMatchChecker)
			matches.On("IsMatched", ctx, mock.Anything, mock.Anything).Return(tt.matched, nil)

			_, err := newMessagingService(messages, matches).Send(ctx, tt.channel, tt.sender, tt.text)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
			messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestMessagingService_ListMarksRead(t *testing.T) {
	ctx := context.Background()
	channel := chat.ChannelID(alice, bob)
	sent := unlockAt.Add(10 * time.Minute)

	messages, matches := new(MockMessageRepository), new(MockMatchChecker)
	matches.On("IsMatched", ctx, bob, alice).Return(true, nil)
	messages.On("List", ctx, channel).Return([]chat.Message{
		{ID: "1", ChannelID: channel, SenderID: alice, Text: "hi", SentAt: sent},
		{ID: "2", ChannelID: channel, SenderID: bob, Text: "hey", SentAt: sent, Read: false},
	}, nil)
	messages.On("MarkRead", ctx, channel, bob).Return(int64(1), nil)

	views, err := newMessagingService(messages, matches).List(ctx, channel, bob)
	require.NoError(t, err)

	require.Len(t, views, 2)
	assert.Equal(t, "1", views[0].ID)
	assert.False(t, views[0].Mine)
	assert.True(t, views[1].Mine)
	messages.AssertCalled(t, "MarkRead", ctx, channel, bob)
}

func TestMessagingService_EitherSideOfMatchAuthorizes(t *testing.T) {
	ctx := context.Background()
	channel := chat.ChannelID(alice, bob)

	messages, matches := new(MockMessageRepository), new(MockMatchChecker)
	matches.On("IsMatched", ctx, bob, alice).Return(false, nil)
	matches.On("IsMatched", ctx, alice, bob).Return(true, nil)
	messages.On("UnreadCount", ctx, channel, bob).Return(1, nil)

	n, err := newMessagingService(messages, matches).UnreadCount(ctx, channel, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	matches.AssertExpectations(t)
}

func TestMessagingService_AsymmetricLimitsKeepChannelOpen(t *testing.T) {
	ctx := context.Background()
	now := unlockAt.Add(time.Hour)

	m1, m2, f1 := storedProfile("m1", "male"), storedProfile("m2", "male"), storedProfile("f1", "female")
	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	for _, p := range []*database.Profile{m1, m2, f1} {
		profiles.On("GetByID", ctx, p.ID).Return(p, nil)
	}
	profiles.On("ListAll", ctx).Return([]*database.Profile{m1, m2, f1}, nil)
	matchCache.On("GetMatches", ctx, mock.Anything, mock.Anything).Return(cache.ErrNotFound)
	matchCache.On("SetMatches", ctx, mock.Anything, mock.Anything).Return(nil)

	policy := matching.DefaultPolicy()
	policy.GenderLimits = map[matching.Gender]int{matching.Female: 1}
	matcher := NewMatchingService(profiles, matchCache, policy, testGate(), fixedClock(now), nil)

	// f1 only sees m1, but m2 still lists f1
	listed, err := matcher.IsMatched(ctx, "f1", "m2")
	require.NoError(t, err)
	require.False(t, listed)

	channel := chat.ChannelID("f1", "m2")
	messages := new(MockMessageRepository)
	messages.On("Append", ctx, mock.AnythingOfType("chat.Channel"), mock.AnythingOfType("*chat.Message")).Return(nil)
	messages.On("List", ctx, channel).Return([]chat.Message{
		{ID: "1", ChannelID: channel, SenderID: "m2", Text: "hi", SentAt: now},
	}, nil)
	messages.On("MarkRead", ctx, channel, "f1").Return(int64(1), nil)
	svc := NewMessagingService(messages, matcher, fixedClock(now), 20, nil)

	_, err = svc.Send(ctx, channel, "m2", "hi")
	require.NoError(t, err)

	views, err := svc.List(ctx, channel, "f1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].Mine)
}

func TestMessagingService_ListWithoutUnreadSkipsMarkRead(t *testing.T) {
	ctx := context.Background()
	channel := chat.ChannelID(alice, bob)

	messages, matches := new(MockMessageRepository), new(MockMatchChecker)
	matches.On("IsMatched", ctx, alice, bob).Return(true, nil)
	messages.On("List", ctx, channel).Return([]chat.Message{
		{ID: "1", ChannelID: channel, SenderID: alice, Text: "hi"},
	}, nil)

	_, err := newMessagingService(messages, matches).List(ctx, channel, alice)
	require.NoError(t, err)
	messages.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessagingService_UnreadCount(t *testing.T) {
	ctx := context.Background()
	channel := chat.ChannelID(alice, bob)

	messages, matches := new(MockMessageRepository), new(MockMatchChecker)
	matches.On("IsMatched", ctx, bob, alice).Return(true, nil)
	messages.On("UnreadCount", ctx, channel, bob).Return(3, nil)

	n, err := newMessagingService(messages, matches).UnreadCount(ctx, channel, bob)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMessagingService_ConversationsEscapesPreview(t *testing.T) {
	ctx := context.Background()
	preview := "<i>later</i>"

	messages := new(MockMessageRepository)
	messages.On("ListConversations", ctx, alice).Return([]database.ConversationSummary{
		{ChannelID: chat.ChannelID(alice, bob), Counterpart: bob, LastMessage: &preview, Unread: 1},
		{ChannelID: chat.ChannelID(alice, carol), Counterpart: carol},
	}, nil)

	summaries, err := newMessagingService(messages, new(MockMatchChecker)).Conversations(ctx, alice)
	require.NoError(t, err)

	require.Len(t, summaries, 2)
	assert.Equal(t, "&lt;i&gt;later&lt;/i&gt;", *summaries[0].LastMessage)
	assert.Equal(t, "<i>later</i>", preview)
	assert.Nil(t, summaries[1].LastMessage)
}
