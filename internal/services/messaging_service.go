package services

import (
	"context"
	stderrors "errors"
	"html"

	"github.com/google/uuid"
	"github.com/nitematch/nitematch/internal/chat"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// MatchChecker decides whether two participants may talk
type MatchChecker interface {
	IsMatched(ctx context.Context, userID, otherID string) (bool, error)
}

// MessageView is a chat message ready for display
type MessageView struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
	SentAt   string `json:"sent_at"`
	Read     bool   `json:"read"`
	Mine     bool   `json:"mine"`
}

func newMessageView(m chat.Message, viewerID string) MessageView {
	return MessageView{
		ID:       m.ID,
		SenderID: m.SenderID,
		Text:     m.EscapedText(),
		SentAt:   m.SentAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Read:     m.Read,
		Mine:     m.SenderID == viewerID,
	}
}

// MessagingService lets matched participants exchange messages. Only the two
// members of a channel may read or write it, and only while one of them has
// the other in their computed match list.
type MessagingService struct {
	messages  MessageRepository
	matches   MatchChecker
	clock     phase.Clock
	maxLength int
	metrics   Metrics
}

// NewMessagingService creates a messaging service
func NewMessagingService(messages MessageRepository, matches MatchChecker, clock phase.Clock, maxLength int, metrics Metrics) *MessagingService {
	if clock == nil {
		clock = phase.SystemClock
	}
	return &MessagingService{
		messages:  messages,
		matches:   matches,
		clock:     clock,
		maxLength: maxLength,
		metrics:   metricsOrNoop(metrics),
	}
}

// authorize resolves channelID and checks that userID may use it
func (s *MessagingService) authorize(ctx context.Context, channelID, userID string) (chat.Channel, error) {
	ch, err := chat.ParseChannelID(channelID)
	if err != nil {
		return chat.Channel{}, errors.NewValidationError("channel", "Unknown conversation")
	}
	other, err := ch.Other(userID)
	if err != nil {
		return chat.Channel{}, errors.NewAuthorizationError("You are not part of this conversation")
	}

	matched, err := s.pairMatched(ctx, userID, other)
	if err != nil {
		return chat.Channel{}, err
	}
	if !matched {
		return chat.Channel{}, errors.NewAppError(errors.ErrorTypeAuthorization, errors.CodeNotMatched,
			"You can only message your matches")
	}
	return ch, nil
}

// pairMatched reports whether either member lists the other. Per-gender
// limits make match lists asymmetric, and both members of a channel must be
// able to use it.
func (s *MessagingService) pairMatched(ctx context.Context, userID, otherID string) (bool, error) {
	matched, err := s.matches.IsMatched(ctx, userID, otherID)
	if err != nil || matched {
		return matched, err
	}
	return s.matches.IsMatched(ctx, otherID, userID)
}

// Send appends a message from senderID to the channel
func (s *MessagingService) Send(ctx context.Context, channelID, senderID, text string) (*MessageView, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "send_message",
		"service":    "messaging",
		"channel_id": channelID,
		"sender_id":  senderID,
	})

	ch, err := s.authorize(ctx, channelID, senderID)
	if err != nil {
		return nil, err
	}

	body, err := chat.ValidateText(text, s.maxLength)
	if err != nil {
		switch {
		case stderrors.Is(err, chat.ErrEmptyText):
			return nil, errors.NewValidationError("text", "Message cannot be empty")
		case stderrors.Is(err, chat.ErrTextTooLong):
			return nil, errors.NewValidationError("text", "Message is too long").WithMetadata("max_length", s.maxLength)
		}
		return nil, errors.NewValidationError("text", err.Error())
	}

	msg := &chat.Message{
		ID:        uuid.New().String(),
		ChannelID: ch.ID,
		SenderID:  senderID,
		Text:      body,
		SentAt:    s.clock.Now().UTC(),
	}
	if err := s.messages.Append(ctx, ch, msg); err != nil {
		logger.WithError(err).Error("Failed to store message")
		return nil, errors.NewDatabaseError("append message", err)
	}

	s.metrics.RecordMessageSent()
	logger.WithField("message_id", msg.ID).Info("Message sent")
	view := newMessageView(*msg, senderID)
	return &view, nil
}

// List returns the channel's messages in send order and marks the ones
// addressed to readerID as read
func (s *MessagingService) List(ctx context.Context, channelID, readerID string) ([]MessageView, error) {
	ch, err := s.authorize(ctx, channelID, readerID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.List(ctx, ch.ID)
	if err != nil {
		return nil, errors.NewDatabaseError("list messages", err)
	}
	if chat.Unread(messages, readerID) > 0 {
		if _, err := s.messages.MarkRead(ctx, ch.ID, readerID); err != nil {
			return nil, errors.NewDatabaseError("mark read", err)
		}
	}

	views := make([]MessageView, len(messages))
	for i, m := range messages {
		views[i] = newMessageView(m, readerID)
	}
	return views, nil
}

// MarkRead flags every message sent to readerID as read. Repeating it
// changes nothing.
func (s *MessagingService) MarkRead(ctx context.Context, channelID, readerID string) (int64, error) {
	ch, err := s.authorize(ctx, channelID, readerID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkRead(ctx, ch.ID, readerID)
	if err != nil {
		return 0, errors.NewDatabaseError("mark read", err)
	}
	return n, nil
}

// UnreadCount counts messages sent to readerID that are still unread
func (s *MessagingService) UnreadCount(ctx context.Context, channelID, readerID string) (int, error) {
	ch, err := s.authorize(ctx, channelID, readerID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.UnreadCount(ctx, ch.ID, readerID)
	if err != nil {
		return 0, errors.NewDatabaseError("unread count", err)
	}
	return n, nil
}

// Conversations lists userID's conversations, most recent first
func (s *MessagingService) Conversations(ctx context.Context, userID string) ([]database.ConversationSummary, error) {
	summaries, err := s.messages.ListConversations(ctx, userID)
	if err != nil {
		return nil, errors.NewDatabaseError("list conversations", err)
	}
	if summaries == nil {
		summaries = []database.ConversationSummary{}
	}
	for i := range summaries {
		if last := summaries[i].LastMessage; last != nil {
			escaped := html.EscapeString(*last)
			summaries[i].LastMessage = &escaped
		}
	}
	return summaries, nil
}
