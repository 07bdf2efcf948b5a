package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nitematch/nitematch/internal/chat"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// MessageStore persists conversations and their append-only messages.
type MessageStore struct {
	db *DB
}

func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append records m in channel ch, creating the conversation on first use and
// advancing its last-activity marker.
func (s *MessageStore) Append(ctx context.Context, ch chat.Channel, m *chat.Message) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "append_message",
		"channel_id": ch.ID,
		"message_id": m.ID,
	})

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, member_a, member_b, created_at, last_activity)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (id) DO UPDATE
			SET last_activity = GREATEST(conversations.last_activity, EXCLUDED.last_activity)`,
			ch.ID, ch.Members[0], ch.Members[1], m.SentAt,
		); err != nil {
			return fmt.Errorf("failed to upsert conversation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (id, channel_id, sender_id, text, sent_at, is_read)
			VALUES ($1, $2, $3, $4, $5, FALSE)`,
			m.ID, ch.ID, m.SenderID, m.Text, m.SentAt,
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Error("Failed to append message")
		return err
	}

	logger.Debug("Message appended")
	return nil
}

// List returns every message of channelID in send order.
func (s *MessageStore) List(ctx context.Context, channelID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, sender_id, text, sent_at, is_read
		FROM chat_messages WHERE channel_id = $1
		ORDER BY sent_at, seq`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Text, &m.SentAt, &m.Read); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// MarkRead flags every unread message not sent by readerID as read and
// returns how many changed. A second call changes nothing.
func (s *MessageStore) MarkRead(ctx context.Context, channelID, readerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE channel_id = $1 AND sender_id <> $2 AND is_read = FALSE`, channelID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.RowsAffected()
}

func (s *MessageStore) UnreadCount(ctx context.Context, channelID, readerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages
		WHERE channel_id = $1 AND sender_id <> $2 AND is_read = FALSE`, channelID, readerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// ListConversations returns userID's conversations, most recently active first.
func (s *MessageStore) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id,
		       CASE WHEN c.member_a = $1 THEN c.member_b ELSE c.member_a END,
		       c.last_activity,
		       (SELECT m.text FROM chat_messages m
		         WHERE m.channel_id = c.id ORDER BY m.sent_at DESC, m.seq DESC LIMIT 1),
		       (SELECT COUNT(*) FROM chat_messages m
		         WHERE m.channel_id = c.id AND m.sender_id <> $1 AND m.is_read = FALSE)
		FROM conversations c
		WHERE c.member_a = $1 OR c.member_b = $1
		ORDER BY c.last_activity DESC, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]ConversationSummary, 0)
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ChannelID, &cs.Counterpart, &cs.LastActivity, &cs.LastMessage, &cs.Unread); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return summaries, nil
}
