// Package chat holds the pure rules of a two-party conversation channel.
package chat

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Separator joins the two member ids of a channel.
const Separator = "_"

// DefaultMaxLength bounds message text when no limit is configured.
const DefaultMaxLength = 1000

var (
	ErrEmptyText      = errors.New("message text is empty")
	ErrTextTooLong    = errors.New("message text is too long")
	ErrNotParticipant = errors.New("not a participant of this channel")
	ErrInvalidChannel = errors.New("invalid channel id")
)

// ChannelID derives the order-independent id for the pair a, b.
func ChannelID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, Separator)
}

// Channel is the unordered pair of participants.
type Channel struct {
	ID      string
	Members [2]string
}

// NewChannel builds the channel for a and b. A user cannot open a channel
// with themselves.
func NewChannel(a, b string) (Channel, error) {
	if a == "" || b == "" || a == b {
		return Channel{}, fmt.Errorf("%w: %q and %q", ErrInvalidChannel, a, b)
	}
	if strings.Contains(a, Separator) || strings.Contains(b, Separator) {
		return Channel{}, fmt.Errorf("%w: member id contains %q", ErrInvalidChannel, Separator)
	}
	ids := [2]string{a, b}
	if ids[1] < ids[0] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return Channel{ID: ids[0] + Separator + ids[1], Members: ids}, nil
}

// ParseChannelID splits a channel id back into its members.
func ParseChannelID(id string) (Channel, error) {
	parts := strings.Split(id, Separator)
	if len(parts) != 2 {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidChannel, id)
	}
	ch, err := NewChannel(parts[0], parts[1])
	if err != nil {
		return Channel{}, err
	}
	if ch.ID != id {
		return Channel{}, fmt.Errorf("%w: %q is not canonical", ErrInvalidChannel, id)
	}
	return ch, nil
}

// Has reports whether userID is one of the two members.
func (c Channel) Has(userID string) bool {
	return userID != "" && (c.Members[0] == userID || c.Members[1] == userID)
}

// Other returns the member that is not userID.
func (c Channel) Other(userID string) (string, error) {
	switch userID {
	case c.Members[0]:
		return c.Members[1], nil
	case c.Members[1]:
		return c.Members[0], nil
	}
	return "", ErrNotParticipant
}

// ValidateText trims text and enforces the length bound in runes.
func ValidateText(text string, max int) (string, error) {
	if max <= 0 {
		max = DefaultMaxLength
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	if n := utf8.RuneCountInString(trimmed); n > max {
		return "", fmt.Errorf("%w: %d > %d characters", ErrTextTooLong, n, max)
	}
	return trimmed, nil
}

// Message is one entry of a channel. Text is stored raw and escaped on display.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
	Read      bool      `json:"read"`
}

// EscapedText returns Text safe for embedding in HTML.
func (m Message) EscapedText() string {
	return html.EscapeString(m.Text)
}

// Unread counts messages addressed to readerID that are still unread.
func Unread(messages []Message, readerID string) int {
	n := 0
	for _, m := range messages {
		if m.SenderID != readerID && !m.Read {
			n++
		}
	}
	return n
}
