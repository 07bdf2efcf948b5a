// Package notification delivers out-of-band messages such as login links.
package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Mail is a plain-text transactional email.
type Mail struct {
	To      string
	Subject string
	Body    string
	// Link is the actionable URL inside Body, kept for senders that log
	// instead of delivering.
	Link string
}

// Sender delivers mail. Implementations must report delivery failure rather
// than swallow it.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// VerifyPath is the route that redeems a login link.
const VerifyPath = "/api/auth/verify"

// MagicLinkURL builds "<base>/api/auth/verify?token=<token>".
func MagicLinkURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + VerifyPath)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// MagicLinkMail composes the login email for to.
func MagicLinkMail(baseURL, to, token string, ttl time.Duration) (Mail, error) {
	link, err := MagicLinkURL(baseURL, token)
	if err != nil {
		return Mail{}, err
	}

	var b strings.Builder
	b.WriteString("Hi,\r\n\r\n")
	b.WriteString("Use the link below to sign in and see your matches:\r\n\r\n")
	b.WriteString(link)
	b.WriteString("\r\n\r\n")
	fmt.Fprintf(&b, "The link works once and expires in %s.\r\n", humanDuration(ttl))
	b.WriteString("If you did not ask for it, you can ignore this email.\r\n")

	return Mail{
		To:      to,
		Subject: "Your sign-in link",
		Body:    b.String(),
		Link:    link,
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute && d%time.Minute == 0:
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return d.String()
}
