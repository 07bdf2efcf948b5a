package notification

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	config   SMTPConfig
	sendMail sendMailFunc
	now      func() time.Time
}

func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config, sendMail: smtp.SendMail, now: time.Now}
}

// Send delivers m. The call is abandoned when ctx ends first, though the
// relay may still accept the message.
func (s *SMTPSender) Send(ctx context.Context, m Mail) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":   "send_mail",
		"smtp_host":   s.config.Host,
		"fingerprint": identity.ShortFingerprint(identity.Fingerprint(m.To)),
	})

	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.compose(m)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.config.From, []string{m.To}, msg)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("Email sent")
	return nil
}

func (s *SMTPSender) compose(m Mail) ([]byte, error) {
	from, err := mail.ParseAddress(s.config.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	to, err := mail.ParseAddress(m.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return nil, fmt.Errorf("invalid subject")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return []byte(b.String()), nil
}

// LogSender writes mail to the log instead of delivering it. Used in
// development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m Mail) error {
	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":   "send_mail",
		"driver":      "log",
		"fingerprint": identity.ShortFingerprint(identity.Fingerprint(m.To)),
		"subject":     m.Subject,
		"link":        m.Link,
	}).Info("Email not delivered, logged instead")
	return nil
}
