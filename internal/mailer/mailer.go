// Package mailer delivers transactional mail over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gloads/portal/pkg/queue"
)

// Message is a plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Config holds SMTP delivery settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// SMTP sends messages through one relay.
type SMTP struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP creates an SMTP sender.
func NewSMTP(cfg Config) *SMTP {
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

// Send delivers msg. smtp.SendMail has no context support, so ctx is only checked before dialing.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	raw := s.render(msg, time.Now())
	if err := s.send(addr, auth, s.cfg.FromAddress, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTP) render(msg Message, now time.Time) []byte {
	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.FromAddress}
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}

// ResetLink appends the token to the frontend reset page URL.
func ResetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// PasswordReset builds the reset mail for a queued job.
func PasswordReset(p queue.PasswordResetEmailPayload, resetURLBase string) Message {
	link := ResetLink(resetURLBase, p.Token)
	body := fmt.Sprintf(`Hi @%s,

We received a request to reset your GloAds password. Open the link below to choose a new one:

%s

The link expires at %s. If you did not ask for a reset you can ignore this mail.
`, p.Handle, link, p.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	return Message{To: p.RecipientEmail, Subject: "Reset your GloAds password", Body: body}
}
