// ABOUTME: Outbound mail senders for recovery and verification messages
// ABOUTME: Bodies are authored as Markdown templates and rendered to HTML

package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
)

// Message is one outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string // HTML
}

// Sender delivers a message to an address. Delivery is best-effort from the
// caller's point of view: callers log failures but never propagate them.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Markdown templates. Placeholders are substituted before rendering.
const (
	recoveryTemplate = `# Password reset

A password reset was requested for your {{kind}} account.

Use this code to reset your password:

**{{code}}**

If you did not request a reset, you can ignore this message.
`

	verificationTemplate = `# Verify your account

Welcome to Shoplane! Use this code to verify your {{kind}} account:

**{{code}}**
`
)

// RecoveryMessage builds the forgot-password mail for the given code.
func RecoveryMessage(to, kind, code string) (Message, error) {
	body, err := render(recoveryTemplate, map[string]string{"kind": kind, "code": code})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Reset your password", Body: body}, nil
}

// VerificationMessage builds the account-verification mail for the given code.
func VerificationMessage(to, kind, code string) (Message, error) {
	body, err := render(verificationTemplate, map[string]string{"kind": kind, "code": code})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Verify your account", Body: body}, nil
}

// render substitutes {{name}} placeholders and converts the Markdown to HTML.
func render(template string, vars map[string]string) (string, error) {
	md := template
	for name, value := range vars {
		md = strings.ReplaceAll(md, "{{"+name+"}}", value)
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("rendering mail template: %w", err)
	}
	return buf.String(), nil
}

// SMTPSender delivers mail over SMTP.
type SMTPSender struct {
	addr string // host:port
	from string
	auth smtp.Auth
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender creates an SMTP sender. Username may be empty for
// unauthenticated relays.
func NewSMTPSender(host string, port int, from, username, password string) *SMTPSender {
	s := &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// Send delivers the message via SMTP.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender writes mail to the log instead of delivering it. Used in
// development when no SMTP relay is configured.
type LogSender struct {
	logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender creates a sender that logs messages.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "mail")}
}

// Send logs the message.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("outbound mail", "to", msg.To, "subject", msg.Subject)
	return nil
}

// CaptureSender records sent messages for tests.
type CaptureSender struct {
	mu       sync.Mutex
	messages []Message
	// Fail makes Send return an error, for exercising best-effort delivery.
	Fail bool
}

var _ Sender = (*CaptureSender)(nil)

// NewCaptureSender creates a capturing sender.
func NewCaptureSender() *CaptureSender {
	return &CaptureSender{}
}

// Send records the message.
func (s *CaptureSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return fmt.Errorf("capture sender configured to fail")
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (s *CaptureSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
