package email

import (
	"context"
	"strings"

	"github.com/collabhub/collabhub/internal/logger"
)

// Sender is the interface that all email providers must implement.
type Sender interface {
	// Send sends an email to the specified recipient.
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text fallback body
}

// LogSender writes messages to the log instead of delivering them. It is the
// development default.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("email")}
}

// Send implements Sender
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("to", MaskAddress(msg.To)).
		Str("subject", msg.Subject).
		Str("body", msg.TextBody).
		Msg("email not delivered (log provider)")
	return nil
}

// MaskAddress keeps the first character of the local part and the domain,
// e.g. a***@example.com.
func MaskAddress(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
