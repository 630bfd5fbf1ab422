// Package mail provides outbound email delivery for instruction
// notifications.
package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/payplan-sync/internal/logging"
)

// Message is one outbound email with both HTML and plaintext bodies.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages. Send returns the provider message ID on
// success; any error means the message was not delivered.
type Mailer interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// ConsoleMailer logs messages instead of delivering them. It is the
// transport used in development and in tests.
type ConsoleMailer struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []*Message
}

// NewConsoleMailer creates a console mailer
func NewConsoleMailer(logger *logging.Logger) *ConsoleMailer {
	return &ConsoleMailer{logger: logger}
}

// Send records the message and returns a synthetic message ID
func (m *ConsoleMailer) Send(_ context.Context, msg *Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("message has no recipient")
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.WithFields(map[string]interface{}{
			"to":      msg.To,
			"subject": msg.Subject,
		}).Info("Console mailer: message not delivered")
	}

	return "console-" + uuid.New().String(), nil
}

// Sent returns the messages recorded so far
func (m *ConsoleMailer) Sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, len(m.sent))
	copy(out, m.sent)
	return out
}
