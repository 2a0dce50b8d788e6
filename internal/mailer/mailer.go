// Package mailer provides the outbound email transport consumed by the
// alert dispatcher.
package mailer

import (
	"context"
	"fmt"
)

// Message is a single outbound email.
type Message struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers messages. Implementations must return a
// *TransportError for delivery failures so callers can classify them.
type Transport interface {
	// Send delivers the message and returns a transport-assigned
	// message id.
	Send(ctx context.Context, msg *Message) (string, error)
	// Verify probes connectivity without sending anything. It must
	// not block concurrent Send calls.
	Verify(ctx context.Context) error
}

// TransportError is a structured delivery failure. StatusCode carries
// the server reply code when one was received, 0 otherwise.
type TransportError struct {
	StatusCode int
	Msg        string
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error %d: %s", e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("transport error: %s", e.Msg)
}

// recipients returns all destination addresses in RCPT order.
func (m *Message) recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// validate checks the message has what SMTP needs.
func (m *Message) validate() error {
	if m.From == "" {
		return fmt.Errorf("message has no sender")
	}
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("message has no body")
	}
	return nil
}
