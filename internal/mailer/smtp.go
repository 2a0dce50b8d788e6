package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string // SMTP server host
	Port     int    // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string // SMTP username (optional)
	Password string // SMTP password (optional)
}

// Validate validates the SMTP configuration.
func (c *SMTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	return nil
}

// SMTPTransport delivers messages over SMTP. The server does not hand
// back a message id, so the transport assigns a UUID per accepted
// message.
type SMTPTransport struct {
	config SMTPConfig
}

// NewSMTPTransport creates a transport for the given server.
func NewSMTPTransport(config SMTPConfig) (*SMTPTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SMTP config: %w", err)
	}
	return &SMTPTransport{config: config}, nil
}

// Send delivers the message and returns the assigned message id.
// Failures are returned as *TransportError carrying the SMTP reply
// code when the server sent one.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", asTransportError(err)
	}

	client, err := t.connect(ctx)
	if err != nil {
		return "", asTransportError(err)
	}
	defer client.Close()

	if t.config.Username != "" && t.config.Password != "" {
		auth := smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
		if err := client.Auth(auth); err != nil {
			return "", asTransportError(fmt.Errorf("SMTP authentication failed: %w", err))
		}
	}

	if err := client.Mail(extractEmail(msg.From)); err != nil {
		return "", asTransportError(fmt.Errorf("failed to set sender: %w", err))
	}

	for _, rcpt := range msg.recipients() {
		if err := client.Rcpt(extractEmail(rcpt)); err != nil {
			return "", asTransportError(fmt.Errorf("failed to add recipient %s: %w", rcpt, err))
		}
	}

	w, err := client.Data()
	if err != nil {
		return "", asTransportError(fmt.Errorf("failed to start data: %w", err))
	}

	if _, err := w.Write(buildMIMEMessage(msg)); err != nil {
		return "", asTransportError(fmt.Errorf("failed to write message: %w", err))
	}

	if err := w.Close(); err != nil {
		return "", asTransportError(fmt.Errorf("failed to close data: %w", err))
	}

	if err := client.Quit(); err != nil {
		return "", asTransportError(err)
	}

	return uuid.New().String(), nil
}

// Verify dials the server and quits without sending. Each probe uses
// its own connection so it never interferes with in-flight sends.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	client, err := t.connect(ctx)
	if err != nil {
		return asTransportError(err)
	}
	defer client.Close()

	if err := client.Noop(); err != nil {
		return asTransportError(err)
	}
	return client.Quit()
}

// connect dials the server, negotiating TLS per the configured port.
func (t *SMTPTransport) connect(ctx context.Context) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)

	tlsConfig := &tls.Config{
		ServerName: t.config.Host,
	}

	if t.config.Port == 465 {
		// Implicit TLS (SMTPS)
		return t.connectImplicitTLS(addr, tlsConfig)
	}
	// STARTTLS (port 587 or 25)
	return t.connectSTARTTLS(ctx, addr, tlsConfig)
}

// connectImplicitTLS connects using implicit TLS (port 465).
func (t *SMTPTransport) connectImplicitTLS(addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}

	return smtp.NewClient(conn, t.config.Host)
}

// connectSTARTTLS connects using STARTTLS (port 587 or 25).
func (t *SMTPTransport) connectSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &net.Dialer{
		Timeout: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	return client, nil
}

// buildMIMEMessage builds a MIME multipart message with the available
// body parts.
func buildMIMEMessage(m *Message) []byte {
	boundary := fmt.Sprintf("----=_Part_%s", uuid.New().String())

	var msg strings.Builder

	// Headers
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(m.To, ", ")))
	if len(m.Cc) > 0 {
		msg.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(m.Cc, ", ")))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", m.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	// Single-part shortcut when only one body is set.
	if m.HTML == "" || m.Text == "" {
		contentType := "text/plain"
		body := m.Text
		if m.Text == "" {
			contentType = "text/html"
			body = m.HTML
		}
		msg.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\r\n", contentType))
		msg.WriteString("\r\n")
		msg.WriteString(body)
		msg.WriteString("\r\n")
		return []byte(msg.String())
	}

	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	// Plain text part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(m.Text)
	msg.WriteString("\r\n")

	// HTML part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(m.HTML)
	msg.WriteString("\r\n")

	// End boundary
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return []byte(msg.String())
}

// extractEmail extracts the email address from a "Name <email>" format.
func extractEmail(addr string) string {
	if start := strings.Index(addr, "<"); start != -1 {
		if end := strings.Index(addr, ">"); end != -1 {
			return addr[start+1 : end]
		}
	}
	return addr
}

// asTransportError normalizes any delivery failure into a
// *TransportError, lifting the SMTP reply code when present.
func asTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	var proto *textproto.Error
	if errors.As(err, &proto) {
		return &TransportError{StatusCode: proto.Code, Msg: err.Error()}
	}

	return &TransportError{Msg: err.Error()}
}
