package health

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/blazealert/internal/mailer"
)

// SMTPChecker verifies the mail relay is reachable.
type SMTPChecker struct {
	transport mailer.Transport
}

// NewSMTPChecker creates a health checker for the given transport.
func NewSMTPChecker(t mailer.Transport) *SMTPChecker {
	return &SMTPChecker{transport: t}
}

// Name returns the checker name.
func (c *SMTPChecker) Name() string {
	return "smtp"
}

// Check connects to the mail relay and issues a NOOP.
func (c *SMTPChecker) Check(ctx context.Context) error {
	if c.transport == nil {
		return fmt.Errorf("smtp not configured")
	}
	return c.transport.Verify(ctx)
}

// DispatcherChecker reports whether the alert dispatcher accepts work.
type DispatcherChecker struct {
	enabled func() bool
}

// NewDispatcherChecker creates a health checker backed by the given
// enabled probe.
func NewDispatcherChecker(enabled func() bool) *DispatcherChecker {
	return &DispatcherChecker{enabled: enabled}
}

// Name returns the checker name.
func (c *DispatcherChecker) Name() string {
	return "dispatcher"
}

// Check verifies the dispatcher is enabled.
func (c *DispatcherChecker) Check(ctx context.Context) error {
	if c.enabled == nil || !c.enabled() {
		return fmt.Errorf("alert dispatcher disabled")
	}
	return nil
}
