// Package dispatch turns individual alerts into outbound email
// notifications. Same-category alerts arriving close together are
// coalesced into one notification, and sends survive transient
// transport failures through bounded, classified retries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/alert"
	"github.com/good-yellow-bee/blazealert/internal/clock"
	"github.com/good-yellow-bee/blazealert/internal/mailer"
	"github.com/good-yellow-bee/blazealert/internal/metrics"
)

// Renderer produces notification bodies for an alert batch. Satisfied
// by mailer.Renderer.
type Renderer interface {
	Render(alerts []*alert.Alert, typ alert.Type, severity alert.Severity) (html, text string, err error)
}

// Receipt reports a delivered notification.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Config configures the dispatcher.
type Config struct {
	// Enabled switches alerting on. When off, sends are skipped.
	Enabled bool
	// From is the sender address. Required for any send to succeed.
	From string
	// Recipients are the operator destination addresses.
	Recipients []string
	// DebounceWindow is how long same-category alerts are buffered
	// before one aggregated notification goes out.
	DebounceWindow time.Duration
	// Retry bounds delivery retries.
	Retry RetryPolicy
	// RateLimit guards against notification storms.
	RateLimit RateLimitConfig
}

// DefaultConfig returns a config with stock debounce and retry values.
// From and Recipients still need to be filled in.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		DebounceWindow: 5 * time.Minute,
		Retry:          DefaultRetryPolicy(),
		RateLimit:      DefaultRateLimitConfig(),
	}
}

// Validate checks the config for usable values.
func (c Config) Validate() error {
	if c.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window must not be negative")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// bucket aggregates same-category alerts until its fire time.
type bucket struct {
	alerts []*alert.Alert
	timer  clock.Timer
	fireAt time.Time
}

// Dispatcher accepts alerts, debounces them per category, and delivers
// aggregated notifications through the transport.
type Dispatcher struct {
	mu      sync.Mutex
	buckets map[alert.Type]*bucket
	closed  bool

	enabled  atomic.Bool
	cfg      Config
	policy   RetryPolicy
	limiter  *RateLimiter
	inflight sync.WaitGroup

	transport mailer.Transport
	renderer  Renderer
	clock     clock.Clock
}

// New creates a Dispatcher. The transport and renderer are required;
// clk may be nil for the real clock.
func New(cfg Config, transport mailer.Transport, renderer Renderer, clk clock.Clock) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if clk == nil {
		clk = clock.Real()
	}

	d := &Dispatcher{
		buckets:   make(map[alert.Type]*bucket),
		cfg:       cfg,
		policy:    cfg.Retry,
		limiter:   NewRateLimiter(cfg.RateLimit, clk),
		transport: transport,
		renderer:  renderer,
		clock:     clk,
	}
	d.enabled.Store(cfg.Enabled)
	return d, nil
}

// SetEnabled flips the alerting switch at runtime.
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

// Enabled reports whether alerting is switched on.
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// Enqueue buffers an alert into its category's debounce bucket. The
// first alert of a category opens the bucket and fixes its fire time
// at now + debounce window; later arrivals join the batch without
// extending it. Enqueue never blocks on delivery.
func (d *Dispatcher) Enqueue(a *alert.Alert) {
	if a == nil {
		return
	}
	if !d.enabled.Load() {
		metrics.AlertsDropped.WithLabelValues(metrics.DropDisabled).Inc()
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		metrics.AlertsDropped.WithLabelValues(metrics.DropShutdown).Inc()
		log.Printf("dropping %s alert from %s: dispatcher closed", a.Type, a.Source)
		return
	}

	typ := a.Type
	b, ok := d.buckets[typ]
	if !ok {
		b = &bucket{fireAt: d.clock.Now().Add(d.cfg.DebounceWindow)}
		b.timer = d.clock.AfterFunc(d.cfg.DebounceWindow, func() { d.flush(typ) })
		d.buckets[typ] = b
		metrics.BucketsActive.Set(float64(len(d.buckets)))
	}
	b.alerts = append(b.alerts, a)
	d.mu.Unlock()

	metrics.AlertsEnqueued.WithLabelValues(string(typ)).Inc()
}

// flush removes a category's bucket and sends its batch as one
// notification. Runs on the debounce timer goroutine; the send happens
// outside the bucket lock so buffering continues during retries.
func (d *Dispatcher) flush(typ alert.Type) {
	d.mu.Lock()
	b, ok := d.buckets[typ]
	if ok {
		delete(d.buckets, typ)
		metrics.BucketsActive.Set(float64(len(d.buckets)))
		d.inflight.Add(1)
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	defer d.inflight.Done()

	d.deliver(b.alerts, typ)
}

// deliver sends a flushed batch, logging failures. A failed send must
// not take the dispatcher down; subsequent alerts keep flowing.
func (d *Dispatcher) deliver(alerts []*alert.Alert, typ alert.Type) {
	if len(alerts) == 0 {
		return
	}

	metrics.DebounceFlushes.WithLabelValues(string(typ)).Inc()

	receipt, err := d.SendAlerts(context.Background(), alerts, typ, alert.MaxSeverity(alerts))
	switch {
	case errors.Is(err, ErrDisabled):
		// Disabled between enqueue and flush; nothing to do.
	case err != nil:
		log.Printf("failed to deliver %d %s alert(s): %v", len(alerts), typ, err)
	default:
		log.Printf("delivered %d %s alert(s), message %s", len(alerts), typ, receipt.MessageID)
	}
}

// SendAlert sends a single alert immediately, bypassing debounce.
func (d *Dispatcher) SendAlert(ctx context.Context, a *alert.Alert) (*Receipt, error) {
	return d.SendAlerts(ctx, []*alert.Alert{a}, a.Type, a.Severity)
}

// SendAlerts renders a notification for the batch and sends it with
// retries. Returns a Receipt on success or a typed error: ErrDisabled,
// ErrNoSender, ErrRateLimited, *RenderError, or *DeliveryError.
func (d *Dispatcher) SendAlerts(ctx context.Context, alerts []*alert.Alert, typ alert.Type, severity alert.Severity) (*Receipt, error) {
	if len(alerts) == 0 {
		return nil, nil
	}
	if !d.enabled.Load() {
		metrics.AlertsDropped.WithLabelValues(metrics.DropDisabled).Inc()
		return nil, ErrDisabled
	}
	if d.cfg.From == "" {
		return nil, ErrNoSender
	}
	if !d.limiter.Allow() {
		metrics.AlertsDropped.WithLabelValues(metrics.DropRateLimited).Inc()
		return nil, ErrRateLimited
	}

	html, text, err := d.renderer.Render(alerts, typ, severity)
	if err != nil {
		d.limiter.Release()
		metrics.Sends.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, &RenderError{Err: err}
	}

	subject := fmt.Sprintf("[%s] BlazeAlert: %d %s alert(s)",
		strings.ToUpper(string(severity)), len(alerts), typ)

	msg := &mailer.Message{
		From:    d.cfg.From,
		To:      d.cfg.Recipients,
		Subject: subject,
		Text:    text,
		HTML:    html,
	}

	return d.send(ctx, msg)
}

// CustomEmail is an ad hoc administrative message that skips the
// alert templates.
type CustomEmail struct {
	To      []string // defaults to the configured recipients
	Subject string
	Text    string
	HTML    string
}

// SendCustomEmail sends an ad hoc message with the same retry and
// error semantics as alert notifications. The storm guard does not
// apply; these are operator-initiated.
func (d *Dispatcher) SendCustomEmail(ctx context.Context, email CustomEmail) (*Receipt, error) {
	if !d.enabled.Load() {
		return nil, ErrDisabled
	}
	if d.cfg.From == "" {
		return nil, ErrNoSender
	}

	to := email.To
	if len(to) == 0 {
		to = d.cfg.Recipients
	}

	msg := &mailer.Message{
		From:    d.cfg.From,
		To:      to,
		Subject: email.Subject,
		Text:    email.Text,
		HTML:    email.HTML,
	}

	start := d.clock.Now()
	receipt, err := d.sendWithRetry(ctx, msg)
	d.observe(start, err)
	return receipt, err
}

// send runs the retry loop with metrics and storm-guard accounting.
func (d *Dispatcher) send(ctx context.Context, msg *mailer.Message) (*Receipt, error) {
	start := d.clock.Now()
	receipt, err := d.sendWithRetry(ctx, msg)
	if err != nil {
		// Refund the storm-guard token: nothing went out.
		d.limiter.Release()
	}
	d.observe(start, err)
	return receipt, err
}

func (d *Dispatcher) observe(start time.Time, err error) {
	metrics.SendDuration.Observe(d.clock.Now().Sub(start).Seconds())
	if err != nil {
		metrics.Sends.WithLabelValues(metrics.ResultFailure).Inc()
	} else {
		metrics.Sends.WithLabelValues(metrics.ResultSuccess).Inc()
	}
}

// Pending returns the number of alerts currently buffered across all
// buckets.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, b := range d.buckets {
		n += len(b.alerts)
	}
	return n
}

// Close stops accepting alerts, flushes every open bucket immediately,
// and waits for in-flight sends to finish or fail. The context bounds
// the wait; pending work is abandoned when it expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true

	remaining := d.buckets
	d.buckets = make(map[alert.Type]*bucket)
	metrics.BucketsActive.Set(0)
	for _, b := range remaining {
		if b.timer != nil {
			b.timer.Stop()
		}
	}
	d.mu.Unlock()

	// Flush stolen buckets synchronously so a scheduled batch is
	// never silently dropped at shutdown.
	for typ, b := range remaining {
		d.deliver(b.alerts, typ)
	}

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}
}
