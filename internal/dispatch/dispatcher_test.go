package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/alert"
	"github.com/good-yellow-bee/blazealert/internal/clock"
	"github.com/good-yellow-bee/blazealert/internal/mailer"
)

// fakeTransport scripts send outcomes per attempt and records every
// delivered message with the fake-clock time it went out.
type fakeTransport struct {
	mu       sync.Mutex
	errs     []error // consumed per attempt; nil entry means success
	sent     []*mailer.Message
	sentAt   []time.Time
	attempts int
	clock    clock.Clock
	notify   chan struct{}
}

func newFakeTransport(clk clock.Clock, errs ...error) *fakeTransport {
	return &fakeTransport{
		errs:   errs,
		clock:  clk,
		notify: make(chan struct{}, 64),
	}
}

func (f *fakeTransport) Send(ctx context.Context, msg *mailer.Message) (string, error) {
	f.mu.Lock()
	attempt := f.attempts
	f.attempts++

	var err error
	if attempt < len(f.errs) {
		err = f.errs[attempt]
	}
	if err == nil {
		f.sent = append(f.sent, msg)
		f.sentAt = append(f.sentAt, f.clock.Now())
	}
	f.mu.Unlock()

	f.notify <- struct{}{}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("msg-%d", attempt), nil
}

func (f *fakeTransport) Verify(ctx context.Context) error {
	return nil
}

func (f *fakeTransport) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeTransport) delivered() []*mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*mailer.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) deliveredAt() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.sentAt))
	copy(out, f.sentAt)
	return out
}

// waitAttempts blocks until n send attempts completed.
func (f *fakeTransport) waitAttempts(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for attempt %d/%d", i+1, n)
		}
	}
}

// fakeRenderer records rendered batches and can be forced to fail.
type fakeRenderer struct {
	mu      sync.Mutex
	batches [][]*alert.Alert
	fail    bool
}

func (f *fakeRenderer) Render(alerts []*alert.Alert, typ alert.Type, severity alert.Severity) (string, string, error) {
	if f.fail {
		return "", "", errors.New("template exploded")
	}
	f.mu.Lock()
	f.batches = append(f.batches, alerts)
	f.mu.Unlock()
	return "<html>" + string(typ) + "</html>", string(typ), nil
}

func (f *fakeRenderer) rendered() [][]*alert.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]*alert.Alert, len(f.batches))
	copy(out, f.batches)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.From = "alerts@example.com"
	cfg.Recipients = []string{"admin@example.com"}
	cfg.RateLimit.Enabled = false
	return cfg
}

func testStart() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestDispatcher(t *testing.T, cfg Config, transport mailer.Transport, renderer Renderer, fc *clock.Fake) *Dispatcher {
	t.Helper()
	d, err := New(cfg, transport, renderer, fc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func mkAlert(typ alert.Type, severity alert.Severity, source string, at time.Time) *alert.Alert {
	return alert.New(typ, severity, source, "something broke", at)
}

func TestSendAlertsSuccessFirstAttempt(t *testing.T) {
	fc := clock.NewFake(testStart())
	tr := newFakeTransport(fc)
	d := newTestDispatcher(t, testConfig(), tr, &fakeRenderer{}, fc)

	a := mkAlert(alert.TypeJobFailure, alert.SeverityMedium, "worker-a", fc.Now())
	receipt, err := d.SendAlert(context.Background(), a)
	if err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if receipt.MessageID == "" {
		t.Error("expected message id")
	}
	if tr.attemptCount() != 1 {
		t.Errorf("attempts = %d, want 1", tr.attemptCount())
	}

	msgs := tr.delivered()
	if len(msgs) != 1 {
		t.Fatalf("delivered = %d, want 1", len(msgs))
	}
	if msgs[0].From != "alerts@example.com" {
		t.Errorf("from = %q", msgs[0].From)
	}
	if len(msgs[0].To) != 1 || msgs[0].To[0] != "admin@example.com" {
		t.Errorf("to = %v", msgs[0].To)
	}
}

func TestSendAlertsNoSenderFailsFast(t *testing.T) {
	fc := clock.NewFake(testStart())
	tr := newFakeTransport(fc)
	cfg := testConfig()
	cfg.From = ""
	d := newTestDispatcher(t, cfg, tr, &fakeRenderer{}, fc)

	a := mkAlert(alert.TypeJobFailure, alert.SeverityLow, "worker-a", fc.Now())
	_, err := d.SendAlert(context.Background(), a)
	if !errors.Is(err, ErrNoSender) {
		t.Fatalf("err = %v, want ErrNoSender", err)
	}
	if tr.attemptCount() != 0 {
		t.Errorf("attempts = %d, want 0 (config errors are not retried)", tr.attemptCount())
	}
}

func TestSendAlertsRenderErrorNotRetried(t *testing.T) {
	fc := clock.NewFake(testStart())
	tr := newFakeTransport(fc)
	d := newTestDispatcher(t, testConfig(), tr, &fakeRenderer{fail: true}, fc)

	a := mkAlert(alert.TypeJobFailure, alert.SeverityLow, "worker-a", fc.Now())
	_, err := d.SendAlert(context.Background(), a)

	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RenderError", err)
	}
	if tr.attemptCount() != 0 {
		t.Errorf("attempts = %d, want 0 (render errors are not retried)", tr.attemptCount())
	}
}

func TestSendAlertsDisabled(t *testing.T) {
	fc := clock.NewFake(testStart())
	tr := newFakeTransport(fc)
	cfg := testConfig()
	cfg.Enabled = false
	d := newTestDispatcher(t, cfg, tr, &fakeRenderer{}, fc)

	a := mkAlert(alert.TypeJobFailure, alert.SeverityLow, "worker-a", fc.Now())
	_, err := d.SendAlert(context.Background(), a)
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if tr.attemptCount() != 0 {
		t.Errorf("attempts = %d, want 0", tr.attemptCount())
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	// maxAttempts=3, delays=[1s,2s,4s]; transient on attempts 1 and
	// 2, success on 3.
	fc := clock.NewFake(testStart())
	transient := &mailer.TransportError{StatusCode: 503, Msg: "busy"}
	tr := newFakeTransport(fc, transient, transient, nil)

	cfg := testConfig()
	cfg.Retry = RetryPolicy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
	d := newTestDispatcher(t, cfg, tr, &fakeRenderer{}, fc)

	type result struct {
		receipt *Receipt
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		a := mkAlert(alert.TypeJobFailure, alert.SeverityHigh, "worker-a", fc.Now())
		r, err := d.SendAlert(context.Background(), a)
		resCh <- result{r, err}
	}()

	// First attempt fails, retry sleeps 1s.
	tr.waitAttempts(t, 1)
	fc.BlockUntil(1)
	fc.Advance(time.Second)

	// Second attempt fails, retry sleeps 2s.
	tr.waitAttempts(t, 1)
	fc.BlockUntil(1)
	fc.Advance(2 * time.Second)

	// Third attempt succeeds.
	tr.waitAttempts(t, 1)

	res := <-resCh
	if res.err != nil {
		t.Fatalf("want success on final attempt, got %v", res.err)
	}
	if tr.attemptCount() != 3 {
		t.Errorf("attempts = %d, want 3", tr.attemptCount())
	}

	// Delays requested in configured order.
	sleeps := fc.Sleeps()
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleeps[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}

	// Total backoff elapsed at least 3s before the success.
	at := tr.deliveredAt()
	if len(at) != 1 {
		t.Fatalf("delivered = %d, want 1", len(at))
	}
	if elapsed := at[0].Sub(testStart()); elapsed < 3*time.Second {
		t.Errorf("delivered after %v, want >= 3s of backoff", elapsed)
	}
}

func TestRetryExhaustion(t *testing.T) {
	fc := clock.NewFake(testStart())
	transient := &mailer.TransportError{StatusCode: 503, Msg: "busy"}
	tr := newFakeTransport(fc, transient, transient, transient)

	cfg := testConfig()
	cfg.Retry = RetryPolicy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 2 * time.Second},
	}
	d := newTestDispatcher(t, cfg, tr, &fakeRenderer{}, fc)

	errCh := make(chan error, 1)
	go func() {
		a := mkAlert(alert.TypeJobFailure, alert.SeverityHigh, "worker-a", fc.Now())
		_, err := d.SendAlert(context.Background(), a)
		errCh <- err
	}()

	tr.waitAttempts(t, 1)
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	tr.waitAttempts(t, 1)
	fc.BlockUntil(1)
	fc.Advance(2 * time.Second)
	tr.waitAttempts(t, 1)

	err := <-errCh
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if de.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", de.Attempts)
	}

	var te *mailer.TransportError
	if !errors.As(err, &te) || te.StatusCode != 503 {
		t.Errorf("DeliveryError should wrap the last transport error, got %v", err)
	}
}

func TestTerminalErrorNotRetried(t *testing.T) {
	fc := clock.NewFake(testStart())
	terminal := &mailer.TransportError{StatusCode: 401, Msg: "bad credentials"}
	tr := newFakeTransport(fc, terminal)

	d := newTestDispatcher(t, testConfig(), tr, &fakeRenderer{}, fc)

	a := mkAlert(alert.TypeJobFailure, alert.SeverityHigh, "worker-a", fc.Now())
	_, err := d.SendAlert(context.Background(), a)

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if de.Attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1 for terminal error", de.Attempts)
	}
	if tr.attemptCount() != 1 {
		t.Errorf("send calls = %d, want 1", tr.attemptCount())
	}
}

func TestDelayClampedToLastConfigured(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		Delays:      []time.Duration{time.Second, 2 * time.Second},
	}

	// Validate requires len >= MaxAttempts-1, so this policy is
	// rejected up front …
	if err := p.Validate(); err == nil {
		t.Error("expected validation error for short delay list")
	}

	// … but Delay itself still clamps for robustness.
	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v", got)
	}
	if got := p.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v", got)
	}
	if got := p.Delay(4); got != 2*time.Second {
		t.Errorf("Delay(4) = %v, want clamp to last", got)
	}
}

func TestRateLimitedSend(t *testing.T) {
	fc := clock.NewFake(testStart())
	tr := newFakeTransport(fc)

	cfg := testConfig()
	cfg.RateLimit = RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true}
	d := newTestDispatcher(t, cfg, tr, &fakeRenderer{}, fc)

	a := mkAlert(alert.TypeJobFailure, alert.SeverityLow, "worker-a", fc.Now())
	if _, err := d.SendAlert(context.Background(), a); err != nil {
		t.Fatalf("first send: %v", err)
	}

	_, err := d.SendAlert(context.Background(), a)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if tr.attemptCount() != 1 {
		t.Errorf("attempts = %d, want 1", tr.attemptCount())
	}
}

func TestSendCustomEmail(t *testing.T) {
	fc := clock.NewFake(testStart())
	tr := newFakeTransport(fc)
	d := newTestDispatcher(t, testConfig(), tr, &fakeRenderer{}, fc)

	receipt, err := d.SendCustomEmail(context.Background(), CustomEmail{
		Subject: "maintenance window",
		Text:    "alerting paused for deploy",
	})
	if err != nil {
		t.Fatalf("SendCustomEmail: %v", err)
	}
	if receipt.MessageID == "" {
		t.Error("expected message id")
	}

	msgs := tr.delivered()
	if len(msgs) != 1 {
		t.Fatalf("delivered = %d, want 1", len(msgs))
	}
	if msgs[0].Subject != "maintenance window" {
		t.Errorf("subject = %q", msgs[0].Subject)
	}
	// Falls back to configured recipients.
	if len(msgs[0].To) != 1 || msgs[0].To[0] != "admin@example.com" {
		t.Errorf("to = %v", msgs[0].To)
	}
}

func TestSendCustomEmailRetriesLikeAlerts(t *testing.T) {
	fc := clock.NewFake(testStart())
	transient := &mailer.TransportError{StatusCode: 429, Msg: "slow down"}
	tr := newFakeTransport(fc, transient, nil)

	cfg := testConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 2, Delays: []time.Duration{time.Second}}
	d := newTestDispatcher(t, cfg, tr, &fakeRenderer{}, fc)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.SendCustomEmail(context.Background(), CustomEmail{
			To:      []string{"oncall@example.com"},
			Subject: "hello",
			Text:    "body",
		})
		errCh <- err
	}()

	tr.waitAttempts(t, 1)
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	tr.waitAttempts(t, 1)

	if err := <-errCh; err != nil {
		t.Fatalf("SendCustomEmail: %v", err)
	}
	if tr.attemptCount() != 2 {
		t.Errorf("attempts = %d, want 2", tr.attemptCount())
	}
}

func TestSendAlertsEmptyBatch(t *testing.T) {
	fc := clock.NewFake(testStart())
	tr := newFakeTransport(fc)
	d := newTestDispatcher(t, testConfig(), tr, &fakeRenderer{}, fc)

	receipt, err := d.SendAlerts(context.Background(), nil, alert.TypeJobFailure, alert.SeverityLow)
	if err != nil || receipt != nil {
		t.Errorf("empty batch should be a no-op, got (%v, %v)", receipt, err)
	}
	if tr.attemptCount() != 0 {
		t.Errorf("attempts = %d, want 0", tr.attemptCount())
	}
}
