package detector

import (
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/alert"
	"github.com/good-yellow-bee/blazealert/internal/clock"
)

// captureForwarder records forwarded escalation alerts.
type captureForwarder struct {
	mu     sync.Mutex
	alerts []*alert.Alert
}

func (c *captureForwarder) Enqueue(a *alert.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
}

func (c *captureForwarder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func newTestDetector(t *testing.T, settings Settings) (*Detector, *captureForwarder) {
	t.Helper()
	fw := &captureForwarder{}
	fc := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return New(settings, fw, fc), fw
}

func TestTrackFailureBelowThreshold(t *testing.T) {
	d, fw := newTestDetector(t, Settings{FailuresInWindow: 5, TimeWindow: 10 * time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		d.TrackFailure("worker-a", base.Add(time.Duration(i)*time.Second), "boom")
	}

	if fw.count() != 0 {
		t.Errorf("escalations = %d, want 0", fw.count())
	}
	if got := d.CurrentCount("worker-a", base.Add(4*time.Second)); got != 4 {
		t.Errorf("count = %d, want 4", got)
	}
}

func TestTrackFailureEscalatesOnceAndResets(t *testing.T) {
	d, fw := newTestDetector(t, Settings{FailuresInWindow: 5, TimeWindow: 10 * time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 5 failures for worker-A within 1 minute.
	for i := 0; i < 5; i++ {
		d.TrackFailure("worker-A", base.Add(time.Duration(i)*10*time.Second), "job crashed")
	}

	if fw.count() != 1 {
		t.Fatalf("escalations = %d, want 1", fw.count())
	}

	a := fw.alerts[0]
	if a.Type != alert.TypeRepeatedFailures {
		t.Errorf("type = %s, want %s", a.Type, alert.TypeRepeatedFailures)
	}
	if a.Severity != alert.SeverityHigh {
		t.Errorf("severity = %s, want %s", a.Severity, alert.SeverityHigh)
	}
	if a.Source != "worker-A" {
		t.Errorf("source = %s, want worker-A", a.Source)
	}
	if a.Context["failure_count"] != "5" {
		t.Errorf("failure_count = %q, want 5", a.Context["failure_count"])
	}
	if a.Context["last_error"] != "job crashed" {
		t.Errorf("last_error = %q", a.Context["last_error"])
	}

	// Window reset: count is 0 immediately after escalation.
	if got := d.CurrentCount("worker-A", base.Add(time.Minute)); got != 0 {
		t.Errorf("count after escalation = %d, want 0", got)
	}

	// The next failure starts a fresh count, no second escalation.
	d.TrackFailure("worker-A", base.Add(2*time.Minute), "job crashed")
	if fw.count() != 1 {
		t.Errorf("escalations = %d, want still 1", fw.count())
	}
	if got := d.CurrentCount("worker-A", base.Add(2*time.Minute)); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestTrackFailureExpiredEntriesDoNotCount(t *testing.T) {
	d, fw := newTestDetector(t, Settings{FailuresInWindow: 3, TimeWindow: time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.TrackFailure("worker-a", base, "x")
	d.TrackFailure("worker-a", base.Add(10*time.Second), "x")
	// Third failure lands after the first two expired.
	d.TrackFailure("worker-a", base.Add(2*time.Minute), "x")

	if fw.count() != 0 {
		t.Errorf("escalations = %d, want 0", fw.count())
	}
	if got := d.CurrentCount("worker-a", base.Add(2*time.Minute)); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	d, fw := newTestDetector(t, Settings{FailuresInWindow: 3, TimeWindow: 10 * time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.TrackFailure("worker-a", base, "x")
	d.TrackFailure("worker-a", base.Add(time.Second), "x")
	d.TrackFailure("worker-b", base, "x")

	if fw.count() != 0 {
		t.Fatalf("escalations = %d, want 0", fw.count())
	}

	d.TrackFailure("worker-a", base.Add(2*time.Second), "x")
	if fw.count() != 1 {
		t.Errorf("escalations = %d, want 1", fw.count())
	}
	if got := d.CurrentCount("worker-b", base.Add(2*time.Second)); got != 1 {
		t.Errorf("worker-b count = %d, want 1", got)
	}
}

func TestUnknownSourceCountsZero(t *testing.T) {
	d, _ := newTestDetector(t, DefaultSettings())

	if got := d.CurrentCount("never-seen", time.Now()); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestResetSingleSource(t *testing.T) {
	d, _ := newTestDetector(t, DefaultSettings())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.TrackFailure("worker-a", base, "x")
	d.TrackFailure("worker-b", base, "x")

	d.Reset("worker-a")

	if got := d.CurrentCount("worker-a", base); got != 0 {
		t.Errorf("worker-a count = %d, want 0", got)
	}
	if got := d.CurrentCount("worker-b", base); got != 1 {
		t.Errorf("worker-b count = %d, want 1", got)
	}
}

func TestResetAll(t *testing.T) {
	d, _ := newTestDetector(t, DefaultSettings())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.TrackFailure("worker-a", base, "x")
	d.TrackFailure("worker-b", base, "x")

	d.ResetAll()

	if got := d.CurrentCount("worker-a", base); got != 0 {
		t.Errorf("worker-a count = %d, want 0", got)
	}
	if got := d.CurrentCount("worker-b", base); got != 0 {
		t.Errorf("worker-b count = %d, want 0", got)
	}
}

func TestUpdateSettings(t *testing.T) {
	d, fw := newTestDetector(t, Settings{FailuresInWindow: 10, TimeWindow: 10 * time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.TrackFailure("worker-a", base, "x")
	d.TrackFailure("worker-a", base.Add(time.Second), "x")

	if err := d.UpdateSettings(Settings{FailuresInWindow: 3, TimeWindow: 10 * time.Minute}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	d.TrackFailure("worker-a", base.Add(2*time.Second), "x")
	if fw.count() != 1 {
		t.Errorf("escalations = %d, want 1 under new threshold", fw.count())
	}
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	d, _ := newTestDetector(t, DefaultSettings())

	if err := d.UpdateSettings(Settings{FailuresInWindow: 0, TimeWindow: time.Minute}); err == nil {
		t.Error("expected error for zero threshold")
	}
	if err := d.UpdateSettings(Settings{FailuresInWindow: 1, TimeWindow: 0}); err == nil {
		t.Error("expected error for zero window")
	}
}

func TestConcurrentTrackFailureSingleEscalation(t *testing.T) {
	d, fw := newTestDetector(t, Settings{FailuresInWindow: 100, TimeWindow: time.Hour})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.TrackFailure("worker-a", base.Add(time.Duration(i)*time.Millisecond), "x")
		}(i)
	}
	wg.Wait()

	// Exactly one goroutine observes the 100th insert.
	if fw.count() != 1 {
		t.Errorf("escalations = %d, want 1", fw.count())
	}
}
