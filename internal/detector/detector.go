// Package detector converts streams of per-source failure reports into
// escalation alerts when a source exceeds a failure-rate threshold
// within a trailing time window.
package detector

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/alert"
	"github.com/good-yellow-bee/blazealert/internal/clock"
	"github.com/good-yellow-bee/blazealert/internal/metrics"
)

// Forwarder receives escalation alerts produced by the detector.
// Satisfied by the dispatch.Dispatcher.
type Forwarder interface {
	Enqueue(a *alert.Alert)
}

// Settings configures the escalation threshold.
type Settings struct {
	// FailuresInWindow is the count that triggers an escalation.
	FailuresInWindow int
	// TimeWindow is the trailing window failures are counted over.
	TimeWindow time.Duration
}

// DefaultSettings returns the stock threshold: 5 failures in 10 minutes.
func DefaultSettings() Settings {
	return Settings{
		FailuresInWindow: 5,
		TimeWindow:       10 * time.Minute,
	}
}

// Validate checks settings for usable values.
func (s Settings) Validate() error {
	if s.FailuresInWindow < 1 {
		return fmt.Errorf("failures_in_window must be at least 1")
	}
	if s.TimeWindow <= 0 {
		return fmt.Errorf("time_window must be positive")
	}
	return nil
}

// sweepInterval controls how often TrackFailure sweeps sources whose
// windows have drained, bounding map growth in long-running processes.
const sweepInterval = 256

// Detector tracks per-source failure windows and forwards a single
// escalation alert when a source crosses the threshold.
type Detector struct {
	mu       sync.Mutex
	settings Settings
	windows  map[string]*failureWindow
	tracked  uint64

	forwarder Forwarder
	clock     clock.Clock
}

// New creates a Detector forwarding escalations to fw.
func New(settings Settings, fw Forwarder, clk clock.Clock) *Detector {
	if clk == nil {
		clk = clock.Real()
	}
	return &Detector{
		settings:  settings,
		windows:   make(map[string]*failureWindow),
		forwarder: fw,
		clock:     clk,
	}
}

// TrackFailure records one failure for a source. If the source's count
// within the window reaches the threshold, exactly one escalation
// alert is forwarded and the window is reset so the next failure
// starts a fresh count.
func (d *Detector) TrackFailure(source string, occurredAt time.Time, errInfo string) {
	metrics.FailuresTracked.Inc()

	d.mu.Lock()
	settings := d.settings
	w, ok := d.windows[source]
	if !ok {
		w = newFailureWindow(settings.TimeWindow)
		d.windows[source] = w
		metrics.TrackedSources.Set(float64(len(d.windows)))
	}
	d.tracked++
	sweep := d.tracked%sweepInterval == 0
	d.mu.Unlock()

	count, tripped := w.record(occurredAt, settings.FailuresInWindow)
	if tripped {
		d.escalate(source, occurredAt, count, settings, errInfo)
	}

	if sweep {
		d.evictIdle(occurredAt)
	}
}

// escalate builds and forwards the REPEATED_FAILURES alert. Runs
// outside the map lock so a slow forwarder cannot stall other sources.
func (d *Detector) escalate(source string, occurredAt time.Time, count int, settings Settings, errInfo string) {
	metrics.EscalationsTotal.Inc()

	msg := fmt.Sprintf("%s failed %d times within %s", source, count, settings.TimeWindow)
	ctx := map[string]string{
		"failure_count": strconv.Itoa(count),
		"time_window":   settings.TimeWindow.String(),
	}
	if errInfo != "" {
		ctx["last_error"] = errInfo
	}

	a := alert.New(alert.TypeRepeatedFailures, alert.SeverityHigh, source, msg, occurredAt).
		WithContext(ctx)

	log.Printf("escalating %s: %d failures in %s", source, count, settings.TimeWindow)

	if d.forwarder != nil {
		d.forwarder.Enqueue(a)
	}
}

// Count returns the failure count for a source as of the current time.
func (d *Detector) Count(source string) int {
	return d.CurrentCount(source, d.clock.Now())
}

// CurrentCount returns the failures recorded for a source within the
// trailing window as of now. Sources never seen report 0. The read
// does not mutate stored state.
func (d *Detector) CurrentCount(source string, now time.Time) int {
	d.mu.Lock()
	w, ok := d.windows[source]
	d.mu.Unlock()

	if !ok {
		return 0
	}
	return w.countAt(now)
}

// Reset clears the failure history for one source.
func (d *Detector) Reset(source string) {
	d.mu.Lock()
	w, ok := d.windows[source]
	if ok {
		delete(d.windows, source)
		metrics.TrackedSources.Set(float64(len(d.windows)))
	}
	d.mu.Unlock()

	if ok {
		w.reset()
	}
}

// ResetAll clears the failure history for every source.
func (d *Detector) ResetAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.windows = make(map[string]*failureWindow)
	metrics.TrackedSources.Set(0)
}

// UpdateSettings applies new threshold settings. Existing windows keep
// their recorded timestamps but trim against the new duration.
func (d *Detector) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.settings = settings
	for _, w := range d.windows {
		w.setWindow(settings.TimeWindow)
	}
	return nil
}

// Settings returns the active threshold settings.
func (d *Detector) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// evictIdle drops sources whose windows hold nothing as of now.
func (d *Detector) evictIdle(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for source, w := range d.windows {
		if w.empty(now) {
			delete(d.windows, source)
		}
	}
	metrics.TrackedSources.Set(float64(len(d.windows)))
}
