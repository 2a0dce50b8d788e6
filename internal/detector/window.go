package detector

import (
	"sync"
	"time"
)

// failureWindow holds the failure timestamps for one source, trimmed
// to a trailing time window. A timestamp exactly window-old is still
// counted: the retained range is [now-window, now].
type failureWindow struct {
	mu      sync.Mutex
	window  time.Duration
	events  []time.Time
	maxSize int
}

// windowMaxSize caps per-source history so a runaway producer cannot
// grow memory without bound.
const windowMaxSize = 100000

func newFailureWindow(window time.Duration) *failureWindow {
	return &failureWindow{
		window:  window,
		events:  make([]time.Time, 0, 16),
		maxSize: windowMaxSize,
	}
}

// record adds a failure and checks it against the threshold in one
// critical section, so concurrent writers cannot both observe the
// trip. When the window trips it is cleared before the lock drops,
// preventing immediate re-triggering.
func (w *failureWindow) record(t time.Time, threshold int) (count int, tripped bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneOldLocked(t)
	w.events = append(w.events, t)

	if len(w.events) > w.maxSize {
		// Keep only the most recent half
		w.events = w.events[len(w.events)/2:]
	}

	count = len(w.events)
	if threshold > 0 && count >= threshold {
		w.events = w.events[:0]
		tripped = true
	}
	return count, tripped
}

// countAt returns the number of failures within the window at t
// without mutating stored state.
func (w *failureWindow) countAt(t time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.events) - w.firstRetainedLocked(t)
}

// pruneOldLocked removes events older than the window.
// Must be called with lock held.
func (w *failureWindow) pruneOldLocked(now time.Time) {
	if left := w.firstRetainedLocked(now); left > 0 {
		w.events = w.events[left:]
	}
}

// firstRetainedLocked returns the index of the first event at or after
// now-window. Events are appended in non-decreasing order, so a binary
// search applies.
func (w *failureWindow) firstRetainedLocked(now time.Time) int {
	cutoff := now.Add(-w.window)

	left, right := 0, len(w.events)
	for left < right {
		mid := (left + right) / 2
		if w.events[mid].Before(cutoff) {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// reset clears all recorded failures.
func (w *failureWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = w.events[:0]
}

// empty reports whether the window holds no events inside the window
// as of t.
func (w *failureWindow) empty(t time.Time) bool {
	return w.countAt(t) == 0
}

// setWindow updates the window duration for subsequent trims.
func (w *failureWindow) setWindow(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.window = d
}
