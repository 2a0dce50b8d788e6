package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Timers fire when
// Advance moves the fake time past their deadline; callbacks run in
// their own goroutine, mirroring time.AfterFunc.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*fakeWaiter
	sleeps  []time.Duration
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	fn       func()
	stopped  bool
}

// NewFake returns a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that fires once Advance passes d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	f.sleeps = append(f.sleeps, d)

	if d <= 0 {
		ch <- f.now
		return ch
	}

	f.waiters = append(f.waiters, &fakeWaiter{deadline: f.now.Add(d), ch: ch})
	f.cond.Broadcast()
	return ch
}

// AfterFunc schedules fn to run once Advance passes d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sleeps = append(f.sleeps, d)

	w := &fakeWaiter{deadline: f.now.Add(d), fn: fn}
	if d <= 0 {
		go fn()
		w.stopped = true
		return w
	}

	f.waiters = append(f.waiters, w)
	f.cond.Broadcast()
	return w
}

// Stop cancels the waiter. Returns false if it already fired.
func (w *fakeWaiter) Stop() bool {
	if w.stopped {
		return false
	}
	w.stopped = true
	return true
}

// Advance moves the fake time forward and fires all due timers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()

	f.now = f.now.Add(d)
	now := f.now

	var due []*fakeWaiter
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if w.stopped {
			continue
		}
		if !w.deadline.After(now) {
			due = append(due, w)
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining
	f.mu.Unlock()

	for _, w := range due {
		w.stopped = true
		if w.fn != nil {
			go w.fn()
		} else {
			w.ch <- now
		}
	}
}

// BlockUntil waits until at least n timers are pending. Used by tests
// to synchronize with goroutines that are about to sleep.
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.cond.Wait()
	}
}

func (f *Fake) pendingLocked() int {
	count := 0
	for _, w := range f.waiters {
		if !w.stopped {
			count++
		}
	}
	return count
}

// Sleeps returns every duration requested via After or AfterFunc, in
// order, including zero-length ones.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
