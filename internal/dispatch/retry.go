package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/mailer"
	"github.com/good-yellow-bee/blazealert/internal/metrics"
)

// RetryPolicy bounds send retries. Delays are indexed by attempt; the
// last configured delay is reused when attempts run past the list.
type RetryPolicy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// DefaultRetryPolicy returns the stock policy: 3 attempts backed off
// 1s then 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 5 * time.Second},
	}
}

// Validate checks the policy for usable values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if len(p.Delays) < p.MaxAttempts-1 {
		return fmt.Errorf("need at least %d delays for %d attempts, have %d",
			p.MaxAttempts-1, p.MaxAttempts, len(p.Delays))
	}
	for i, d := range p.Delays {
		if d < 0 {
			return fmt.Errorf("delay %d is negative", i)
		}
	}
	return nil
}

// Delay returns the backoff before the retry that follows attempt,
// clamped to the last configured delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt]
}

// sendWithRetry pushes a message through the transport, retrying
// transient failures per the policy. It holds no dispatcher lock, so
// new alerts keep buffering while a send backs off.
func (d *Dispatcher) sendWithRetry(ctx context.Context, msg *mailer.Message) (*Receipt, error) {
	var lastErr error

	for attempt := 0; attempt < d.policy.MaxAttempts; attempt++ {
		metrics.SendAttempts.Inc()

		id, err := d.transport.Send(ctx, msg)
		if err == nil {
			return &Receipt{MessageID: id, SentAt: d.clock.Now()}, nil
		}
		lastErr = err

		if !IsTransient(err) {
			// Terminal: remaining attempts would burn the same way.
			return nil, &DeliveryError{Attempts: attempt + 1, Err: err}
		}
		if attempt == d.policy.MaxAttempts-1 {
			break
		}

		delay := d.policy.Delay(attempt)
		log.Printf("send attempt %d/%d failed, retrying in %s: %v",
			attempt+1, d.policy.MaxAttempts, delay, err)

		select {
		case <-ctx.Done():
			return nil, &DeliveryError{Attempts: attempt + 1, Err: ctx.Err()}
		case <-d.clock.After(delay):
		}
	}

	return nil, &DeliveryError{Attempts: d.policy.MaxAttempts, Err: lastErr}
}
