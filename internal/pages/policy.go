package pages

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backoff selects how long to wait between re-authentication attempts
type Backoff string

const (
	BackoffNone        Backoff = "none"
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// ParseBackoff accepts "none", "fixed" or "exponential" (case-insensitive); blank means none
func ParseBackoff(s string) (Backoff, error) {
	switch b := Backoff(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackoffNone:
		return BackoffNone, nil
	case BackoffFixed, BackoffExponential:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backoff %q (expected none, fixed or exponential)", s)
	}
}

// RetryPolicy bounds the re-authenticate-and-retry loop for a page.
// The zero value retries forever without waiting.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt; 0 means unbounded
	MaxRetries int

	Backoff  Backoff
	Delay    time.Duration
	MaxDelay time.Duration

	// RetryNotFound treats 404/410 page responses like any other failure
	RetryNotFound bool
}

// DefaultRetryPolicy retries immediately and without limit
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: BackoffNone}
}

// exhausted reports whether retry number `retry` (1-based) is over the limit
func (p RetryPolicy) exhausted(retry int) bool {
	return p.MaxRetries > 0 && retry > p.MaxRetries
}

// delay returns the wait before retry number `retry` (1-based)
func (p RetryPolicy) delay(retry int) time.Duration {
	switch p.Backoff {
	case BackoffFixed:
		return p.Delay
	case BackoffExponential:
		ceiling := p.MaxDelay
		if ceiling <= 0 {
			ceiling = time.Hour
		}
		d := p.Delay
		for i := 1; i < retry && d > 0 && d < ceiling; i++ {
			d *= 2
		}
		if d > ceiling {
			d = ceiling
		}
		return d
	default:
		return 0
	}
}

// wait sleeps for the retry delay unless ctx is cancelled first
func (p RetryPolicy) wait(ctx context.Context, retry int) error {
	d := p.delay(retry)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
