// Package retry re-runs storage operations that fail transiently, backing
// off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

var (
	// ErrMaxAttemptsExceeded wraps the last error once every attempt failed.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when ctx ends between attempts.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Policy defaults
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 100 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// Attempts counts the first call.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Transient reports whether err is worth another attempt. Defaults to
	// IsTransient.
	Transient func(err error) bool
}

// WithRetries returns the default policy allowing n retries after the first
// attempt.
func WithRetries(n int) Policy {
	return Policy{Attempts: n + 1}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Transient == nil {
		p.Transient = IsTransient
	}
	return p
}

// Backoff is the wait after the given failed attempt (1-based): the base
// delay doubled per attempt, capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Do calls fn until it succeeds, fails permanently, runs out of attempts or
// ctx ends.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	p = p.normalized()

	var err error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		if err = fn(); err == nil || !p.Transient(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, p.Attempts, err)
}

// Object store error text that signals a transient condition.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"temporary failure",
	"network is unreachable",
	"slowdown",
	"slow down",
	"service unavailable",
	"internal error",
	"timeout",
}

// IsTransient reports true for network timeouts and throttling or 5xx
// replies. Missing objects and cancellation are permanent.
func IsTransient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, apperrors.ErrNotFound):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
