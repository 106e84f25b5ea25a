// Package backoff gates publish attempts after failures. Every attempt goes
// through MayAttempt; nothing else enforces the platform's request budget.
package backoff

import (
	"math/rand"
	"time"

	"github.com/ayakin/bookposter/internal/publisher"
)

// Policy tracks consecutive failures and the earliest time the next attempt
// may run. It is owned by the scheduler loop and never called concurrently,
// so it carries no locking. Time is passed in rather than read from the
// clock, which keeps the state machine testable.
type Policy struct {
	base           time.Duration
	max            time.Duration
	jitterFraction float64

	failures      int
	nextAllowedAt time.Time
}

// New creates a policy with the given base and maximum delay.
func New(base, max time.Duration) *Policy {
	return &Policy{
		base:           base,
		max:            max,
		jitterFraction: 0.1,
	}
}

// MayAttempt reports whether an attempt may run at now.
func (p *Policy) MayAttempt(now time.Time) bool {
	return p.failures == 0 || !now.Before(p.nextAllowedAt)
}

// NextAllowedAt returns the earliest time the next attempt may run.
func (p *Policy) NextAllowedAt() time.Time {
	return p.nextAllowedAt
}

// Failures returns the consecutive failure count.
func (p *Policy) Failures() int {
	return p.failures
}

// OnSuccess resets the failure streak.
func (p *Policy) OnSuccess(now time.Time) {
	p.failures = 0
	p.nextAllowedAt = now
}

// OnFailure escalates the delay and returns how long the next attempt must
// wait. A rate-limited failure with an advertised retry-after never waits
// less than that value.
func (p *Policy) OnFailure(now time.Time, kind publisher.ErrorKind, retryAfter time.Duration) time.Duration {
	p.failures++

	delay := p.delayFor(p.failures)
	delay = p.jitter(delay)
	if delay > p.max {
		delay = p.max
	}
	if kind == publisher.KindRateLimited && retryAfter > delay {
		delay = retryAfter
	}

	p.nextAllowedAt = now.Add(delay)
	return delay
}

// delayFor computes min(base * 2^(n-1), max).
func (p *Policy) delayFor(failures int) time.Duration {
	delay := p.base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= p.max || delay < 0 { // overflow guard
			return p.max
		}
	}
	if delay > p.max {
		return p.max
	}
	return delay
}

// jitter spreads the delay by up to ±jitterFraction so retries don't align
// with the platform's own rate windows.
func (p *Policy) jitter(delay time.Duration) time.Duration {
	if p.jitterFraction <= 0 {
		return delay
	}
	// #nosec G404 -- jitter doesn't need cryptographic randomness
	factor := 1 + (rand.Float64()*2-1)*p.jitterFraction
	return time.Duration(float64(delay) * factor)
}
