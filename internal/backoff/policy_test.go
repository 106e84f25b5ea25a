package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ayakin/bookposter/internal/publisher"
)

func newBarePolicy(base, max time.Duration) *Policy {
	p := New(base, max)
	p.jitterFraction = 0 // deterministic delays for assertions
	return p
}

func TestPolicy_MayAttempt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fresh policy is ready", func(t *testing.T) {
		p := newBarePolicy(30*time.Second, 15*time.Minute)
		assert.True(t, p.MayAttempt(now))
	})

	t.Run("waiting until next allowed time", func(t *testing.T) {
		p := newBarePolicy(30*time.Second, 15*time.Minute)
		p.OnFailure(now, publisher.KindTransientNetwork, 0)

		next := p.NextAllowedAt()
		assert.False(t, p.MayAttempt(next.Add(-time.Nanosecond)))
		assert.True(t, p.MayAttempt(next))
		assert.True(t, p.MayAttempt(next.Add(time.Second)))
	})
}

func TestPolicy_OnFailure(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("exponential growth with cap", func(t *testing.T) {
		p := newBarePolicy(30*time.Second, 5*time.Minute)

		var prev time.Duration
		for i := 0; i < 8; i++ {
			delay := p.OnFailure(now, publisher.KindTransientNetwork, 0)
			assert.GreaterOrEqual(t, delay, prev, "delay must not decrease")
			assert.LessOrEqual(t, delay, 5*time.Minute, "delay must not exceed max")
			prev = delay
		}
		assert.Equal(t, 5*time.Minute, prev)
		assert.Equal(t, 8, p.Failures())
	})

	t.Run("exact doubling", func(t *testing.T) {
		p := newBarePolicy(30*time.Second, 15*time.Minute)
		assert.Equal(t, 30*time.Second, p.OnFailure(now, publisher.KindTransientNetwork, 0))
		assert.Equal(t, time.Minute, p.OnFailure(now, publisher.KindTransientNetwork, 0))
		assert.Equal(t, 2*time.Minute, p.OnFailure(now, publisher.KindTransientNetwork, 0))
	})

	t.Run("rate limited honors retry-after floor", func(t *testing.T) {
		p := newBarePolicy(30*time.Second, 15*time.Minute)
		delay := p.OnFailure(now, publisher.KindRateLimited, 30*time.Minute)
		assert.Equal(t, 30*time.Minute, delay)
		assert.Equal(t, now.Add(30*time.Minute), p.NextAllowedAt())

		assert.False(t, p.MayAttempt(now.Add(29*time.Minute)))
		assert.True(t, p.MayAttempt(now.Add(30*time.Minute)))
	})

	t.Run("retry-after below exponential delay is ignored", func(t *testing.T) {
		p := newBarePolicy(time.Minute, 15*time.Minute)
		p.OnFailure(now, publisher.KindTransientNetwork, 0)
		p.OnFailure(now, publisher.KindTransientNetwork, 0)

		delay := p.OnFailure(now, publisher.KindRateLimited, time.Second)
		assert.Equal(t, 4*time.Minute, delay)
	})

	t.Run("jitter stays within ten percent", func(t *testing.T) {
		p := New(time.Minute, 15*time.Minute)
		for i := 0; i < 50; i++ {
			p.failures = 0
			delay := p.OnFailure(now, publisher.KindTransientNetwork, 0)
			assert.GreaterOrEqual(t, delay, 54*time.Second)
			assert.LessOrEqual(t, delay, 66*time.Second)
		}
	})

	t.Run("jittered delay never exceeds max", func(t *testing.T) {
		p := New(time.Minute, 2*time.Minute)
		for i := 0; i < 50; i++ {
			delay := p.OnFailure(now, publisher.KindTransientNetwork, 0)
			assert.LessOrEqual(t, delay, 2*time.Minute)
		}
	})
}

func TestPolicy_OnSuccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := newBarePolicy(30*time.Second, 15*time.Minute)

	p.OnFailure(now, publisher.KindTransientNetwork, 0)
	p.OnFailure(now, publisher.KindTransientNetwork, 0)
	assert.Equal(t, 2, p.Failures())

	p.OnSuccess(now)
	assert.Equal(t, 0, p.Failures())
	assert.True(t, p.MayAttempt(now))

	// A failure after reset starts from the base delay again
	delay := p.OnFailure(now, publisher.KindTransientNetwork, 0)
	assert.Equal(t, 30*time.Second, delay)
}
