package retry

import (
	"errors"
	"testing"
	"time"

	ai "github.com/spetersoncode/loom"
	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 32*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, 0.1, p.Jitter)
	assert.Equal(t, 2*time.Minute, p.MaxElapsed)
}

func TestDisabled(t *testing.T) {
	p := Disabled()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, 1, p.attempts())
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
	assert.Equal(t, 100*time.Millisecond, p.Delay(-5))
}

func TestPolicyDelayMaxCap(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}
	assert.Equal(t, 5*time.Second, p.Delay(10))
}

func TestPolicyDelayJitterBounds(t *testing.T) {
	p := Policy{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   1.0,
		Jitter:       0.2,
	}

	for range 100 {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestPolicyBackoff(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	t.Run("uses computed delay without hint", func(t *testing.T) {
		assert.Equal(t, 200*time.Millisecond, p.Backoff(1, errors.New("boom")))
	})

	t.Run("retry-after hint takes precedence", func(t *testing.T) {
		err := ai.NewRateLimitError("slow down", 429, 3*time.Second, nil)
		assert.Equal(t, 3*time.Second, p.Backoff(1, err))
	})

	t.Run("shorter hint still wins", func(t *testing.T) {
		err := ai.NewRateLimitError("slow down", 429, 10*time.Millisecond, nil)
		assert.Equal(t, 10*time.Millisecond, p.Backoff(3, err))
	})
}
