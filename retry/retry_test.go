package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	ai "github.com/spetersoncode/loom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func rateLimited() error {
	return ai.NewRateLimitError("rate limited", 429, 0, nil)
}

func TestDoSuccess(t *testing.T) {
	callCount := 0

	result, err := Do(context.Background(), DefaultPolicy(), func() (string, error) {
		callCount++
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 1, callCount)
}

func TestDoRateLimitThenSuccess(t *testing.T) {
	t.Run("succeeds on third attempt with three allowed", func(t *testing.T) {
		callCount := 0
		result, err := Do(context.Background(), fastPolicy(3), func() (string, error) {
			callCount++
			if callCount < 3 {
				return "", rateLimited()
			}
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 3, callCount)
	})

	t.Run("fails terminally with two allowed", func(t *testing.T) {
		callCount := 0
		_, err := Do(context.Background(), fastPolicy(2), func() (string, error) {
			callCount++
			if callCount < 3 {
				return "", rateLimited()
			}
			return "ok", nil
		})

		require.Error(t, err)
		assert.Equal(t, 2, callCount)

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 2, exhausted.Attempts)
		assert.Equal(t, Terminal, Classify(err))

		var upstream *ai.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, ai.ErrorRateLimit, upstream.Category())
	})
}

func TestDoNoRetryOnTerminalError(t *testing.T) {
	callCount := 0
	authErr := ai.NewUpstreamError(ai.ErrorAuth, "bad key", 401, nil)

	_, err := Do(context.Background(), fastPolicy(5), func() (string, error) {
		callCount++
		return "", authErr
	})

	assert.Same(t, authErr, err)
	assert.Equal(t, 1, callCount)
}

func TestDoRespectsMaxElapsed(t *testing.T) {
	p := Policy{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   1.0,
		MaxElapsed:   20 * time.Millisecond,
	}
	callCount := 0

	_, err := Do(context.Background(), p, func() (string, error) {
		callCount++
		return "", rateLimited()
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, callCount, "the first wait would exceed the elapsed bound")
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1.0}

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, p, func() (string, error) {
		callCount++
		return "", rateLimited()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func TestDoNotify(t *testing.T) {
	var events []Event
	callCount := 0

	_, err := Do(context.Background(), fastPolicy(2), func() (int, error) {
		callCount++
		return 0, rateLimited()
	}, WithNotify(func(e Event) { events = append(events, e) }))

	require.Error(t, err)
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, []EventType{EventAttemptFailed, EventRetrying, EventAttemptFailed, EventExhausted}, types)
	assert.Equal(t, 1, events[1].Attempt)
	assert.Equal(t, 2, events[3].Attempt)
}

func TestDoStream(t *testing.T) {
	t.Run("retries establishment", func(t *testing.T) {
		callCount := 0
		ch, err := DoStream(context.Background(), fastPolicy(3), func() (<-chan string, error) {
			callCount++
			if callCount == 1 {
				return nil, ai.NewTransientError("reset", 0, nil)
			}
			c := make(chan string, 1)
			c <- "data"
			close(c)
			return c, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, callCount)
		assert.Equal(t, "data", <-ch)
	})

	t.Run("returns terminal error", func(t *testing.T) {
		_, err := DoStream(context.Background(), fastPolicy(3), func() (<-chan string, error) {
			return nil, errors.New("bad request body")
		})
		assert.EqualError(t, err, "bad request body")
	})
}
