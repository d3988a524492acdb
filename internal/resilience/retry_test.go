package resilience

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWaiter returns immediately and remembers every requested delay.
type recordingWaiter struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *recordingWaiter) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *recordingWaiter) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

func newTestEngine(reg *Registry) (*Engine, *recordingWaiter) {
	w := &recordingWaiter{}
	return NewEngine(reg, WithWaiter(w.wait), WithRandom(func() float64 { return 0.5 })), w
}

func failing(raw error, calls *int) Operation[string] {
	return func(context.Context) (string, error) {
		*calls++
		return "", raw
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first attempt", func(t *testing.T) {
		e, w := newTestEngine(nil)
		calls := 0
		v, err := Retry(ctx, e, DefaultPolicy(), func(context.Context) (int, error) {
			calls++
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 1, calls)
		assert.Empty(t, w.all())
	})

	t.Run("fails twice then succeeds", func(t *testing.T) {
		e, w := newTestEngine(nil)
		calls := 0
		v, err := Retry(ctx, e, Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, BackoffMultiplier: 2},
			func(context.Context) (string, error) {
				calls++
				if calls < 3 {
					return "", &HTTPError{Status: 503}
				}
				return "ok", nil
			})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, w.all())
	})

	t.Run("non-retryable authentication runs once", func(t *testing.T) {
		e, w := newTestEngine(nil)
		calls := 0
		_, err := Retry(ctx, e, Policy{MaxAttempts: 3}, failing(&HTTPError{Status: 401}, &calls))

		var rec *Record
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, KindAuthentication, rec.Kind())
		assert.False(t, rec.Retryable())
		assert.Equal(t, 1, calls)
		assert.Empty(t, w.all())
	})

	t.Run("exhaustion returns the last record", func(t *testing.T) {
		e, _ := newTestEngine(nil)
		calls := 0
		_, err := Retry(ctx, e, Policy{MaxAttempts: 4}, failing(errors.New("connection reset"), &calls))

		var rec *Record
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, KindNetwork, rec.Kind())
		assert.True(t, rec.Retryable())
		assert.Equal(t, 4, calls)
	})

	t.Run("attempts never exceed the maximum", func(t *testing.T) {
		for n := 1; n <= 5; n++ {
			e, w := newTestEngine(nil)
			calls := 0
			_, err := Retry(ctx, e, Policy{MaxAttempts: n}, failing(&HTTPError{Status: 500}, &calls))
			require.Error(t, err)
			assert.Equal(t, n, calls)
			assert.Len(t, w.all(), n-1)
		}
	})

	t.Run("invalid max attempts still runs once", func(t *testing.T) {
		e, _ := newTestEngine(nil)
		calls := 0
		_, _ = Retry(ctx, e, Policy{MaxAttempts: 0}, failing(&HTTPError{Status: 500}, &calls))
		assert.Equal(t, 1, calls)
	})

	t.Run("respects retry-after", func(t *testing.T) {
		e, w := newTestEngine(nil)
		calls := 0
		raw := &HTTPError{Status: 429, Fields: map[string]string{"retry-after": "2"}}
		_, _ = Retry(ctx, e, Policy{MaxAttempts: 2, BaseDelay: 50 * time.Millisecond, RespectRetryAfter: true, Jitter: true}, failing(raw, &calls))

		require.Len(t, w.all(), 1)
		wait := w.all()[0]
		assert.GreaterOrEqual(t, wait, 1900*time.Millisecond)
		assert.Less(t, wait, 3000*time.Millisecond)
	})

	t.Run("retry-after ignored when not respected", func(t *testing.T) {
		e, w := newTestEngine(nil)
		calls := 0
		raw := &HTTPError{Status: 429, Fields: map[string]string{"retry-after": "2"}}
		_, _ = Retry(ctx, e, Policy{MaxAttempts: 2, BaseDelay: 50 * time.Millisecond}, failing(raw, &calls))
		assert.Equal(t, []time.Duration{50 * time.Millisecond}, w.all())
	})

	t.Run("jitter stays within ten percent", func(t *testing.T) {
		e := NewEngine(nil, WithRandom(func() float64 { return 0.999 }))
		p := Policy{BaseDelay: time.Second, BackoffMultiplier: 2, Jitter: true}
		for attempt := 1; attempt <= 4; attempt++ {
			base := time.Second << (attempt - 1)
			d := e.Delay(p, attempt, nil)
			assert.GreaterOrEqual(t, d, base)
			assert.LessOrEqual(t, d, base+base/10)
		}
	})

	t.Run("max delay caps backoff but not hints", func(t *testing.T) {
		e := NewEngine(nil)
		p := Policy{BaseDelay: time.Second, BackoffMultiplier: 10, MaxDelay: 5 * time.Second, RespectRetryAfter: true}
		assert.Equal(t, 5*time.Second, e.Delay(p, 3, nil))

		hinted := Normalize(&HTTPError{Status: 429, Fields: map[string]string{"retry-after": "60"}}, KindClient, nil)
		assert.Equal(t, time.Minute, e.Delay(p, 1, hinted))
	})

	t.Run("backoff never wraps negative", func(t *testing.T) {
		e := NewEngine(nil)
		p := Policy{MaxAttempts: 200, BaseDelay: time.Second, BackoffMultiplier: 2}

		prev := time.Duration(0)
		for attempt := 1; attempt <= 200; attempt++ {
			d := e.Delay(p, attempt, nil)
			require.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
			prev = d
		}
		assert.Equal(t, time.Duration(math.MaxInt64), e.Delay(p, 64, nil))
		assert.Equal(t, time.Duration(math.MaxInt64), e.Delay(p, 1000, nil))

		p.Jitter = true
		assert.Positive(t, e.Delay(p, 100, nil))

		p.MaxDelay = time.Minute
		assert.Equal(t, time.Minute, e.Delay(p, 100, nil))
	})

	t.Run("zero non-retryable kinds keeps the defaults", func(t *testing.T) {
		assert.Equal(t, DefaultNonRetryableKinds, Policy{}.normalized().NonRetryableKinds)
		assert.Zero(t, Policy{RetryAllKinds: true}.normalized().NonRetryableKinds)
	})

	t.Run("retry all kinds ignores the non-retryable set", func(t *testing.T) {
		e, _ := newTestEngine(nil)
		calls := 0
		p := Policy{MaxAttempts: 3, NonRetryableKinds: NewKindSet(KindServer), RetryAllKinds: true}
		_, err := Retry(ctx, e, p, failing(&HTTPError{Status: 500}, &calls))
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable kinds are configurable", func(t *testing.T) {
		e, _ := newTestEngine(nil)
		calls := 0
		p := Policy{MaxAttempts: 3, NonRetryableKinds: NewKindSet(KindServer)}
		_, err := Retry(ctx, e, p, failing(&HTTPError{Status: 500}, &calls))
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("extension override beats non-retryable kinds", func(t *testing.T) {
		reg := NewRegistry(premiumExtension())
		e, _ := newTestEngine(reg)
		calls := 0
		_, err := Retry(ctx, e, Policy{MaxAttempts: 3}, failing(&HTTPError{Status: 401, Code: "token_expired"}, &calls))

		var rec *Record
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, "token_expired", rec.SubCode())
		assert.Equal(t, 3, calls)
	})

	t.Run("retry hook sees each scheduled wait", func(t *testing.T) {
		var events []RetryEvent
		w := &recordingWaiter{}
		e := NewEngine(nil, WithWaiter(w.wait), WithRetryHook(func(ev RetryEvent) { events = append(events, ev) }))
		calls := 0
		_, _ = Retry(ctx, e, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, failing(&HTTPError{Status: 502}, &calls))

		require.Len(t, events, 2)
		assert.Equal(t, 1, events[0].Attempt)
		assert.Equal(t, 2, events[1].Attempt)
		assert.Equal(t, KindServer, events[1].Record.Kind())
	})

	t.Run("RetryFunc", func(t *testing.T) {
		e, _ := newTestEngine(nil)
		calls := 0
		err := RetryFunc(ctx, e, Policy{MaxAttempts: 2}, func(context.Context) error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("nil engine uses defaults", func(t *testing.T) {
		v, err := Retry(ctx, nil, SingleAttempt(), func(context.Context) (bool, error) { return true, nil })
		require.NoError(t, err)
		assert.True(t, v)
	})
}

func TestRetryCancellation(t *testing.T) {
	t.Run("cancelled before the first attempt still runs nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		_, err := Retry(ctx, DefaultEngine(), DefaultPolicy(), failing(errors.New("x"), &calls))

		var rec *Record
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, KindCancelled, rec.Kind())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
		assert.Equal(t, 0, rec.Details()["attempts"])
	})

	t.Run("cancelled during the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		calls := 0
		op := func(context.Context) (string, error) {
			calls++
			cancel()
			return "", &HTTPError{Status: 503}
		}

		start := time.Now()
		_, err := Retry(ctx, DefaultEngine(), Policy{MaxAttempts: 5, BaseDelay: time.Hour}, op)

		var rec *Record
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, KindCancelled, rec.Kind())
		assert.Equal(t, 1, calls)
		assert.Equal(t, "SERVER", rec.Details()["last_kind"])
		assert.Less(t, time.Since(start), time.Minute)
	})

	t.Run("deadline ends the loop", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		calls := 0
		_, err := Retry(ctx, DefaultEngine(), Policy{MaxAttempts: 100, BaseDelay: 10 * time.Millisecond}, failing(&HTTPError{Status: 500}, &calls))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, calls, 100)
	})

	t.Run("operation returning a context error is cancelled not retried", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), DefaultEngine(), Policy{MaxAttempts: 3}, failing(context.Canceled, &calls))

		var rec *Record
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, KindCancelled, rec.Kind())
		assert.Equal(t, 1, calls)
	})
}

func TestRetryServerScenarioRealTiming(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 2}

	start := time.Now()
	_, err := Retry(context.Background(), DefaultEngine(), p, failing(&HTTPError{Status: 500}, &calls))
	elapsed := time.Since(start)

	var rec *Record
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Equal(t, KindServer, rec.Kind())
	assert.True(t, rec.Retryable())
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.NoError(t, SingleAttempt().Validate())

	err := Policy{MaxAttempts: 0, BaseDelay: -1, BackoffMultiplier: 0.5, MaxDelay: -1}.Validate()
	require.Error(t, err)
	for _, want := range []string{"max attempts", "base delay", "backoff multiplier", "max delay"} {
		assert.Contains(t, err.Error(), want)
	}
}
