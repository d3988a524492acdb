package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// jitterFraction bounds the random delay added to a backoff step.
const jitterFraction = 0.1

// DefaultNonRetryableKinds applies when a [Policy] leaves NonRetryableKinds unset.
var DefaultNonRetryableKinds = NewKindSet(KindAuthentication, KindAuthorization)

// Policy governs how many times and how patiently an [Operation] is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// BackoffMultiplier scales the delay after each failed attempt. Values below 1 mean 1.
	BackoffMultiplier float64
	// Jitter adds up to 10% random delay to each backoff step.
	Jitter bool
	// MaxDelay caps computed backoff. Zero leaves it uncapped. Rate-limit hints are never capped.
	MaxDelay time.Duration
	// NonRetryableKinds are never retried unless an extension marked the record retryable.
	// The zero value means [DefaultNonRetryableKinds], so an empty set cannot be expressed here.
	// Set RetryAllKinds to let every retryable record through.
	NonRetryableKinds KindSet
	// RetryAllKinds ignores NonRetryableKinds and retries every record marked retryable.
	RetryAllKinds bool
	// RespectRetryAfter waits for the record's rate-limit hint instead of the backoff delay.
	RespectRetryAfter bool
}

// DefaultPolicy returns three attempts with 500ms doubling backoff, jitter and rate-limit hints honored.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		BackoffMultiplier: 2,
		Jitter:            true,
		MaxDelay:          30 * time.Second,
		NonRetryableKinds: DefaultNonRetryableKinds,
		RespectRetryAfter: true,
	}
}

// SingleAttempt returns a policy that never retries.
func SingleAttempt() Policy {
	return Policy{MaxAttempts: 1, BackoffMultiplier: 1}
}

// Validate reports fields outside their allowed ranges.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts))
	}
	if p.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("base delay must be >= 0, got %s", p.BaseDelay))
	}
	if p.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("backoff multiplier must be >= 1, got %g", p.BackoffMultiplier))
	}
	if p.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("max delay must be >= 0, got %s", p.MaxDelay))
	}
	return errors.Join(errs...)
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 1
	}
	if p.NonRetryableKinds == 0 && !p.RetryAllKinds {
		p.NonRetryableKinds = DefaultNonRetryableKinds
	}
	return p
}

// permits reports whether rec may be attempted again under p.
func (p Policy) permits(rec *Record) bool {
	if !rec.retryable {
		return false
	}
	if rec.overridden || p.RetryAllKinds {
		return true
	}
	return !p.NonRetryableKinds.Has(rec.kind)
}

// Operation is one attempt at a fallible unit of work.
type Operation[T any] func(ctx context.Context) (T, error)

// Waiter suspends until d has elapsed or ctx is done, returning ctx.Err() in the latter case.
type Waiter func(ctx context.Context, d time.Duration) error

// TimerWaiter waits on a [time.Timer] and gives up as soon as ctx is done.
func TimerWaiter(ctx context.Context, d time.Duration) error {
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

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Attempt int           // Attempt that just failed, starting at 1
	Record  *Record       // Its normalized failure
	Wait    time.Duration // Delay before the next attempt
}

// Engine runs operations under a [Policy]. The zero value is not usable; use [NewEngine].
//
// An Engine holds no per-invocation state and is safe for concurrent use.
type Engine struct {
	registry *Registry
	wait     Waiter
	random   func() float64
	onRetry  func(RetryEvent)
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithWaiter replaces [TimerWaiter].
func WithWaiter(w Waiter) EngineOption {
	return func(e *Engine) { e.wait = w }
}

// WithRandom replaces the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) EngineOption {
	return func(e *Engine) { e.random = fn }
}

// WithRetryHook registers fn to be called before every wait.
func WithRetryHook(fn func(RetryEvent)) EngineOption {
	return func(e *Engine) { e.onRetry = fn }
}

// NewEngine creates an [Engine] normalizing failures through reg, which may be nil.
func NewEngine(reg *Registry, opts ...EngineOption) *Engine {
	e := &Engine{registry: reg, wait: TimerWaiter, random: rand.Float64}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the extension registry failures are normalized with.
func (e *Engine) Registry() *Registry { return e.registry }

// Delay returns the wait scheduled after the given failed attempt.
func (e *Engine) Delay(p Policy, attempt int, rec *Record) time.Duration {
	p = p.normalized()
	if p.RespectRetryAfter && rec != nil {
		if d, ok := rec.RetryAfter(); ok {
			return d
		}
	}

	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if p.Jitter && d > 0 {
		d += d * jitterFraction * e.random()
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	// Past this point the conversion to Duration would wrap negative.
	if d >= math.MaxInt64 || math.IsInf(d, 1) || math.IsNaN(d) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

var defaultEngine = NewEngine(nil)

// DefaultEngine returns an engine with no extensions and real timers.
func DefaultEngine() *Engine { return defaultEngine }

type state int

const (
	stateReady state = iota
	stateExecuting
	stateSucceeded
	stateFailedRetryable
	stateFailedTerminal
	stateWaiting
	stateCancelled
)

// outcome is what one step of the state machine hands to the next.
type outcome[T any] struct {
	state  state
	value  T
	record *Record
}

// Retry invokes op until it succeeds, fails with a non-retryable record, exhausts p.MaxAttempts,
// or ctx is done. The returned error is always a [*Record].
//
// op runs at least once. ctx is checked before every attempt and while waiting between attempts;
// an in-flight attempt is never interrupted by the engine.
func Retry[T any](ctx context.Context, e *Engine, p Policy, op Operation[T]) (T, error) {
	v, rec := run(ctx, e, p, op)
	if rec != nil {
		var zero T
		return zero, rec
	}
	return v, nil
}

// RetryFunc is [Retry] for operations without a result.
func RetryFunc(ctx context.Context, e *Engine, p Policy, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, e, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func run[T any](ctx context.Context, e *Engine, p Policy, op Operation[T]) (T, *Record) {
	if e == nil {
		e = defaultEngine
	}
	p = p.normalized()

	cur := outcome[T]{state: stateReady}
	attempt := 0

	for {
		switch cur.state {
		case stateReady, stateWaiting:
			if err := ctx.Err(); err != nil {
				cur = outcome[T]{state: stateCancelled, record: cancelled(err, attempt, cur.record)}
				continue
			}
			attempt++
			cur = outcome[T]{state: stateExecuting}

		case stateExecuting:
			cur = execute(ctx, e, p, op)

		case stateSucceeded:
			return cur.value, nil

		case stateFailedRetryable:
			if attempt >= p.MaxAttempts {
				cur.state = stateFailedTerminal
				continue
			}
			wait := e.Delay(p, attempt, cur.record)
			if e.onRetry != nil {
				e.onRetry(RetryEvent{Attempt: attempt, Record: cur.record, Wait: wait})
			}
			if err := e.wait(ctx, wait); err != nil {
				cur = outcome[T]{state: stateCancelled, record: cancelled(err, attempt, cur.record)}
				continue
			}
			cur.state = stateWaiting

		case stateFailedTerminal, stateCancelled:
			var zero T
			return zero, cur.record
		}
	}
}

func execute[T any](ctx context.Context, e *Engine, p Policy, op Operation[T]) outcome[T] {
	v, err := op(ctx)
	if err == nil {
		return outcome[T]{state: stateSucceeded, value: v}
	}

	rec := e.registry.Normalize(err)
	switch {
	case rec.kind == KindCancelled:
		return outcome[T]{state: stateCancelled, record: rec}
	case !p.permits(rec):
		return outcome[T]{state: stateFailedTerminal, record: rec}
	default:
		return outcome[T]{state: stateFailedRetryable, record: rec}
	}
}

// cancelled builds the record for a cancellation noticed by the engine itself.
func cancelled(err error, attempts int, last *Record) *Record {
	rec := build(err, inspect(err), KindCancelled, nil, time.Now())
	rec.details = map[string]any{"attempts": attempts}
	if last != nil {
		rec.details["last_kind"] = last.kind.String()
		rec.details["last_message"] = last.message
	}
	return rec
}
