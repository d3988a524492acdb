package resilience

import (
	"context"
	"fmt"
)

// Result is either a value or a failure record, never both. A failed Result may carry a fallback in Data.
type Result[T any] struct {
	Data T
	Err  *Record
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Unpack returns the result in (value, error) form. The error is nil on success.
func (r Result[T]) Unpack() (T, error) {
	if r.Err != nil {
		return r.Data, r.Err
	}
	return r.Data, nil
}

// Guard runs operations through an [Engine] and reports every surfaced failure to a [Sink].
type Guard struct {
	engine *Engine
	sink   Sink
}

// NewGuard creates a [Guard]. A nil engine uses [DefaultEngine]; a nil sink discards events.
func NewGuard(engine *Engine, sink Sink) *Guard {
	if engine == nil {
		engine = defaultEngine
	}
	return &Guard{engine: engine, sink: sink}
}

// Engine returns the engine the guard retries with.
func (g *Guard) Engine() *Engine { return g.engine }

// Wrap is [WrapOr] with the zero value of T as fallback.
func Wrap[T any](ctx context.Context, g *Guard, label string, op Operation[T], p *Policy) Result[T] {
	var zero T
	return WrapOr(ctx, g, label, op, p, zero)
}

// WrapOr runs op and converts any failure, panics included, into a [Result] holding fallback.
// A nil policy makes exactly one attempt. WrapOr never panics on behalf of op or the sink.
func WrapOr[T any](ctx context.Context, g *Guard, label string, op Operation[T], p *Policy, fallback T) (res Result[T]) {
	if g == nil {
		g = NewGuard(nil, nil)
	}
	policy := SingleAttempt()
	if p != nil {
		policy = *p
	}

	defer func() {
		if v := recover(); v != nil {
			rec := g.engine.registry.Normalize(fmt.Errorf("panic: %v", v))
			res = Result[T]{Data: fallback, Err: rec}
			g.observe(rec, label)
		}
	}()

	v, rec := run(ctx, g.engine, policy, op)
	if rec != nil {
		g.observe(rec, label)
		return Result[T]{Data: fallback, Err: rec}
	}
	return Result[T]{Data: v}
}

func (g *Guard) observe(rec *Record, label string) {
	if g.sink == nil {
		return
	}
	defer func() { _ = recover() }()
	g.sink.Observe(EventFrom(rec, label))
}
