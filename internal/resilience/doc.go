// Package resilience classifies failures into a closed taxonomy, normalizes them into immutable records,
// retries fallible operations under a policy and recommends abstract recovery effects.
//
// Raw failures are inspected exactly once, where they are first caught. Everything downstream works
// with [*Record]:
//
//	rec := registry.Normalize(err)
//	rec.Kind()        // KindAuthentication
//	rec.UserMessage() // safe to display
//
// [Retry] returns the final record as an error. [Wrap] returns a [Result] instead and never panics.
// Integrations refine both through an [Extension] registered on a [Registry].
package resilience
