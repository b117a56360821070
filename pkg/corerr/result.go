// Package corerr provides the tagged-result and error-taxonomy
// vocabulary the rest of autocore uses instead of ad-hoc panics
// (spec.md §7 "Error taxonomy" / §9 "Exceptions and thrown errors").
//
// Recoverable failures never throw; they come back as a Result[T] or a
// plain Go error satisfying one of the sentinel types below, which
// callers inspect with errors.As. Panics are reserved for the one
// documented invariant violation: a cycle found during task
// topological sort (see pkg/task).
package corerr

// Result is a tagged result value: exactly one of Value or Err is
// meaningful, discriminated by Ok.
type Result[T any] struct {
	ok    bool
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{ok: true, value: value}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	var zero T
	return Result[T]{ok: false, value: zero, err: err}
}

// IsOk reports whether the result is successful.
func (r Result[T]) IsOk() bool { return r.ok }

// Value returns the wrapped value and whether it is valid.
func (r Result[T]) Value() (T, bool) { return r.value, r.ok }

// Error returns the wrapped error, or nil if the result is successful.
func (r Result[T]) Error() error { return r.err }

// Unwrap returns the value, or the zero value if the result is an
// error. Prefer Value() when the caller must branch on success.
func (r Result[T]) Unwrap() T { return r.value }
