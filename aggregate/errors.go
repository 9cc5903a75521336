// Package aggregate is the core of the module: the multi-strategy grouped
// aggregation executor described by spec.md §4. It is organized the way
// the teacher splits its aggregate executor — one file per component, a
// typed error hierarchy instead of bare fmt.Errorf, and a pull-iterator
// top-level type (AggregationDriver) that a caller drives with Next().
package aggregate

import "github.com/pingcap/errors"

// The seven error kinds of spec.md §7. Each is a distinct type so a caller
// can errors.As() to the kind it cares about; all of them get wrapped with
// errors.Trace at the point they're raised, the way the teacher's call
// sites wrap with errors.Trace rather than returning bare errors.

// TypeMismatchError is raised by NewAggregationDriver (wrapping
// aggfuncs.Descriptor.Validate's checks, spec §4.5/§4.7/§7) when a strict
// transfn's non-NULL initcond doesn't carry the transition-state type
// NewState produces, or a combine function over an `internal` transition
// type is declared strict.
type TypeMismatchError struct{ Msg string }

func (e *TypeMismatchError) Error() string { return "type mismatch: " + e.Msg }

// PermissionDeniedError is raised when the caller lacks EXECUTE on one of
// an aggregate's function handles.
type PermissionDeniedError struct{ Msg string }

func (e *PermissionDeniedError) Error() string { return "permission denied: " + e.Msg }

// NestedAggregateError is raised when expression initialization surfaces a
// nested aggregate call.
type NestedAggregateError struct{ Msg string }

func (e *NestedAggregateError) Error() string { return "nested aggregate: " + e.Msg }

// IOError is the error kind for a short read/write on a spill tape.
// AggregationDriver does not raise it: a spill tape failure reaches its
// caller as an InternalError whose Msg carries the spill package's error
// text.
type IOError struct{ Msg string }

func (e *IOError) Error() string { return "io error: " + e.Msg }

// InterruptError is raised when a cooperative cancellation token trips.
type InterruptError struct{ Msg string }

func (e *InterruptError) Error() string { return "interrupted: " + e.Msg }

// InternalError is raised on invariant violations: a non-adjacent phase
// jump, an unknown strategy, or similar assertion-level failures.
type InternalError struct{ Msg string }

func (e *InternalError) Error() string { return "internal error: " + e.Msg }

// FunctionError wraps an error propagated from a user-supplied
// transition/final/serialize/deserialize/combine function.
type FunctionError struct{ Msg string; Err error }

func (e *FunctionError) Error() string { return "function error: " + e.Msg + ": " + e.Err.Error() }
func (e *FunctionError) Unwrap() error { return e.Err }

func wrapFunctionError(where string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Trace(&FunctionError{Msg: where, Err: err})
}

func internalErrorf(msg string) error {
	return errors.Trace(&InternalError{Msg: msg})
}
