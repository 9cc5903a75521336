// Package aggfuncs is the function_registry collaborator described in
// spec.md §6: for each aggregate call it supplies typed, invocable handles
// for the transition, final, serialize, deserialize, and combine functions,
// plus the strictness and type metadata the TransitionInvoker needs to
// apply the pseudocode of spec §4.5. It plays the role the teacher's
// executor/aggfuncs.AggFunc interface plays in pingcap/tidb, generalized
// from tidb's chunk-at-a-time "UpdatePartialResult over a byte-slice
// partial result" shape to the row-at-a-time, any-typed transition state
// this module's TransitionInvoker drives directly.
package aggfuncs

import (
	"reflect"

	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
	"github.com/pingcap/errors"
)

// ErrStrictCombineInternal is returned by Build-time validation when a
// combine function over an `internal` transition type is declared strict,
// one of the TypeMismatch cases called out in spec §4.5 and §7.
var ErrStrictCombineInternal = errors.New("aggfuncs: combine function over internal transition type must not be strict")

// ErrInitCondTypeMismatch is returned by Build-time validation when a
// strict transfn's non-NULL initcond doesn't carry the same transition-state
// type NewState produces, the other TypeMismatch case of spec §4.7: a
// NULL initcond is safe here because a strict transfn's first successful
// transition always replaces the placeholder with a fresh NewState value
// before Trans ever runs (aggregate.PerTransState.Reset/TransitionInvoker),
// but a non-NULL initcond is adopted as trans_value verbatim and stays
// there for the state's whole lifetime — so if it isn't shaped like
// whatever Trans expects, every call, not just the first, type-asserts
// against the wrong thing.
var ErrInitCondTypeMismatch = errors.New("aggfuncs: initcond's type does not match the transition state type NewState produces")

// TransFn computes the next transition state from the current one and one
// row's evaluated arguments. It must not be called at all when the
// transition function is strict and any argument is NULL — the
// TransitionInvoker enforces that, mirroring nodeAgg.c's advance_transition_function.
type TransFn func(state any, args row.Row) (newState any, isNull bool, err error)

// FinalFn reduces a transition state (plus any direct arguments, for an
// ordered-set or hypothetical-set aggregate) to the aggregate's result.
type FinalFn func(state any, isNull bool, directArgs row.Row) (result datum.Datum, err error)

// SerialFn converts an opaque transition state into a portable byte
// representation, used when the aggregate runs in partial/split mode.
type SerialFn func(state any, isNull bool) ([]byte, error)

// DeserialFn is the inverse of SerialFn.
type DeserialFn func(buf []byte) (state any, isNull bool, err error)

// CombineFn merges two transition states, used when this call is driven in
// combine/combine-partial split mode (inputs are upstream partial states).
type CombineFn func(a any, aNull bool, b any, bNull bool) (state any, isNull bool, err error)

// Descriptor binds one aggregate call to its behavior, the Go analogue of
// PerAggDescriptor's function-pointer half (spec §9's "function-pointer
// tables for aggregate functions"). The grouping/argument/split-mode
// bookkeeping that varies per call site lives in aggregate.PerAggDescriptor;
// a Descriptor here is the reusable, call-site-independent part — sharable
// across aggregate calls the way ShareDetector's per-transition reuse shares
// one PerTransState for `sum(x)` appearing twice in the same query.
type Descriptor struct {
	Name string

	// NewState allocates the zero-valued transition state used when no
	// InitCond is configured: at state construction for a non-strict transfn
	// (so there is no "no transition value yet" phase to begin with —
	// COUNT's state starts at 0, not at "uninitialized"), and on the first
	// non-NULL input for a strict one.
	NewState func() any

	Trans      TransFn
	Final      FinalFn
	Serial     SerialFn
	Deserial   DeserialFn
	Combine    CombineFn

	// Strict mirrors pg_proc.proisstrict for transfn: a NULL argument
	// short-circuits the transition entirely.
	Strict bool
	// CombineStrict is the strictness of the combine function specifically
	// — a transition type of `internal` must pair with CombineStrict=false.
	CombineStrict bool
	// TransTypeIsInternal marks an opaque transition type that cannot be
	// passed across a combine boundary without being strict=false.
	TransTypeIsInternal bool

	// InitCond, if non-nil, is copied into the grouping-set arena at state
	// construction instead of leaving the state in the "no transition
	// value yet" condition (spec §4.7).
	InitCond *datum.Datum

	// ByRef marks a pass-by-reference transition type, whose state must be
	// copied into the grouping-set arena on update (spec §4.5) rather than
	// assigned by value.
	ByRef bool
}

// Validate applies the construction-time TypeMismatch checks of spec §4.5
// and §4.7.
func (d *Descriptor) Validate() error {
	if d.TransTypeIsInternal && d.Combine != nil && d.CombineStrict {
		return errors.Trace(ErrStrictCombineInternal)
	}
	if d.Strict && d.InitCond != nil && !d.InitCond.IsNull() && d.NewState != nil {
		if zero, init := d.NewState(), any(d.InitCond.Clone()); reflect.TypeOf(zero) != reflect.TypeOf(init) {
			return errors.Trace(ErrInitCondTypeMismatch)
		}
	}
	return nil
}
