package aggregate

import (
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// TransitionInvoker is spec.md's C7: it applies the strict/non-strict,
// initcond, and by-reference-copy rules of §4.5 to one input row against a
// group's PerTransState array, and performs finalize/serialize/combine.
// It plays the role of nodeAgg.c's advance_transition_function plus
// finalize_aggregate, generalized from per-OID dispatch to the
// aggfuncs.Descriptor function-pointer tables of spec §9.
type TransitionInvoker struct {
	aggs  []*PerAggDescriptor
	arena *Arena
}

// NewTransitionInvoker builds an invoker for the given aggregate calls,
// updating states owned by the given arena (a grouping-set arena for the
// sorted/plain strategies, or a hash table's arena for the hashed
// strategy).
func NewTransitionInvoker(aggs []*PerAggDescriptor, arena *Arena) *TransitionInvoker {
	return &TransitionInvoker{aggs: aggs, arena: arena}
}

// RunRow drives every aggregate call in this invoker's set against one
// input row and a group's transition-state array, implementing spec §4.5's
// pseudocode. DISTINCT/ORDER BY aggregates buffer their arguments into a
// per-aggregate sorter instead of transitioning immediately; RunRow's
// caller (the sorted/plain loop) drains those sorters at group finalize via
// FlushSorted. Calls sharing a TransNo advance their one shared state once
// per row, through the first such call.
func (inv *TransitionInvoker) RunRow(states []PerTransState, r row.Row, hashed bool) error {
	seen := make(map[int]bool, len(inv.aggs))
	for _, d := range inv.aggs {
		if seen[d.TransNo] {
			continue
		}
		seen[d.TransNo] = true
		if d.Filter != nil {
			ok, err := d.Filter(r)
			if err != nil {
				return wrapFunctionError("filter", err)
			}
			if !ok {
				continue
			}
		}
		args, err := evalArgs(d.Args, r)
		if err != nil {
			return err
		}
		if d.NeedsSort() {
			if hashed {
				return internalErrorf("DISTINCT/ORDER BY aggregate rejected for hashed strategy: " + d.Name)
			}
			states[d.TransNo].EnsureSortBuf(d).Add(args)
			continue
		}
		if err := inv.transitionOne(&states[d.TransNo], d, args); err != nil {
			return err
		}
	}
	return nil
}

// transitionOne applies spec §4.5's transition pseudocode to one
// (state, args) pair.
func (inv *TransitionInvoker) transitionOne(ts *PerTransState, d *PerAggDescriptor, args row.Row) error {
	fn := d.Func
	if d.SplitMode == SplitCombine || d.SplitMode == SplitCombinePartial {
		return inv.combineOne(ts, d, args)
	}
	if fn.Strict {
		for _, a := range args {
			if a.IsNull() {
				return nil // keep prior state
			}
		}
		if ts.NoTransValue {
			v := fn.NewState()
			inv.arena.Track(stateSize(v))
			ts.TransValue = v
			ts.TransIsNull = false
			ts.NoTransValue = false
		} else if ts.TransIsNull {
			return nil // poisoned NULL
		}
	}
	newState, isNull, err := fn.Trans(ts.TransValue, args)
	if err != nil {
		return wrapFunctionError(d.Name+".trans", err)
	}
	if fn.ByRef && !sameValue(newState, ts.TransValue) {
		inv.arena.Track(stateSize(newState))
	}
	ts.TransValue, ts.TransIsNull = newState, isNull
	return nil
}

// combineOne merges an upstream partial state into ts using the
// aggregate's combine function, optionally deserializing the upstream
// value first (spec §4.5's "Combine mode").
func (inv *TransitionInvoker) combineOne(ts *PerTransState, d *PerAggDescriptor, args row.Row) error {
	fn := d.Func
	upstream := args[0]
	var incoming any
	var incomingNull bool
	if fn.Deserial != nil && upstream.Kind == datum.KindBytes {
		v, isNull, err := fn.Deserial(upstream.B)
		if err != nil {
			return wrapFunctionError(d.Name+".deserial", err)
		}
		incoming, incomingNull = v, isNull
	} else {
		incoming, incomingNull = upstream, upstream.IsNull()
	}
	if ts.NoTransValue {
		// No state yet: the first non-NULL upstream partial state is
		// adopted as the transition state.
		if incomingNull {
			return nil
		}
		ts.TransValue, ts.TransIsNull, ts.NoTransValue = incoming, false, false
		return nil
	}
	merged, isNull, err := fn.Combine(ts.TransValue, ts.TransIsNull, incoming, incomingNull)
	if err != nil {
		return wrapFunctionError(d.Name+".combine", err)
	}
	ts.TransValue, ts.TransIsNull = merged, isNull
	ts.NoTransValue = false
	return nil
}

// FlushSorted drains every DISTINCT/ORDER BY aggregate's sorter for the
// current group, collapsing adjacent duplicates when Distinct is set, and
// runs the (now-ordered, deduplicated) argument tuples through the
// transition function — the "drained in order" half of spec §4.5.
func (inv *TransitionInvoker) FlushSorted(states []PerTransState) error {
	for _, d := range inv.aggs {
		if !d.NeedsSort() {
			continue
		}
		ts := &states[d.TransNo]
		if ts.sortBuf == nil {
			continue
		}
		for _, args := range ts.sortBuf.Drain() {
			if err := inv.transitionOne(ts, d, args); err != nil {
				return err
			}
		}
		ts.sortBuf = nil
	}
	return nil
}

// Finalize implements spec §4.5's finalization rule for a full aggregate:
// direct arguments are evaluated against the group's sample row (the first
// row that opened the group — SPEC_FULL.md's supplemented-feature #4), and
// the evaluated direct arguments are handed to the final function as a Row.
// The final function is skipped with a NULL result when the Descriptor's
// Strict flag (the transfn's strictness; there is no separate final-function
// strictness flag) is set and the transition value is NULL; NULL direct
// arguments never cause a skip.
func (inv *TransitionInvoker) Finalize(d *PerAggDescriptor, ts *PerTransState, sampleRow row.Row) (datum.Datum, error) {
	directArgs, err := evalArgs(d.DirectArgs, sampleRow)
	if err != nil {
		return datum.Datum{}, err
	}
	switch d.SplitMode {
	case SplitPartial, SplitCombinePartial:
		return inv.finalizePartial(d, ts)
	default:
		if ts.TransIsNull && d.Func.Strict {
			return datum.Null(), nil
		}
		v, err := d.Func.Final(ts.TransValue, ts.TransIsNull, directArgs)
		if err != nil {
			return datum.Datum{}, wrapFunctionError(d.Name+".final", err)
		}
		return v, nil
	}
}

// finalizePartial implements the partial-aggregate branch of spec §4.5:
// return the raw transition value, or invoke the serialize function
// (respecting strictness) if one is configured.
func (inv *TransitionInvoker) finalizePartial(d *PerAggDescriptor, ts *PerTransState) (datum.Datum, error) {
	fn := d.Func
	if fn.Serial == nil {
		// No serialize function: the only transition state this invoker can
		// hand onward as a partial result is one that's already a Datum.
		// Anything else (the common case — a custom struct pointer) has no
		// portable encoding, and returning a placeholder here would look
		// like a valid, silently wrong, partial aggregate result.
		if ts.NoTransValue || ts.TransIsNull {
			return datum.Null(), nil
		}
		if v, ok := ts.TransValue.(datum.Datum); ok {
			return v, nil
		}
		return datum.Datum{}, internalErrorf(d.Name + ": partial aggregate has no serialize function and its transition state is not a datum.Datum")
	}
	if fn.Strict && ts.TransIsNull {
		return datum.Null(), nil
	}
	buf, err := fn.Serial(ts.TransValue, ts.TransIsNull)
	if err != nil {
		return datum.Datum{}, wrapFunctionError(d.Name+".serial", err)
	}
	return datum.NewBytes(buf), nil
}

func evalArgs(exprs []RowExprFunc, r row.Row) (row.Row, error) {
	out := make(row.Row, len(exprs))
	for i, e := range exprs {
		v, err := e(r)
		if err != nil {
			return nil, wrapFunctionError("arg-eval", err)
		}
		out[i] = v
	}
	return out, nil
}

func sameValue(a, b any) bool { return a == b }

func stateSize(v any) int64 {
	if d, ok := v.(datum.Datum); ok {
		return d.Size()
	}
	return 32
}
