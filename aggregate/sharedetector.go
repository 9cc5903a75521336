package aggregate

import (
	"fmt"
	"unsafe"

	"github.com/adam8157/aggexec/aggfuncs"
)

// transSig captures the eight+four fields spec.md §4.8 names for
// per-transition reuse: the first eight (shared with per-aggregate reuse)
// plus transfn/transtype/serialize/deserialize identity and initcond.
// Function identity is compared by pointer since this module binds Go
// closures rather than catalog OIDs.
type transSig struct {
	funcIdentity  any // aggfuncs.Descriptor pointer: stands in for transfn+transtype+serialize+deserialize OIDs
	argsKey       string
	distinct      bool
	orderByKey    string
	filterKey     string
	directArgsKey string
	initCondKey   string
}

// ShareDetector implements spec.md §4.8's two-level deduplication: it
// assigns each PerAggDescriptor a TransNo (shared when two calls have
// matching inputs and transition behavior) and an AggNo (shared only when
// two calls are additionally fully identical — same split mode too — and
// can therefore share one finalize computation as well as one transition
// state). Level 1 (AggNo) always implies level 2 (TransNo): a call's
// aggSig is its TransNo paired with its SplitMode, so two calls can't
// share a finalize computation without first sharing the transition state
// that computation reads.
type ShareDetector struct {
	numTrans int
	numAggs  int
}

// Stats is the {NumAggs, NumTrans} telemetry of SPEC_FULL.md's
// supplemented-feature #5, the Go equivalent of nodeAgg.c's DEBUG1 log of
// how many transition states were deduplicated from the raw aggregate
// count.
type Stats struct {
	NumAggs  int
	NumTrans int
}

// Assign walks aggs in order, filling in each descriptor's TransNo and
// AggNo. Two calls sharing inputs and transition behavior get the same
// TransNo (spec §4.8's per-transition reuse); two calls that are in
// addition fully identical down to the split mode get the same AggNo too
// (spec §4.8's per-aggregate reuse), so a caller only needs to finalize
// once per distinct AggNo and copy the result into every sharing
// descriptor's ResultSlot. Volatile calls (Volatile=true) are never
// deduplicated with anything, matching spec §4.8's "rejected if the
// expression tree contains volatile functions".
func (sd *ShareDetector) Assign(aggs []*PerAggDescriptor) Stats {
	seenTrans := make(map[string]int)
	seenAgg := make(map[string]int)
	nextTrans := 0
	nextAgg := 0
	for _, d := range aggs {
		if d.Volatile {
			d.TransNo = nextTrans
			nextTrans++
			d.AggNo = nextAgg
			nextAgg++
			continue
		}

		tKey := transKey(d)
		if tn, ok := seenTrans[tKey]; ok && canShareTrans(d) {
			d.TransNo = tn
		} else {
			d.TransNo = nextTrans
			seenTrans[tKey] = nextTrans
			nextTrans++
		}

		aKey := aggKey(d)
		if an, ok := seenAgg[aKey]; ok {
			d.AggNo = an
		} else {
			d.AggNo = nextAgg
			seenAgg[aKey] = nextAgg
			nextAgg++
		}
	}
	sd.numTrans = nextTrans
	sd.numAggs = len(aggs)
	return Stats{NumAggs: sd.numAggs, NumTrans: sd.numTrans}
}

// aggKey identifies a call's aggSig: its already-resolved TransNo paired
// with its split mode. Two calls reaching the same TransNo already agree
// on funcIdentity/args/distinct/orderBy/filter/directArgs/initcond, so the
// split mode is the only remaining field that can make their finalize
// output differ.
func aggKey(d *PerAggDescriptor) string {
	return fmt.Sprintf("%d|%d", d.TransNo, d.SplitMode)
}

// canShareTrans guards the "only if the aggregate's final-function
// modify-policy permits (or no final function runs in the chosen split
// mode)" clause of spec §4.8: a by-reference transition type whose final
// function might mutate the state in place (ByRef with a split mode that
// runs the final function: full or combine) cannot be shared, because two
// calls would then corrupt each other's view of the state.
func canShareTrans(d *PerAggDescriptor) bool {
	if !d.Func.ByRef {
		return true
	}
	return d.SplitMode == SplitPartial || d.SplitMode == SplitCombinePartial
}

func transKey(d *PerAggDescriptor) string {
	s := transSig{
		funcIdentity:  d.Func,
		argsKey:       exprListKey(d.Args),
		distinct:      d.Distinct,
		orderByKey:    sortSpecKey(d.OrderBy),
		filterKey:     filterKey(d.Filter),
		directArgsKey: exprListKey(d.DirectArgs),
		initCondKey:   initCondKeyOf(d.Func),
	}
	return sigString(s)
}

// exprKey identifies a single RowExprFunc by the address of its func value:
// two calls sharing the exact same compiled evaluator (the common case when a
// planner builds one expression per distinct argument expression) compare
// equal, while two closures built from the same function literal are
// distinct evaluators and compare unequal.
func exprKey(f RowExprFunc) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%p", *(*unsafe.Pointer)(unsafe.Pointer(&f)))
}

// filterKey identifies a FilterFunc by the address of its func value, the
// same identity-comparison approach exprKey uses for RowExprFunc.
func filterKey(f FilterFunc) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%p", *(*unsafe.Pointer)(unsafe.Pointer(&f)))
}

func exprListKey(fs []RowExprFunc) string {
	b := make([]byte, 0, 8*len(fs))
	for _, f := range fs {
		b = append(b, exprKey(f)...)
		b = append(b, ',')
	}
	return string(b)
}

func sortSpecKey(specs []SortSpec) string {
	b := make([]byte, 0, 16*len(specs))
	for _, s := range specs {
		b = append(b, exprKey(s.Expr)...)
		if s.Desc {
			b = append(b, 'v')
		} else {
			b = append(b, '^')
		}
		b = append(b, ',')
	}
	return string(b)
}

func initCondKeyOf(f *aggfuncs.Descriptor) string {
	if f.InitCond == nil {
		return "-"
	}
	return fmt.Sprintf("%v", *f.InitCond)
}

func sigString(s transSig) string {
	b := make([]byte, 0, 64)
	b = append(b, fmt.Sprintf("%p", s.funcIdentity)...)
	b = append(b, '|')
	b = append(b, s.argsKey...)
	b = append(b, '|')
	if s.distinct {
		b = append(b, 'D')
	}
	b = append(b, '|')
	b = append(b, s.orderByKey...)
	b = append(b, '|')
	b = append(b, s.filterKey...)
	b = append(b, '|')
	b = append(b, s.directArgsKey...)
	b = append(b, '|')
	b = append(b, s.initCondKey...)
	return string(b)
}
