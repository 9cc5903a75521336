package aggregate

import (
	"github.com/adam8157/aggexec/aggfuncs"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// RowExprFunc evaluates one expression against a row, standing in for the
// "external expression builder" collaborator of spec.md §1/§6: this module
// consumes already-compiled argument/filter/direct-argument evaluators
// rather than compiling expressions itself.
type RowExprFunc func(row.Row) (datum.Datum, error)

// FilterFunc evaluates an aggregate's FILTER (WHERE ...) clause against a
// row, returning whether the transition should run at all — a separate
// type from RowExprFunc because a filter predicate has already been reduced
// to a boolean upstream of this module, unlike an argument expression.
type FilterFunc func(row.Row) (bool, error)

// SplitMode is the enum spec.md §9 calls for, replacing OID-driven
// split-mode dispatch: which of {full, partial, combine, combine-partial}
// an aggregate call runs as.
type SplitMode int

const (
	SplitFull SplitMode = iota
	SplitPartial
	SplitCombine
	SplitCombinePartial
)

// SortSpec orders the rows fed to a per-aggregate DISTINCT/ORDER BY sorter.
type SortSpec struct {
	Expr RowExprFunc
	Desc bool
}

// PerAggDescriptor binds one aggregate call to its behavior (C2 of
// spec.md's component table): the reusable Descriptor from the aggfuncs
// package, this call's argument/filter/direct-argument evaluators, and the
// grouping/DISTINCT/ORDER BY/split-mode bookkeeping that varies per call
// site — generalized from the teacher's PerAggDescriptor (which binds OIDs
// instead of Go closures).
type PerAggDescriptor struct {
	Name string
	Func *aggfuncs.Descriptor

	// TransNo indexes into the flat PerTransState[] the driver maintains
	// per group; multiple PerAggDescriptors sharing one TransNo reuse one
	// transition state, per ShareDetector's per-transition reuse rule
	// (spec §4.8).
	TransNo int

	// AggNo identifies calls ShareDetector judges fully identical (same
	// TransNo and the same split mode): a caller finalizes once per
	// distinct AggNo and copies the result into every sharing
	// descriptor's ResultSlot, spec §4.8's per-aggregate reuse.
	AggNo int

	Args       []RowExprFunc
	DirectArgs []RowExprFunc
	Filter     FilterFunc

	Distinct bool
	OrderBy  []SortSpec

	SplitMode SplitMode

	// ResultSlot is the output column this call's final value is written
	// to. Two calls can share an AggNo, and therefore one finalize
	// computation, while still writing that one result into distinct
	// ResultSlots.
	ResultSlot int

	// Volatile marks an aggregate call whose argument expression tree
	// contains a volatile function, which disqualifies it from either
	// level of ShareDetector's reuse (spec §4.8).
	Volatile bool
}

// NeedsSort reports whether this call requires a per-aggregate sorter
// (DISTINCT and/or ORDER BY), which spec §4.5 rejects statically for the
// hashed strategy.
func (d *PerAggDescriptor) NeedsSort() bool { return d.Distinct || len(d.OrderBy) > 0 }
