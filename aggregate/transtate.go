package aggregate

import "github.com/adam8157/aggexec/row"

// PerTransState is spec.md §3's per-group, per-transition-function state:
// one per transition function per grouping set per active group.
//
// Invariants: if the transfn is strict and initcond is NULL, the first
// non-NULL input replaces the placeholder with a fresh NewState() value,
// clears NoTransValue, and is then passed to Trans like any later input (the
// input itself is not adopted as the state); thereafter a NULL input leaves
// the state untouched, and a NULL TransValue once valid propagates forever.
type PerTransState struct {
	TransValue   any
	TransIsNull  bool
	NoTransValue bool

	// sortBuf accumulates argument tuples for DISTINCT/ORDER BY
	// aggregates (spec §4.5), created at group start and drained+
	// destroyed at group finalize.
	sortBuf *sortBuffer
}

// Reset returns ts to its just-constructed state for the given descriptor,
// applying the per-state initialization rule of spec §4.7: if an initcond
// is configured, it is copied into the arena and adopted immediately;
// otherwise the state starts as "no transition value yet" (unless the
// transfn is non-strict, in which case NewState already supplies a usable
// zero value and NoTransValue never applies).
func (ts *PerTransState) Reset(desc *PerAggDescriptor, arena *Arena) {
	ts.sortBuf = nil
	fn := desc.Func
	if fn.InitCond != nil {
		v := fn.InitCond.Clone()
		arena.Track(v.Size())
		ts.TransValue = v
		ts.TransIsNull = v.IsNull()
		ts.NoTransValue = v.IsNull()
		return
	}
	if fn.Strict {
		ts.TransValue = nil
		ts.TransIsNull = true
		ts.NoTransValue = true
		return
	}
	ts.TransValue = fn.NewState()
	ts.TransIsNull = false
	ts.NoTransValue = false
}

// EnsureSortBuf lazily creates the per-aggregate sorter for a DISTINCT/
// ORDER BY aggregate, one per group per such aggregate (spec §3's
// lifecycle note).
func (ts *PerTransState) EnsureSortBuf(desc *PerAggDescriptor) *sortBuffer {
	if ts.sortBuf == nil {
		ts.sortBuf = newSortBuffer(desc)
	}
	return ts.sortBuf
}

// sortBuffer is the in-memory per-aggregate DISTINCT/ORDER BY sorter of
// spec §4.5: single-argument aggregates conceptually use a by-datum
// sorter and multi-argument ones a by-tuple sorter, but both are just a
// slice of row.Row tuples here — the distinction is about what the
// teacher's sorter_factory specializes on, not about this module's
// representation.
type sortBuffer struct {
	desc *PerAggDescriptor
	rows []row.Row
}

func newSortBuffer(desc *PerAggDescriptor) *sortBuffer {
	return &sortBuffer{desc: desc}
}

func (b *sortBuffer) Add(args row.Row) { b.rows = append(b.rows, args.Clone()) }

// Drain sorts the buffered argument tuples per the aggregate's ORDER BY
// (falling back to argument order when there is none but DISTINCT is set,
// which still needs a total order to collapse adjacent duplicates), then
// collapses adjacent duplicates when Distinct is set, and returns the
// resulting tuples in the order the transition function should see them.
func (b *sortBuffer) Drain() []row.Row {
	rows := b.rows
	cmp := func(i, j int) bool { return compareRows(b.desc, rows[i], rows[j]) < 0 }
	insertionSort(rows, cmp)
	if !b.desc.Distinct {
		return rows
	}
	out := rows[:0:0]
	for i, r := range rows {
		if i == 0 || !rowsEqualByArgs(rows[i-1], r) {
			out = append(out, r)
		}
	}
	return out
}

func compareRows(desc *PerAggDescriptor, a, b row.Row) int {
	if len(desc.OrderBy) > 0 {
		for _, spec := range desc.OrderBy {
			av, _ := spec.Expr(a)
			bv, _ := spec.Expr(b)
			c := av.Compare(bv)
			if spec.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
	return rowCompareAll(a, b)
}

func rowCompareAll(a, b row.Row) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func rowsEqualByArgs(a, b row.Row) bool { return row.Equal(a, b) }

// insertionSort keeps sortBuffer free of a dependency on sort.Slice's
// reflection-based comparator plumbing; buffers here are per-group and
// typically small (DISTINCT/ORDER BY aggregates are not used on the hashed
// strategy's potentially huge groups, per spec §4.5).
func insertionSort(rows []row.Row, less func(i, j int) bool) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}
