package aggregate

import (
	"testing"

	"github.com/adam8157/aggexec/aggfuncs"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
	"github.com/stretchr/testify/require"
)

// sliceIterator adapts a fixed slice of rows to ChildIterator, the minimal
// stand-in for an upstream operator used throughout these tests.
type sliceIterator struct {
	rows []row.Row
	pos  int
}

func newSliceIterator(rows []row.Row) *sliceIterator { return &sliceIterator{rows: rows} }

func (it *sliceIterator) Next() (row.Row, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	r := it.rows[it.pos]
	it.pos++
	return r, true, nil
}

func colArg(i int) RowExprFunc {
	return func(r row.Row) (datum.Datum, error) { return r[i], nil }
}

func drainAll(t *testing.T, d *AggregationDriver) []OutputRow {
	t.Helper()
	var out []OutputRow
	for {
		o, ok, err := d.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, o)
	}
}

// S1: Plain count(*) with no GROUP BY at all.
func TestScenario_S1_PlainCount(t *testing.T) {
	rows := []row.Row{
		{datum.NewInt(1)},
		{datum.NewInt(2)},
		{datum.NewInt(3)},
	}
	agg := &PerAggDescriptor{Name: "count", Func: aggfuncs.NewCount(), ResultSlot: 0}
	plan := Plan{Aggs: []*PerAggDescriptor{agg}}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].Value(0).I)
}

// S2: Sorted sum(col1) GROUP BY col0, input already sorted by col0.
func TestScenario_S2_SortedSumGroup(t *testing.T) {
	rows := []row.Row{
		{datum.NewInt(1), datum.NewInt(10)},
		{datum.NewInt(1), datum.NewInt(20)},
		{datum.NewInt(2), datum.NewInt(30)},
	}
	agg := &PerAggDescriptor{Name: "sum", Func: aggfuncs.NewSum(), Args: []RowExprFunc{colArg(1)}, ResultSlot: 0}
	plan := Plan{
		Aggs:            []*PerAggDescriptor{agg},
		GroupingSets:    []GroupingSet{{0}},
		NumGroupColumns: 1,
		ForceSorted:     true,
	}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 2)
	require.Equal(t, float64(30), out[0].Value(0).F)
	require.Equal(t, float64(30), out[1].Value(0).F)
}

// S3: strict min(x) over input containing leading and interspersed NULLs.
func TestScenario_S3_StrictMinNullInit(t *testing.T) {
	rows := []row.Row{
		{datum.Null()},
		{datum.NewInt(5)},
		{datum.NewInt(3)},
		{datum.Null()},
		{datum.NewInt(7)},
	}
	agg := &PerAggDescriptor{Name: "min", Func: aggfuncs.NewMin(), Args: []RowExprFunc{colArg(0)}, ResultSlot: 0}
	plan := Plan{Aggs: []*PerAggDescriptor{agg}}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].Value(0).I)
}

// S4: count(DISTINCT x) and sum(DISTINCT x) over the same grouping.
func TestScenario_S4_Distinct(t *testing.T) {
	rows := []row.Row{
		{datum.NewInt(1)},
		{datum.NewInt(1)},
		{datum.NewInt(2)},
		{datum.NewInt(2)},
		{datum.NewInt(3)},
	}
	countAgg := &PerAggDescriptor{Name: "count", Func: aggfuncs.NewCount(), Args: []RowExprFunc{colArg(0)}, Distinct: true, ResultSlot: 0}
	sumAgg := &PerAggDescriptor{Name: "sum", Func: aggfuncs.NewSum(), Args: []RowExprFunc{colArg(0)}, Distinct: true, ResultSlot: 1}
	plan := Plan{Aggs: []*PerAggDescriptor{countAgg, sumAgg}}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].Value(0).I)
	require.Equal(t, float64(6), out[0].Value(1).F)
}

// S5: hashed max(i1) GROUP BY i2 with a small WorkMem, forcing overflow to
// disk. Output must still contain one row per distinct i2 value and match
// the work_mem=unbounded result exactly.
func TestScenario_S5_HashSpill(t *testing.T) {
	const n = 6000
	rows := make([]row.Row, 0, n)
	want := make(map[int64]int64)
	for i := int64(1); i <= n; i++ {
		i2 := i % 500
		if cur, ok := want[i2]; !ok || i > cur {
			want[i2] = i
		}
		rows = append(rows, row.Row{datum.NewInt(i), datum.NewInt(i2), datum.NewInt(i), datum.NewInt(i)})
	}
	agg := &PerAggDescriptor{Name: "max", Func: aggfuncs.NewMax(), Args: []RowExprFunc{colArg(0)}, ResultSlot: 0}
	plan := Plan{
		Aggs:            []*PerAggDescriptor{agg},
		GroupingSets:    []GroupingSet{{1}},
		NumGroupColumns: 4,
		Config:          Config{WorkMem: 1800, HashPartitionMem: 512},
	}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, len(want))
	for _, o := range out {
		i2 := o.GroupKey[0].I
		require.Equal(t, want[i2], o.Value(0).I)
	}
}

// S6: ROLLUP over (a,b): three grouping-set levels, count(*) at each.
func TestScenario_S6_GroupingSetsRollup(t *testing.T) {
	rows := []row.Row{
		{datum.NewInt(1), datum.NewInt(1)}, // a1,b1
		{datum.NewInt(1), datum.NewInt(2)}, // a1,b2
		{datum.NewInt(2), datum.NewInt(1)}, // a2,b1
	}
	agg := &PerAggDescriptor{Name: "count", Func: aggfuncs.NewCount(), ResultSlot: 0}
	plan := Plan{
		Aggs:            []*PerAggDescriptor{agg},
		GroupingSets:    []GroupingSet{{0, 1}, {0}, {}},
		NumGroupColumns: 2,
		ForceSorted:     true,
	}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)

	totals := map[string]int64{}
	for _, o := range out {
		totals[groupLabel(o)] = o.Value(0).I
	}
	require.Equal(t, int64(1), totals["(1,1)"])
	require.Equal(t, int64(1), totals["(1,2)"])
	require.Equal(t, int64(1), totals["(2,1)"])
	require.Equal(t, int64(2), totals["(1,*)"])
	require.Equal(t, int64(1), totals["(2,*)"])
	require.Equal(t, int64(3), totals["(*,*)"])
}

// S7: same ROLLUP as S6, but with the finest grouping set hash-eligible
// (no DISTINCT/ORDER BY forces it sorted) and the coarser two levels
// sorted — exercising the mixed strategy's trailing hash drain.
func TestScenario_S7_Mixed(t *testing.T) {
	rows := []row.Row{
		{datum.NewInt(1), datum.NewInt(1)},
		{datum.NewInt(1), datum.NewInt(2)},
		{datum.NewInt(2), datum.NewInt(1)},
	}
	agg := &PerAggDescriptor{Name: "count", Func: aggfuncs.NewCount(), ResultSlot: 0}
	plan := Plan{
		Aggs:            []*PerAggDescriptor{agg},
		GroupingSets:    []GroupingSet{{0, 1}, {0}, {}},
		NumGroupColumns: 2,
		// {0,1} stays hash-eligible; {0} and {} are forced sorted, so the
		// hashed phase-0 table is fed during the sorted phase's scan of the
		// raw input and drained only after the sorted chain finishes.
		ForceSortedSets: []GroupingSet{{0}, {}},
	}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)

	totals := map[string]int64{}
	for _, o := range out {
		totals[groupLabel(o)] = o.Value(0).I
	}
	require.Equal(t, int64(1), totals["(1,1)"])
	require.Equal(t, int64(1), totals["(1,2)"])
	require.Equal(t, int64(1), totals["(2,1)"])
	require.Equal(t, int64(2), totals["(1,*)"])
	require.Equal(t, int64(1), totals["(2,*)"])
	require.Equal(t, int64(3), totals["(*,*)"])
}

func groupLabel(o OutputRow) string {
	cols := map[int]datum.Datum{}
	for i, c := range o.GroupingSet {
		cols[c] = o.GroupKey[i]
	}
	s := "("
	for i := 0; i < 2; i++ {
		if i > 0 {
			s += ","
		}
		if v, ok := cols[i]; ok {
			s += itoaDatum(v)
		} else {
			s += "*"
		}
	}
	return s + ")"
}

func itoaDatum(d datum.Datum) string {
	switch d.I {
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "?"
	}
}

// TestDirectArgs exercises SPEC_FULL.md's supplemented-feature #4: a
// hypothetical-set-style aggregate whose direct argument (a literal scaling
// factor, constant across the group) is evaluated once against the group's
// sample row and folded into the finalize result alongside the transition
// state.
func TestDirectArgs(t *testing.T) {
	scaled := &aggfuncs.Descriptor{
		Name:     "scaled_count",
		NewState: func() any { return &struct{ n int64 }{} },
		Trans: func(state any, _ row.Row) (any, bool, error) {
			s := state.(*struct{ n int64 })
			s.n++
			return s, false, nil
		},
		Final: func(state any, _ bool, directArgs row.Row) (datum.Datum, error) {
			s := state.(*struct{ n int64 })
			return datum.NewInt(s.n * directArgs[0].I), nil
		},
	}
	rows := []row.Row{
		{datum.NewInt(1), datum.NewInt(3)},
		{datum.NewInt(1), datum.NewInt(3)},
		{datum.NewInt(2), datum.NewInt(5)},
	}
	agg := &PerAggDescriptor{
		Name:       "scaled_count",
		Func:       scaled,
		DirectArgs: []RowExprFunc{colArg(1)},
		ResultSlot: 0,
	}
	plan := Plan{
		Aggs:            []*PerAggDescriptor{agg},
		GroupingSets:    []GroupingSet{{0}},
		NumGroupColumns: 1,
		ForceSorted:     true,
	}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 2)
	got := map[int64]int64{}
	for _, o := range out {
		got[o.GroupKey[0].I] = o.Value(0).I
	}
	require.Equal(t, int64(6), got[1]) // 2 rows * direct arg 3
	require.Equal(t, int64(5), got[2]) // 1 row * direct arg 5
}

// TestFilterClause exercises SPEC_FULL.md's supplemented-feature #3:
// count(*) FILTER (WHERE col0 > 1) skips the transition entirely for rows
// that fail the filter, not just the rows that evaluate to NULL.
func TestFilterClause(t *testing.T) {
	rows := []row.Row{
		{datum.NewInt(1)},
		{datum.NewInt(2)},
		{datum.NewInt(3)},
	}
	agg := &PerAggDescriptor{
		Name:       "count",
		Func:       aggfuncs.NewCount(),
		Filter:     func(r row.Row) (bool, error) { return r[0].I > 1, nil },
		ResultSlot: 0,
	}
	plan := Plan{Aggs: []*PerAggDescriptor{agg}}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 1)
	require.Equal(t, int64(2), out[0].Value(0).I)
}

func TestShareDetector_SharesTransitionState(t *testing.T) {
	sumFn := aggfuncs.NewSum()
	arg0 := colArg(0)
	a1 := &PerAggDescriptor{Name: "sum", Func: sumFn, Args: []RowExprFunc{arg0}, ResultSlot: 0}
	a2 := &PerAggDescriptor{Name: "sum", Func: sumFn, Args: []RowExprFunc{arg0}, ResultSlot: 1}
	sd := &ShareDetector{}
	stats := sd.Assign([]*PerAggDescriptor{a1, a2})
	require.Equal(t, 2, stats.NumAggs)
	require.Equal(t, 1, stats.NumTrans)
	require.Equal(t, a1.TransNo, a2.TransNo)
}

// TestShareDetector_SharesFinalizeComputation exercises spec §4.8's
// per-aggregate (level 1) reuse: two calls that are fully identical down
// to the split mode get the same AggNo, and a driver finalizes that
// shared computation once, copying the one result into both ResultSlots.
func TestShareDetector_SharesFinalizeComputation(t *testing.T) {
	countFn := aggfuncs.NewCount()
	a1 := &PerAggDescriptor{Name: "count", Func: countFn, ResultSlot: 0}
	a2 := &PerAggDescriptor{Name: "count", Func: countFn, ResultSlot: 1}
	sd := &ShareDetector{}
	sd.Assign([]*PerAggDescriptor{a1, a2})
	require.Equal(t, a1.TransNo, a2.TransNo)
	require.Equal(t, a1.AggNo, a2.AggNo)

	rows := []row.Row{{datum.NewInt(1)}, {datum.NewInt(2)}, {datum.NewInt(3)}}
	plan := Plan{Aggs: []*PerAggDescriptor{a1, a2}}
	d, err := NewAggregationDriver(plan, newSliceIterator(rows), nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].Value(0).I)
	require.Equal(t, out[0].Value(0).I, out[0].Value(1).I)

	// same reuse, driven through the sorted strategy's emitSortedGroup path
	b1 := &PerAggDescriptor{Name: "count", Func: countFn, ResultSlot: 0}
	b2 := &PerAggDescriptor{Name: "count", Func: countFn, ResultSlot: 1}
	sortedPlan := Plan{
		Aggs:            []*PerAggDescriptor{b1, b2},
		GroupingSets:    []GroupingSet{{0}},
		NumGroupColumns: 1,
		ForceSorted:     true,
	}
	sortedRows := []row.Row{{datum.NewInt(1)}, {datum.NewInt(1)}, {datum.NewInt(2)}}
	sd2, err := NewAggregationDriver(sortedPlan, newSliceIterator(sortedRows), nil)
	require.NoError(t, err)
	sortedOut := drainAll(t, sd2)
	require.Len(t, sortedOut, 2)
	for _, r := range sortedOut {
		require.Equal(t, r.Value(0).I, r.Value(1).I)
	}
}

// TestNewAggregationDriver_RejectsTypeMismatch exercises spec §4.7/§7's
// TypeMismatch rule: a strict transfn whose non-NULL initcond doesn't carry
// the type NewState produces is rejected at construction time, before it
// can panic mid-scan on some later group's first row.
func TestNewAggregationDriver_RejectsTypeMismatch(t *testing.T) {
	bad := &aggfuncs.Descriptor{
		Name:     "bad_sum",
		NewState: func() any { return &struct{ n int64 }{} },
		Trans: func(state any, r row.Row) (any, bool, error) {
			return state, false, nil
		},
		Final: func(state any, _ bool, _ row.Row) (datum.Datum, error) {
			return datum.NewInt(0), nil
		},
		Strict:   true,
		InitCond: func() *datum.Datum { d := datum.NewInt(0); return &d }(),
	}
	agg := &PerAggDescriptor{Name: "bad_sum", Func: bad, Args: []RowExprFunc{colArg(0)}, ResultSlot: 0}
	plan := Plan{Aggs: []*PerAggDescriptor{agg}}
	d, err := NewAggregationDriver(plan, newSliceIterator(nil), nil)
	require.Error(t, err)
	require.Nil(t, d)
	var tme *TypeMismatchError
	require.ErrorAs(t, err, &tme)
}

func TestRescan_ResetsState(t *testing.T) {
	rows := []row.Row{{datum.NewInt(1)}, {datum.NewInt(2)}}
	agg := &PerAggDescriptor{Name: "count", Func: aggfuncs.NewCount(), ResultSlot: 0}
	plan := Plan{Aggs: []*PerAggDescriptor{agg}}
	it := newSliceIterator(rows)
	d, err := NewAggregationDriver(plan, it, nil)
	require.NoError(t, err)
	out := drainAll(t, d)
	require.Len(t, out, 1)
	require.Equal(t, int64(2), out[0].Value(0).I)

	it.pos = 0
	d.Rescan()
	out = drainAll(t, d)
	require.Len(t, out, 1)
	require.Equal(t, int64(2), out[0].Value(0).I)
}
