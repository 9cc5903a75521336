package aggregate

import (
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// sortedGroupState is one grouping set's running group inside a sorted
// phase: its own transition states, arena, and the key row that started
// the current group (used to detect the boundary, spec §4.1).
type sortedGroupState struct {
	set       GroupingSet
	states    []PerTransState
	arena     *Arena
	curKey    row.Row
	sampleRow row.Row
	hasGroup  bool
}

func newSortedGroupState(set GroupingSet, numTrans int) *sortedGroupState {
	return &sortedGroupState{set: set, states: make([]PerTransState, numTrans), arena: NewArena()}
}

// startGroup re-initializes every transition state for a fresh group
// starting at r, spec §4.1's "open a new group".
func (gs *sortedGroupState) startGroup(r row.Row, aggs []*PerAggDescriptor) {
	gs.arena.Reset()
	seen := make(map[int]bool, len(gs.states))
	for _, d := range aggs {
		if seen[d.TransNo] {
			continue
		}
		seen[d.TransNo] = true
		gs.states[d.TransNo].Reset(d, gs.arena)
	}
	gs.curKey = r.Project(gs.set)
	gs.sampleRow = r.Clone()
	gs.hasGroup = true
}

// initSortedGroups builds one sortedGroupState per grouping set named
// across all sorted phases, keyed by phase index then position, so the
// main loop can address "the N-th grouping set of sorted phase P".
func (d *AggregationDriver) initSortedGroups() {
	d.sortedGroups = make([][]*sortedGroupState, len(d.sortedPhases))
	for pi, ph := range d.sortedPhases {
		for _, set := range ph.GroupingSets {
			d.sortedGroups[pi] = append(d.sortedGroups[pi], newSortedGroupState(set, d.numTrans))
		}
	}
}

// sortedRowSource abstracts where a sorted phase's rows come from: the raw
// child iterator for phase 1, or the previous phase's output sorter for
// phase 2+ (spec §4.2).
func (d *AggregationDriver) sortedRowSource(phaseIdx int) func() (row.Row, bool, error) {
	if phaseIdx == 0 {
		return func() (row.Row, bool, error) { return d.child.Next() }
	}
	in := d.phaseCtl.InputSorter()
	return func() (row.Row, bool, error) { return in.GetRow() }
}

// stepSortedPhase advances the sorted/mixed strategy by one input row (or
// by draining the final groups once input is exhausted), implementing
// spec §4.1's group-boundary loop generalized to multiple concurrent
// grouping sets sharing a phase. Completed groups are appended to
// d.outQueue. Returns false once every sorted phase (and, for the mixed
// strategy, the trailing hashed drain) has been fully consumed.
func (d *AggregationDriver) stepSortedPhase() (bool, error) {
	if d.sortedPhaseIdx >= len(d.sortedPhases) {
		return d.mixedDrainHash()
	}

	if !d.sortedPhaseStarted {
		if err := d.phaseCtl.Advance(d.sortedPhaseIdx); err != nil {
			return false, err
		}
		d.initSortedGroupsForPhase(d.sortedPhaseIdx)
		d.sortedPhaseStarted = true
		d.sortedRowFn = d.sortedRowSource(d.sortedPhaseIdx)
	}

	r, ok, err := d.sortedRowFn()
	if err != nil {
		return false, err
	}
	if !ok {
		if err := d.flushSortedPhase(d.sortedPhaseIdx); err != nil {
			return false, err
		}
		d.sortedPhaseIdx++
		d.sortedPhaseStarted = false
		return true, nil
	}

	if d.sortedPhaseIdx == 0 && len(d.hashSets) > 0 {
		if err := d.hashInsertRow(r); err != nil {
			return false, err
		}
	}

	groups := d.sortedGroups[d.sortedPhaseIdx]
	inv := NewTransitionInvoker(d.aggs, nil) // arena set per-group below
	for _, gs := range groups {
		if !gs.hasGroup || !row.Equal(r.Project(gs.set), gs.curKey) {
			if gs.hasGroup {
				if err := d.emitSortedGroup(gs, inv); err != nil {
					return false, err
				}
			}
			gs.startGroup(r, aggsForSet(d.aggs, gs.set, d.numGroupCols))
		}
		inv.arena = gs.arena
		if err := inv.RunRow(gs.states, r, false); err != nil {
			return false, err
		}
	}

	if err := d.phaseCtl.PutToOutput(r); err != nil {
		return false, err
	}
	return true, nil
}

// initSortedGroupsForPhase resets bookkeeping (but not transition state —
// that happens lazily on the first row of each group) when a sorted phase
// begins.
func (d *AggregationDriver) initSortedGroupsForPhase(idx int) {
	for _, gs := range d.sortedGroups[idx] {
		gs.hasGroup = false
	}
}

// flushSortedPhase emits whatever group is still open when a phase's input
// is exhausted.
func (d *AggregationDriver) flushSortedPhase(idx int) error {
	inv := NewTransitionInvoker(d.aggs, nil)
	for _, gs := range d.sortedGroups[idx] {
		if gs.hasGroup {
			if err := d.emitSortedGroup(gs, inv); err != nil {
				return err
			}
			gs.hasGroup = false
		}
	}
	return nil
}

// emitSortedGroup flushes any DISTINCT/ORDER BY sorters, finalizes every
// aggregate over gs's transition states, and appends the resulting
// OutputRow to the queue. Calls sharing an AggNo (ShareDetector's
// per-aggregate reuse, spec §4.8) are finalized once and the result is
// copied into each one's own ResultSlot.
func (d *AggregationDriver) emitSortedGroup(gs *sortedGroupState, inv *TransitionInvoker) error {
	inv.arena = gs.arena
	if err := inv.FlushSorted(gs.states); err != nil {
		return err
	}
	out := OutputRow{
		GroupKey:       gs.curKey,
		GroupingSet:    gs.set,
		GroupingBitmap: groupingBitmap(d.numGroupCols, gs.set),
		Values:         make([]datumSlot, d.numResultSlots),
	}
	done := make(map[int]datum.Datum)
	for _, a := range aggsForSet(d.aggs, gs.set, d.numGroupCols) {
		v, ok := done[a.AggNo]
		if !ok {
			var err error
			v, err = inv.Finalize(a, &gs.states[a.TransNo], gs.sampleRow)
			if err != nil {
				return err
			}
			done[a.AggNo] = v
		}
		out.Values[a.ResultSlot] = datumSlot{v: v, set: true}
	}
	d.outQueue = append(d.outQueue, out)
	return nil
}

// aggsForSet returns every aggregate applicable to a grouping set. This
// module treats all aggregates as applicable to every grouping set
// (matching plain GROUP BY / ROLLUP semantics, where the same aggregate
// list is evaluated at every level); numGroupCols is accepted for
// signature symmetry with groupingBitmap's callers.
func aggsForSet(aggs []*PerAggDescriptor, _ GroupingSet, _ int) []*PerAggDescriptor {
	return aggs
}

