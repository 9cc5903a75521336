package aggregate

import (
	"github.com/adam8157/aggexec/aggfuncs"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
	"github.com/pingcap/errors"
)

// Plan is everything AggregationDriver needs to run: the aggregate calls,
// the grouping sets to compute them over, and the tuning knobs of
// spec.md §6. A caller builds one Plan per query node.
type Plan struct {
	Aggs []*PerAggDescriptor

	// GroupingSets lists every level to compute (a plain GROUP BY is one
	// set; a ROLLUP/CUBE/explicit GROUPING SETS list is several — see
	// SPEC_FULL.md's supplemented-feature #1). A nil or empty list means
	// "no GROUP BY at all", handled as the single empty grouping set (the
	// degenerate, one-group-total case spec.md §4.1 calls AGG_PLAIN).
	GroupingSets []GroupingSet

	// NumGroupColumns is the width of the widest grouping column index
	// referenced across GroupingSets plus one; it sizes GroupingBitmap.
	NumGroupColumns int

	// ForceSorted skips hash-eligibility entirely and routes every
	// grouping set to the sorted strategy, even if none of the aggregates
	// need sorting. Used by a caller that already knows the input arrives
	// sorted and wants to avoid the hash table's memory overhead.
	ForceSorted bool

	// ForceSortedSets names specific grouping sets (by column-index
	// equality) that must use the sorted strategy regardless of
	// ForceSorted or aggregate requirements — how a caller builds the
	// mixed strategy of spec §4.1's "Mixed" row deliberately, rather than
	// only ever arriving at it because some aggregate needs sorting.
	ForceSortedSets []GroupingSet

	Config Config
}

// datumSlot distinguishes "this aggregate produced NULL" from "this result
// column was never written" (relevant only for defensive assertions; every
// ResultSlot named by an agg in the plan is always written).
type datumSlot struct {
	v   datum.Datum
	set bool
}

// OutputRow is one finalized group: its key columns, which grouping set
// produced it, the GROUPING() bitmap, and one finalized Datum per
// ResultSlot.
type OutputRow struct {
	GroupKey       row.Row
	GroupingSet    GroupingSet
	GroupingBitmap uint64
	Values         []datumSlot
}

// Value returns the finalized result for result slot i.
func (o OutputRow) Value(i int) datum.Datum { return o.Values[i].v }

// AggregationDriver is spec.md's C6, the top-level pull iterator tying
// together every other component: GroupKeyTable for the hashed strategy,
// PhaseController plus per-grouping-set transition state for the
// sorted/plain/mixed strategies, spill.Manager for hash overflow, and
// ShareDetector to collapse duplicate transition work up front.
type AggregationDriver struct {
	cfg  Config
	aggs []*PerAggDescriptor

	numTrans        int
	numGroupCols    int
	numResultSlots  int
	shareStats      Stats

	child  ChildIterator
	cancel CancelToken

	phases       []Phase
	sortedPhases []Phase

	// Hashed-strategy state (shared between the pure-hashed path and the
	// mixed strategy's trailing hash drain).
	hashSets       []*hashGroupState
	pendingBatches []*pendingBatch
	hstate         hashFSMState
	curHashIdx     int
	curIter        []*GroupEntry
	curIterPos     int

	// Sorted/mixed-strategy state.
	phaseCtl           *PhaseController
	sortedGroups       [][]*sortedGroupState
	sortedPhaseIdx     int
	sortedPhaseStarted bool
	sortedRowFn        func() (row.Row, bool, error)

	outQueue []OutputRow
	done     bool
}

// NewAggregationDriver builds a driver from a Plan, a row source, and an
// optional cancellation token (NopCancelToken{} if the caller doesn't
// need cooperative cancellation). It performs the one-time setup of spec
// §4.8 (ShareDetector.Assign) and §4.1/§4.2 (phase partitioning), and
// §4.7's construction-time TypeMismatch check over every distinct
// aggfuncs.Descriptor the plan references, but does not touch child until
// the first Next call. Returns a *TypeMismatchError, fatal for the whole
// query per spec §7's error table, if that check fails.
func NewAggregationDriver(plan Plan, child ChildIterator, cancel CancelToken) (*AggregationDriver, error) {
	if cancel == nil {
		cancel = NopCancelToken{}
	}
	if err := validateAggs(plan.Aggs); err != nil {
		return nil, err
	}
	d := &AggregationDriver{
		cfg:          plan.Config.WithDefaults(),
		aggs:         plan.Aggs,
		numGroupCols: plan.NumGroupColumns,
		child:        child,
		cancel:       cancel,
	}

	sd := &ShareDetector{}
	d.shareStats = sd.Assign(d.aggs)
	d.numTrans = d.shareStats.NumTrans

	for _, a := range d.aggs {
		if a.ResultSlot+1 > d.numResultSlots {
			d.numResultSlots = a.ResultSlot + 1
		}
	}

	sets := plan.GroupingSets
	if len(sets) == 0 {
		sets = []GroupingSet{{}}
	}

	needsSort := plan.ForceSorted
	for _, a := range d.aggs {
		if a.NeedsSort() {
			needsSort = true
			break
		}
	}
	hashEligible := func(s GroupingSet) bool { return !needsSort && !containsSet(plan.ForceSortedSets, s) }

	d.phases = BuildPhases(sets, hashEligible)
	for _, ph := range d.phases {
		if ph.Strategy == StrategyHashed {
			d.initHashSets(ph.GroupingSets)
		} else {
			d.sortedPhases = append(d.sortedPhases, ph)
		}
	}

	if len(d.sortedPhases) > 0 {
		d.phaseCtl = NewPhaseController(d.sortedPhases, d.newSorterForNextPhase)
		d.initSortedGroups()
	}

	return d, nil
}

// validateAggs runs Descriptor.Validate (spec §4.5/§4.7's construction-time
// TypeMismatch checks) once per distinct aggfuncs.Descriptor referenced by
// aggs, even when several PerAggDescriptors share one via ShareDetector's
// per-transition reuse — a Descriptor's validity doesn't depend on how many
// calls bind it.
func validateAggs(aggs []*PerAggDescriptor) error {
	seen := make(map[*aggfuncs.Descriptor]bool, len(aggs))
	for _, a := range aggs {
		if seen[a.Func] {
			continue
		}
		seen[a.Func] = true
		if err := a.Func.Validate(); err != nil {
			return errors.Trace(&TypeMismatchError{Msg: a.Name + ": " + err.Error()})
		}
	}
	return nil
}

func containsSet(sets []GroupingSet, s GroupingSet) bool {
	for _, c := range sets {
		if len(c) != len(s) {
			continue
		}
		match := true
		for i := range c {
			if c[i] != s[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// newSorterForNextPhase is the sorter_factory PhaseController.Advance
// invokes once it has committed to entering the next phase: it reads
// pc.current back off d.phaseCtl, which is already updated by the time
// Advance calls this closure.
func (d *AggregationDriver) newSorterForNextPhase() Sorter {
	idx := d.phaseCtl.CurrentIndex() + 1
	if idx < 0 || idx >= len(d.sortedPhases) {
		return NewMemorySorter(nil)
	}
	return NewMemorySorter(d.sortedPhases[idx].SortPrefix)
}

// Stats exposes SPEC_FULL.md's supplemented-feature #5 telemetry: how many
// of the plan's aggregate calls were collapsed onto how many transition
// states.
func (d *AggregationDriver) Stats() Stats { return d.shareStats }

// Next pulls rows from child (and, for the hashed/mixed strategies, spill
// batches) until either an output row is ready or input is exhausted,
// implementing spec §4.6's hash state machine and §4.1's sorted/plain
// group-boundary loop behind one pull interface.
func (d *AggregationDriver) Next() (OutputRow, bool, error) {
	for len(d.outQueue) == 0 {
		if d.done {
			return OutputRow{}, false, nil
		}
		if err := d.cancel.Check(); err != nil {
			return OutputRow{}, false, err
		}
		cont, err := d.step()
		if err != nil {
			return OutputRow{}, false, err
		}
		if !cont {
			d.done = true
		}
	}
	out := d.outQueue[0]
	d.outQueue = d.outQueue[1:]
	return out, true, nil
}

// step advances whichever strategy this plan resolved to by one unit of
// work. A plan with sorted phases always routes through stepSortedPhase,
// which also drives the hashed phase 0 (if any) during its first pass over
// the raw input and then hands off to the trailing hash drain — the mixed
// strategy of spec §4.1's "Mixed" row. A plan with no sorted phases at all
// is pure hashed (including the degenerate single-empty-grouping-set
// "plain" case) and is driven directly by stepHashOnly.
func (d *AggregationDriver) step() (bool, error) {
	if len(d.sortedPhases) > 0 {
		return d.stepSortedPhase()
	}
	return d.stepHashOnly()
}

// stepHashOnly drives spec §4.6's [FILLING]→[DRAIN_MEM]→[REFILL]→[DONE]
// state machine directly against the child iterator, for plans with no
// sorted grouping sets at all.
func (d *AggregationDriver) stepHashOnly() (bool, error) {
	switch d.hstate {
	case hashInit:
		d.hstate = hashFilling
		return true, nil

	case hashFilling:
		r, ok, err := d.child.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			if err := d.finalizeInitialSpills(); err != nil {
				return false, err
			}
			d.curHashIdx = 0
			d.hstate = hashDrainMem
			return true, nil
		}
		return true, d.hashInsertRow(r)

	case hashDrainMem:
		more, err := d.drainCurrentTable()
		if err != nil {
			return false, err
		}
		if !more {
			d.advanceHashSet()
		}
		return true, nil

	case hashRefill:
		if _, err := d.refillFromNextBatch(); err != nil {
			return false, err
		}
		return true, nil

	default: // hashDone
		return false, nil
	}
}

// mixedDrainHash runs once every sorted phase has finished: it drains (and,
// if anything overflowed, refills) the phase-0 hash tables that were fed
// during the first sorted phase's scan of the raw input, per spec §4.1's
// Mixed row. Plans with no hashed grouping sets at all skip straight to
// "done".
func (d *AggregationDriver) mixedDrainHash() (bool, error) {
	if len(d.hashSets) == 0 {
		return false, nil
	}
	switch d.hstate {
	case hashInit:
		if err := d.finalizeInitialSpills(); err != nil {
			return false, err
		}
		d.curHashIdx = 0
		d.hstate = hashDrainMem
		return true, nil

	case hashDrainMem:
		more, err := d.drainCurrentTable()
		if err != nil {
			return false, err
		}
		if !more {
			d.advanceHashSet()
		}
		return true, nil

	case hashRefill:
		if _, err := d.refillFromNextBatch(); err != nil {
			return false, err
		}
		return true, nil

	default: // hashDone
		return false, nil
	}
}

// Rescan resets the driver to run again from the start of a freshly
// rescanned child, the unconditional-reset path of
// SPEC_FULL.md's supplemented-feature #7 (the skip-if-unchanged
// optimization nodeAgg.c also supports belongs to the planner, not this
// executor, and is out of scope). The caller is responsible for rescanning
// child itself before the next Next call.
func (d *AggregationDriver) Rescan() {
	ngroupLimit := d.cfg.HashNGroupsLimit
	if d.cfg.HashAggMemOverflow {
		ngroupLimit = 0
	}
	for _, hs := range d.hashSets {
		if hs.table != nil {
			hs.table.Destroy()
		}
		hs.table = NewGroupKeyTable(d.numTrans, d.groupKeyTableMemLimit(), ngroupLimit)
		hs.spiller = nil
	}
	d.pendingBatches = nil
	d.hstate = hashInit
	d.curHashIdx = 0
	d.curIter = nil
	d.curIterPos = 0

	if d.phaseCtl != nil {
		d.phaseCtl.Reset()
		d.initSortedGroups()
	}
	d.sortedPhaseIdx = 0
	d.sortedPhaseStarted = false
	d.sortedRowFn = nil

	d.outQueue = nil
	d.done = false
}

// End releases every resource the driver is still holding (open spill
// tapes, hash tables) without requiring the caller to drain Next to
// exhaustion first.
func (d *AggregationDriver) End() {
	for _, hs := range d.hashSets {
		if hs.table != nil {
			hs.table.Destroy()
		}
	}
	for _, pb := range d.pendingBatches {
		_ = pb.batch.Close()
	}
	d.pendingBatches = nil
	if d.phaseCtl != nil {
		d.phaseCtl.Reset()
	}
	d.outQueue = nil
	d.done = true
}
