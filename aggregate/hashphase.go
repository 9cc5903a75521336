package aggregate

import (
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
	"github.com/adam8157/aggexec/spill"
	"go.uber.org/zap"
)

// hashGroupState is the per-grouping-set bookkeeping for the hashed
// strategy: one GroupKeyTable plus the spill manager currently absorbing
// whatever that table can no longer hold.
type hashGroupState struct {
	id      int
	set     GroupingSet
	table   *GroupKeyTable
	spiller *spill.Manager
}

// pendingBatch is one entry in the FIFO of spec §4.4's "each non-empty
// partition becomes a new SpillBatch appended to a FIFO".
type pendingBatch struct {
	batch   *spill.Batch
	hashIdx int // index into driver.hashSets this batch belongs to
}

// hashFSMState names the states of spec §4.6's hash fill/retrieve/refill
// protocol.
type hashFSMState int

const (
	hashInit hashFSMState = iota
	hashFilling
	hashDrainMem
	hashRefill
	hashDone
)

// initHashSets allocates one GroupKeyTable per grouping set in the hash
// phase, dividing the configured work_mem budget across them (spec §6:
// "divided among concurrent tables").
func (d *AggregationDriver) initHashSets(sets []GroupingSet) {
	perTable := d.cfg.WorkMem
	if n := len(sets); n > 1 {
		perTable = d.cfg.WorkMem / int64(n)
	}
	ngroupLimit := d.cfg.HashNGroupsLimit
	if d.cfg.HashAggMemOverflow {
		perTable, ngroupLimit = 0, 0 // 0 WorkMem below is interpreted as "no limit" by passing <=0 to NewGroupKeyTable
	}
	for i, s := range sets {
		var memLimit int64
		if !d.cfg.HashAggMemOverflow {
			memLimit = perTable
		}
		d.hashSets = append(d.hashSets, &hashGroupState{
			id:    i,
			set:   s,
			table: NewGroupKeyTable(d.numTrans, memLimit, ngroupLimit),
		})
	}
}

// hashInsertRow implements one iteration of spec §4.6's [FILLING] loop body
// for every hashed grouping set: project the key, look it up (inserting if
// room remains), and either run the transition batch or spill a copy of
// the row.
func (d *AggregationDriver) hashInsertRow(r row.Row) error {
	var keyBuf []byte
	for hi, hs := range d.hashSets {
		key := row.BuildKey(r, hs.set, keyBuf)
		entry, ok := hs.table.Lookup(r.Project(hs.set), key.Hash, string(key.Bytes), d.aggs)
		if !ok {
			if err := d.spillOverflowRow(hi, hs, r, key.Hash); err != nil {
				return err
			}
			continue
		}
		if entry.SampleRow == nil {
			entry.SampleRow = r.Clone()
		}
		entry.GroupingBitmap = groupingBitmap(d.numGroupCols, hs.set)
		inv := NewTransitionInvoker(d.aggs, hs.table.Arena())
		if err := inv.RunRow(entry.State, r, true); err != nil {
			return err
		}
	}
	return nil
}

// spillOverflowRow routes a row whose key is absent from an overflowed
// table to that grouping set's SpillManager, lazily creating the manager
// and sizing its partition count per spec §4.4's formula.
func (d *AggregationDriver) spillOverflowRow(hashIdx int, hs *hashGroupState, r row.Row, hash uint32) error {
	if hs.spiller == nil {
		estGroups := int64(hs.table.Len())
		if estGroups < 1 {
			estGroups = 1
		}
		nPart := spill.ChoosePartitionCount(estGroups, DefaultEntrySize, d.cfg.WorkMem, d.cfg.HashPartitionMem,
			d.cfg.HashPartitionFactor, d.cfg.HashMinPartitions, d.cfg.HashMaxPartitions)
		mgr, err := spill.NewManager(nPart, 0, hashIdx, d.cfg.Logger)
		if err != nil {
			return internalErrorf("spill manager: " + err.Error())
		}
		hs.spiller = mgr
		d.cfg.Logger.Debug("hash table overflowed, spill manager created",
			zap.Int("grouping_set", hashIdx), zap.Int("partitions", nPart))
	}
	return hs.spiller.SpillRow(r, hash)
}

// finalizeInitialSpills flushes every hash set's active spill manager to
// disk and enqueues the resulting batches, spec §4.6's
// `finalize_initial_spills()`.
func (d *AggregationDriver) finalizeInitialSpills() error {
	for hi, hs := range d.hashSets {
		if hs.spiller == nil {
			continue
		}
		batches, err := hs.spiller.Finalize()
		if err != nil {
			return internalErrorf("finalize spill: " + err.Error())
		}
		for _, b := range batches {
			d.pendingBatches = append(d.pendingBatches, &pendingBatch{batch: b, hashIdx: hi})
		}
		hs.spiller = nil
	}
	return nil
}

// drainCurrentTable implements spec §4.6's [DRAIN_MEM] state: pop entries
// from the current table one at a time, finalizing and appending a row to
// the output queue for each.
func (d *AggregationDriver) drainCurrentTable() (bool, error) {
	hs := d.hashSets[d.curHashIdx]
	if d.curIter == nil {
		d.curIter = hs.table.Iter()
		d.curIterPos = 0
	}
	if d.curIterPos >= len(d.curIter) {
		hs.table.Destroy()
		d.curIter = nil
		return false, nil // this table is exhausted
	}
	entry := d.curIter[d.curIterPos]
	d.curIterPos++
	out, err := d.finalizeEntry(entry, hs.set)
	if err != nil {
		return false, err
	}
	d.outQueue = append(d.outQueue, out)
	return true, nil
}

// finalizeEntry runs Finalize/FinalizePartial for every aggregate over one
// GroupEntry's transition states and assembles an OutputRow. Calls sharing
// an AggNo (ShareDetector's per-aggregate reuse, spec §4.8) are finalized
// once and the result is copied into each one's own ResultSlot.
func (d *AggregationDriver) finalizeEntry(entry *GroupEntry, set GroupingSet) (OutputRow, error) {
	inv := NewTransitionInvoker(d.aggs, NewArena())
	out := OutputRow{GroupKey: entry.Key, GroupingSet: set, GroupingBitmap: entry.GroupingBitmap, Values: make([]datumSlot, d.numResultSlots)}
	done := make(map[int]datum.Datum, len(d.aggs))
	for _, a := range d.aggs {
		v, ok := done[a.AggNo]
		if !ok {
			var err error
			v, err = inv.Finalize(a, &entry.State[a.TransNo], entry.SampleRow)
			if err != nil {
				return OutputRow{}, err
			}
			done[a.AggNo] = v
		}
		out.Values[a.ResultSlot] = datumSlot{v: v, set: true}
	}
	return out, nil
}

// advanceHashSet moves to the next hashed grouping set in this pass, or
// transitions to REFILL if none remain (spec §4.6).
func (d *AggregationDriver) advanceHashSet() {
	d.curHashIdx++
	if d.curHashIdx >= len(d.hashSets) {
		d.hstate = hashRefill
		return
	}
	d.hstate = hashDrainMem
}

// refillFromNextBatch implements spec §4.6's [REFILL] state: pop one batch
// from the FIFO, destroy and rebuild the table for that batch's grouping
// set, replay every tuple, and re-spill anything that still overflows into
// new child batches on the same logical partitioning scheme.
func (d *AggregationDriver) refillFromNextBatch() (bool, error) {
	if len(d.pendingBatches) == 0 {
		d.hstate = hashDone
		return false, nil
	}
	pb := d.pendingBatches[0]
	d.pendingBatches = d.pendingBatches[1:]
	hs := d.hashSets[pb.hashIdx]
	hs.table.Destroy()
	memLimit, ngroupLimit := d.groupKeyTableMemLimit(), d.cfg.HashNGroupsLimit
	if pb.batch.InputBitDepth >= 32 {
		// No hash bits remain to split this batch further: it completes in
		// memory.
		memLimit, ngroupLimit = 0, 0
	}
	hs.table = NewGroupKeyTable(d.numTrans, memLimit, ngroupLimit)

	for {
		r, hash, ok, err := pb.batch.Next()
		if err != nil {
			return false, internalErrorf("spill read: " + err.Error())
		}
		if !ok {
			break
		}
		if err := d.cancel.Check(); err != nil {
			return false, err
		}
		entry, got := hs.table.Lookup(r.Project(hs.set), hash, string(projectKeyBytes(r, hs.set)), d.aggs)
		if !got {
			if err := d.spillOverflowRowRecursive(pb, hs, r, hash); err != nil {
				return false, err
			}
			continue
		}
		if entry.SampleRow == nil {
			entry.SampleRow = r.Clone()
		}
		entry.GroupingBitmap = groupingBitmap(d.numGroupCols, hs.set)
		inv := NewTransitionInvoker(d.aggs, hs.table.Arena())
		if err := inv.RunRow(entry.State, r, true); err != nil {
			return false, err
		}
	}
	_ = pb.batch.Close()

	if err := d.finalizeRecursiveSpill(pb); err != nil {
		return false, err
	}

	d.curHashIdx = pb.hashIdx
	d.hstate = hashDrainMem
	return true, nil
}

func (d *AggregationDriver) groupKeyTableMemLimit() int64 {
	if d.cfg.HashAggMemOverflow {
		return 0
	}
	n := len(d.hashSets)
	if n < 1 {
		n = 1
	}
	return d.cfg.WorkMem / int64(n)
}

// spillOverflowRowRecursive re-spills a tuple that still doesn't fit after
// a REFILL, creating a child SpillManager on first use. Per spec §4.4,
// recursive batches add their own partition_bits to the parent's
// InputBitDepth; once 32 bits are exhausted, spill.NewManager truncates
// partition_bits to fit, and refillFromNextBatch replays a batch whose bit
// depth has reached 32 into a table with no memory or group limit, so that
// batch completes in memory.
func (d *AggregationDriver) spillOverflowRowRecursive(pb *pendingBatch, hs *hashGroupState, r row.Row, hash uint32) error {
	if hs.spiller == nil {
		nPart := spill.ChoosePartitionCount(int64(hs.table.Len())+1, DefaultEntrySize, d.cfg.WorkMem, d.cfg.HashPartitionMem,
			d.cfg.HashPartitionFactor, d.cfg.HashMinPartitions, d.cfg.HashMaxPartitions)
		mgr, err := spill.NewManager(nPart, pb.batch.InputBitDepth, pb.hashIdx, d.cfg.Logger)
		if err != nil {
			return internalErrorf("recursive spill manager: " + err.Error())
		}
		hs.spiller = mgr
	}
	return hs.spiller.SpillRow(r, hash)
}

func (d *AggregationDriver) finalizeRecursiveSpill(pb *pendingBatch) error {
	hs := d.hashSets[pb.hashIdx]
	if hs.spiller == nil {
		return nil
	}
	batches, err := hs.spiller.Finalize()
	if err != nil {
		return internalErrorf("finalize recursive spill: " + err.Error())
	}
	for _, b := range batches {
		d.pendingBatches = append(d.pendingBatches, &pendingBatch{batch: b, hashIdx: pb.hashIdx})
	}
	hs.spiller = nil
	return nil
}

func projectKeyBytes(r row.Row, cols []int) []byte {
	var buf []byte
	for _, c := range cols {
		buf = r[c].Encode(buf)
	}
	return buf
}

// groupingBitmap computes SPEC_FULL.md supplemented-feature #2's
// GROUPING() bitmap: one bit per grouping column not present in set.
func groupingBitmap(numGroupCols int, set GroupingSet) uint64 {
	in := make(map[int]bool, len(set))
	for _, c := range set {
		in[c] = true
	}
	var bm uint64
	for i := 0; i < numGroupCols; i++ {
		if !in[i] {
			bm |= 1 << uint(i)
		}
	}
	return bm
}
