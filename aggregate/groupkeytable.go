package aggregate

import "github.com/adam8157/aggexec/row"

// GroupEntry is one hash-table slot: a representative key tuple plus the
// per-transition-state array for every transition function active for this
// grouping set, spec.md §3's GroupEntry.
type GroupEntry struct {
	Key   row.Row
	Hash  uint32
	State []PerTransState

	// SampleRow is the first full input row that matched this group, kept
	// around only so a direct-argument aggregate (SPEC_FULL.md's
	// supplemented-feature #4) has something to evaluate its direct
	// arguments against at finalize time — it is set once and never
	// overwritten, so direct arguments are always evaluated against the
	// group's first row.
	SampleRow row.Row

	// GroupingBitmap has one bit set per grouping column that is *not*
	// part of this entry's active grouping set and was therefore forced to
	// NULL, the GROUPING()/GROUPING_ID() support added in SPEC_FULL.md's
	// supplemented-feature #2.
	GroupingBitmap uint64
}

// GroupKeyTable is spec.md's C3: a hash table mapping grouping-key tuples
// to per-group transition-state arrays, with a lookup-only mode once the
// memory watermark trips (spec §4.3). Bucket count and resize policy are
// explicitly left to the implementation by the spec; a Go map already
// amortizes both, so GroupKeyTable doesn't reimplement them.
type GroupKeyTable struct {
	arena      *Arena
	numTrans   int
	entries    map[string]*GroupEntry
	lookupOnly bool

	memLimit    int64
	ngroupLimit int64
	peakBytes   int64
}

// NewGroupKeyTable creates an empty table sized for numTrans transition
// states per group, with the given memory/group-count watermarks. A zero
// ngroupLimit means "no cap on group count" (bytes are still enforced).
func NewGroupKeyTable(numTrans int, memLimit, ngroupLimit int64) *GroupKeyTable {
	return &GroupKeyTable{
		arena:       NewArena(),
		numTrans:    numTrans,
		entries:     make(map[string]*GroupEntry),
		memLimit:    memLimit,
		ngroupLimit: ngroupLimit,
	}
}

// LookupOnly reports whether the table has flipped into lookup-only mode.
func (t *GroupKeyTable) LookupOnly() bool { return t.lookupOnly }

// Len reports the number of resident groups.
func (t *GroupKeyTable) Len() int { return len(t.entries) }

// Arena exposes the table's backing arena, since it is owned by the table
// and destroyed together with it (spec §3: "destroying the table frees all
// entries together").
func (t *GroupKeyTable) Arena() *Arena { return t.arena }

// Lookup implements spec.md §4.3's `lookup(key_tuple, hash) -> &mut
// GroupEntry | None`. When the table is in lookup-only mode and the key is
// absent, it returns (nil, false) without inserting — the caller routes
// that row to the SpillManager.
func (t *GroupKeyTable) Lookup(key row.Row, hash uint32, keyBytes string, descs []*PerAggDescriptor) (*GroupEntry, bool) {
	if e, ok := t.entries[keyBytes]; ok {
		return e, true
	}
	if t.lookupOnly {
		return nil, false
	}
	e := &GroupEntry{Key: key.Clone(), Hash: hash, State: make([]PerTransState, t.numTrans)}
	seen := make(map[int]bool, t.numTrans)
	for _, d := range descs {
		if seen[d.TransNo] {
			continue
		}
		seen[d.TransNo] = true
		e.State[d.TransNo].Reset(d, t.arena)
	}
	t.entries[keyBytes] = e
	t.arena.Track(int64(len(keyBytes)) + int64(t.numTrans)*DefaultEntrySize)
	t.recomputeWatermark()
	return e, true
}

// recomputeWatermark implements spec §4.3's memory-accounting rule: after
// each insertion, compare the table's allocated bytes and group count to
// the configured limits and flip to lookup-only on overflow.
func (t *GroupKeyTable) recomputeWatermark() {
	if t.arena.Bytes() > t.peakBytes {
		t.peakBytes = t.arena.Bytes()
	}
	if t.memLimit > 0 && t.arena.Bytes() >= t.memLimit {
		t.lookupOnly = true
	}
	if t.ngroupLimit > 0 && int64(len(t.entries)) >= t.ngroupLimit {
		t.lookupOnly = true
	}
}

// PeakBytes reports the largest arena size this table ever reached, the
// hashagg_peak_memory telemetry of SPEC_FULL.md's supplemented feature #6.
func (t *GroupKeyTable) PeakBytes() int64 { return t.peakBytes }

// TableStats is the hash-table side of SPEC_FULL.md's supplemented-feature
// #6: the resident group count and the peak arena bytes.
type TableStats struct {
	Groups        int
	PeakEntryBytes int64
}

// Stats reports this table's telemetry.
func (t *GroupKeyTable) Stats() TableStats {
	return TableStats{Groups: len(t.entries), PeakEntryBytes: t.peakBytes}
}

// Iter returns every entry currently resident. Per spec §4.3 the iterator
// is only stable "while no inserts occur" — callers must not insert into a
// table they are draining.
func (t *GroupKeyTable) Iter() []*GroupEntry {
	out := make([]*GroupEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// Destroy frees the table's arena and backing storage (spec §4.3).
func (t *GroupKeyTable) Destroy() {
	t.arena.Destroy()
	t.entries = nil
}
