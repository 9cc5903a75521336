package aggregate

import "go.uber.org/zap"

// Tuning defaults named in spec.md §4.4 / §6.
const (
	DefaultHashPartitionFactor = 1.5
	DefaultHashMinPartitions   = 4
	DefaultHashMaxPartitions   = 256
	// DefaultHashPartitionMem is the default per-partition buffer size that
	// spill.ChoosePartitionCount assumes when it limits partition-file
	// buffering to a quarter of the memory budget. spill.Manager does not
	// cap what it buffers:
	// each partition's records stay in memory until Finalize.
	DefaultHashPartitionMem = 64 * 1024
	// DefaultEntrySize estimates a GroupEntry's footprint for sizing the
	// hash table and the spill partition count when the caller hasn't
	// measured an actual one yet.
	DefaultEntrySize = 64
)

// Config carries the options of spec.md §6's configuration table. It is a
// plain struct, not functional options, matching the teacher's session
// variable style (work_mem, hashagg_mem_overflow, etc. are just fields a
// caller sets before Init).
type Config struct {
	// WorkMem is the byte budget for the hash table set (spec §6); divided
	// among concurrently active tables when more than one grouping set
	// hashes at once.
	WorkMem int64
	// HashAggMemOverflow disables the memory/group caps entirely: no
	// spilling ever happens, matching hashagg_mem_overflow=on.
	HashAggMemOverflow bool
	// HashNGroupsLimit caps the number of groups a single GroupKeyTable may
	// hold before flipping into lookup-only mode, independent of bytes.
	// Zero means unlimited (bytes are still enforced).
	HashNGroupsLimit int64

	HashPartitionFactor float64
	HashMinPartitions   int
	HashMaxPartitions   int
	HashPartitionMem    int64

	Logger *zap.Logger
}

// WithDefaults fills in zero-valued fields with the package defaults,
// returning a new Config (the input is never mutated).
func (c Config) WithDefaults() Config {
	out := c
	if out.HashPartitionFactor == 0 {
		out.HashPartitionFactor = DefaultHashPartitionFactor
	}
	if out.HashMinPartitions == 0 {
		out.HashMinPartitions = DefaultHashMinPartitions
	}
	if out.HashMaxPartitions == 0 {
		out.HashMaxPartitions = DefaultHashMaxPartitions
	}
	if out.HashPartitionMem == 0 {
		out.HashPartitionMem = DefaultHashPartitionMem
	}
	if out.WorkMem == 0 {
		out.WorkMem = 4 << 20
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}
