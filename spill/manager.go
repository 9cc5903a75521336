package spill

import (
	"io"
	"math"

	"github.com/adam8157/aggexec/codec"
	"github.com/adam8157/aggexec/row"
	"go.uber.org/zap"
)

// Tuning constants from spec.md §4.4 / §6.
const (
	PartitionFactor = 1.5
	MinPartitions   = 4
	MaxPartitions   = 256
)

// Manager partitions overflow tuples by hash bits and writes each
// partition to its own tape, producing a FIFO of Batches once the overflow
// episode ends — the Go shape of spec.md's C4 SpillManager.
type Manager struct {
	pool           *Pool
	partitionBits  uint
	parentBits     uint
	groupingSetID  int
	buffers        [][]byte // per-partition accumulated record bytes, flushed on Finalize
	tupleCounts    []int
	logger         *zap.Logger

	diskBytesWritten int64
	batchesCreated    int
}

// ChoosePartitionCount implements spec.md §4.4's sizing formula: target =
// ceil(partitionFactor * G * E / M), rounded up to a power of two, clamped
// to [minPartitions, maxPartitions], and further limited so that
// partition-file buffering never exceeds a quarter of M (the count is
// rounded down to a power of two for that limit). The minPartitions floor
// takes precedence over the buffering limit. A zero/negative
// tuning knob falls back to its package default (PartitionFactor,
// MinPartitions, MaxPartitions) — the caller-configurable half of spec
// §6's HASH_PARTITION_FACTOR/HASH_MIN_PARTITIONS/HASH_MAX_PARTITIONS.
func ChoosePartitionCount(estGroups int64, perEntryBytes int64, memBudget int64, perPartitionBufferBytes int64, partitionFactor float64, minPartitions, maxPartitions int) int {
	if memBudget <= 0 {
		memBudget = 1
	}
	if partitionFactor <= 0 {
		partitionFactor = PartitionFactor
	}
	if minPartitions <= 0 {
		minPartitions = MinPartitions
	}
	if maxPartitions <= 0 {
		maxPartitions = MaxPartitions
	}
	target := int64(math.Ceil(float64(estGroups) * float64(perEntryBytes) * partitionFactor / float64(memBudget)))
	n := nextPow2(target)
	if n < minPartitions {
		n = minPartitions
	}
	if n > maxPartitions {
		n = maxPartitions
	}
	maxByBuffer := (memBudget / 4) / maxInt64(perPartitionBufferBytes, 1)
	if maxByBuffer >= int64(minPartitions) {
		mb := 1
		for int64(mb)*2 <= maxByBuffer {
			mb <<= 1
		}
		if mb < n {
			n = mb
		}
	}
	if n < minPartitions {
		n = minPartitions
	}
	return n
}

func nextPow2(v int64) int {
	if v < 1 {
		return 1
	}
	n := 1
	for int64(n) < v {
		n <<= 1
	}
	return n
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// NewManager creates a Manager with the given partition count, bit depth
// already consumed by the parent batch (0 for a top-level spill), and the
// grouping set this spill belongs to — a batch always belongs to exactly
// one grouping set (spec §4.6: "a batch belongs to exactly one grouping
// set, so refills touch exactly one table at a time").
func NewManager(nPartitions int, parentBits uint, groupingSetID int, logger *zap.Logger) (*Manager, error) {
	pool, err := NewPool(nPartitions)
	if err != nil {
		return nil, err
	}
	bits := bitsFor(nPartitions)
	if parentBits+bits > 32 {
		bits = 32 - parentBits
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pool:          pool,
		partitionBits: bits,
		parentBits:    parentBits,
		groupingSetID: groupingSetID,
		buffers:       make([][]byte, nPartitions),
		tupleCounts:   make([]int, nPartitions),
		logger:        logger,
	}, nil
}

func bitsFor(n int) uint {
	b := uint(0)
	for (1 << b) < n {
		b++
	}
	return b
}

// PartitionOf implements the partition-selection formula of spec §4.4:
// partition = (h << parentBits) >> (32 - partitionBits).
func (m *Manager) PartitionOf(hash uint32) int {
	if m.partitionBits == 0 {
		return 0
	}
	return int((hash << m.parentBits) >> (32 - m.partitionBits))
}

// SpillRow writes one tuple into its partition's tape buffer in the
// [hash:uint32][tuple_len:uint32][tuple_bytes] record format of spec §4.4.
func (m *Manager) SpillRow(r row.Row, hash uint32) error {
	p := m.PartitionOf(hash)
	rec := row.Encode(r)
	buf := m.buffers[p]
	buf = codec.AppendUint32(buf, hash)
	buf = codec.AppendUint32(buf, uint32(len(rec)))
	buf = append(buf, rec...)
	m.buffers[p] = buf
	m.tupleCounts[p]++
	return nil
}

// Finalize flushes every non-empty partition's buffer to its tape and
// returns one Batch per non-empty partition, FIFO order (spec §4.4:
// "each non-empty partition becomes a new SpillBatch appended to a FIFO").
func (m *Manager) Finalize() ([]*Batch, error) {
	var batches []*Batch
	for p, buf := range m.buffers {
		if len(buf) == 0 {
			continue
		}
		tape := m.pool.Tape(p)
		if err := tape.Write(buf); err != nil {
			return nil, err
		}
		m.diskBytesWritten += int64(len(buf))
		if err := tape.RewindForRead(); err != nil {
			return nil, err
		}
		batches = append(batches, &Batch{
			tape:          tape,
			TupleCount:    m.tupleCounts[p],
			InputBitDepth: m.parentBits + m.partitionBits,
			GroupingSetID: m.groupingSetID,
		})
		m.batchesCreated++
		m.buffers[p] = nil
	}
	m.logger.Debug("spill episode finalized",
		zap.Int("batches", len(batches)), zap.Int("grouping_set", m.groupingSetID))
	return batches, nil
}

// Close releases the manager's tape pool.
func (m *Manager) Close() error { return m.pool.Close() }

// Stats reports this manager's spill telemetry. A Manager covers one spill
// episode: the initial spill and each recursive re-spill get a fresh
// Manager, so DiskBytesWritten counts only that episode's bytes and nothing
// sums it across episodes (the per-episode choice recorded as an Open
// Question resolution in DESIGN.md / SPEC_FULL.md).
type Stats struct {
	BatchesCreated   int
	DiskBytesWritten int64
}

func (m *Manager) Stats() Stats {
	return Stats{BatchesCreated: m.batchesCreated, DiskBytesWritten: m.diskBytesWritten}
}

// Batch is one disk-resident partition awaiting replay (spec §3's
// SpillBatch). Reading a batch rewinds its tape and yields tuples plus
// their original hash until EOF.
type Batch struct {
	tape          *Tape
	TupleCount    int
	InputBitDepth uint
	GroupingSetID int
	cursor        int
}

// Next reads the next tuple off the batch's tape, returning (row, hash,
// true) on success, (nil, 0, false) at EOF.
func (b *Batch) Next() (row.Row, uint32, bool, error) {
	if b.cursor >= b.TupleCount {
		return nil, 0, false, nil
	}
	hashBuf, err := b.tape.Read(4)
	if err != nil {
		if err == io.EOF {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	hash, _, _ := codec.TakeUint32(hashBuf, 0)
	lenBuf, err := b.tape.Read(4)
	if err != nil {
		return nil, 0, false, err
	}
	n, _, _ := codec.TakeUint32(lenBuf, 0)
	tupleBuf, err := b.tape.Read(int(n))
	if err != nil {
		return nil, 0, false, err
	}
	r, err := row.Decode(tupleBuf, 0)
	if err != nil {
		return nil, 0, false, err
	}
	b.cursor++
	return r, hash, true, nil
}

// Close releases the batch's tape.
func (b *Batch) Close() error { return b.tape.Close() }
