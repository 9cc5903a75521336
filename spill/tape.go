// Package spill implements the SpillManager component of spec.md §4.4:
// partitioned on-disk overflow for the hashed aggregation strategy, with
// recursive re-spill when a partition itself overflows memory on replay.
//
// The tape abstraction is grounded in the teacher's
// pkg/executor/aggregate spill workers, which back overflow partitions with
// chunk.ListInDisk — temp-file-backed sequential storage rewound for
// read once the write phase of a partition ends. This module plays the
// same role with plain os.File-backed "tapes" instead of tidb's chunk
// format, since this module has no chunk/column-batch layer of its own.
package spill

import (
	"io"
	"os"

	"github.com/pingcap/errors"
)

// IOError wraps a short-read/short-write failure from a spill tape, the
// one kind spec.md §7 calls out as fatal for the query.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "spill: " + e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Trace(&IOError{Op: op, Err: err})
}

// Tape is one append-then-read-sequentially stream, backed by a temp file.
// A Manager allocates one Tape per spill partition.
type Tape struct {
	file      *os.File
	writeOnly bool
}

func newTape() (*Tape, error) {
	f, err := os.CreateTemp("", "aggexec-spill-*.tape")
	if err != nil {
		return nil, ioErr("create", err)
	}
	return &Tape{file: f, writeOnly: true}, nil
}

// Write appends a record to the tape. Tapes are write-only until
// RewindForRead is called, mirroring a logical tape set's write/read
// discipline (spec §4.4's "rewind-for-read").
func (t *Tape) Write(b []byte) error {
	if _, err := t.file.Write(b); err != nil {
		return ioErr("write", err)
	}
	return nil
}

// RewindForRead seeks the tape back to the start and flips it into read
// mode. Called once per batch, after the write phase for that partition has
// finished.
func (t *Tape) RewindForRead() error {
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return ioErr("seek", err)
	}
	t.writeOnly = false
	return nil
}

// Read reads exactly n bytes from the tape, the short-read case surfacing
// as an IOError per spec §4.4.
func (t *Tape) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.file, buf); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ioErr("read", err)
	}
	return buf, nil
}

// Close releases the tape's backing temp file.
func (t *Tape) Close() error {
	name := t.file.Name()
	err := t.file.Close()
	os.Remove(name)
	if err != nil {
		return ioErr("close", err)
	}
	return nil
}

// Pool owns a set of temp-file tapes, the tape_pool collaborator of
// spec.md §6. The driver owns exactly one Pool for the lifetime of a
// hashed-strategy execution and releases it on End/Rescan (spec §5).
type Pool struct {
	tapes []*Tape
}

// NewPool allocates n tapes.
func NewPool(n int) (*Pool, error) {
	p := &Pool{tapes: make([]*Tape, 0, n)}
	for i := 0; i < n; i++ {
		t, err := newTape()
		if err != nil {
			p.Close()
			return nil, err
		}
		p.tapes = append(p.tapes, t)
	}
	return p, nil
}

// Extend appends nExtra freshly created tapes and returns their indices.
func (p *Pool) Extend(nExtra int) ([]int, error) {
	idx := make([]int, 0, nExtra)
	for i := 0; i < nExtra; i++ {
		t, err := newTape()
		if err != nil {
			return idx, err
		}
		p.tapes = append(p.tapes, t)
		idx = append(idx, len(p.tapes)-1)
	}
	return idx, nil
}

// Tape returns the i'th tape.
func (p *Pool) Tape(i int) *Tape { return p.tapes[i] }

// Close releases every tape in the pool.
func (p *Pool) Close() error {
	var first error
	for _, t := range p.tapes {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.tapes = nil
	return first
}
