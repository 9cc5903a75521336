// Package row defines the tuple representation the executor pulls from its
// child iterator, plus the grouping-key helpers built on top of it: a
// grouping key is nothing but a prefix of a Row's columns, hashed and
// compared the way PerGroupState lookups do in the source executor.
package row

import (
	"github.com/adam8157/aggexec/datum"
	"github.com/twmb/murmur3"
)

// Row is one tuple flowing through the executor.
type Row []datum.Datum

// Clone returns a Row whose Datums are independently owned, for copying a
// row into a grouping-set arena or onto a spill tape buffer that outlives
// the source tuple.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for i, d := range r {
		out[i] = d.Clone()
	}
	return out
}

// Project returns a new Row containing only the given column indices, in
// order — used to build a grouping-set's key tuple from a wide input row.
func (r Row) Project(cols []int) Row {
	out := make(Row, len(cols))
	for i, c := range cols {
		out[i] = r[c]
	}
	return out
}

// EqualPrefix reports whether a and b agree on their first n columns, a
// group-boundary equality predicate in the sense of spec §4.1. The aggregate
// package's sorted/plain loop does not call it; it compares projected
// grouping keys with Equal.
func EqualPrefix(a, b Row, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether a and b have the same columns and values.
func Equal(a, b Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Key is an encoded grouping-key tuple plus its hash, the unit that
// GroupKeyTable and SpillManager both operate on.
type Key struct {
	Bytes []byte
	Hash  uint32
}

// BuildKey projects r onto cols, encodes the result self-describingly, and
// hashes it with murmur3 — the same hash family the teacher's parallel
// partial worker uses (murmur3.Sum32) to route spilled group keys to
// partitions and to final workers.
func BuildKey(r Row, cols []int, buf []byte) Key {
	buf = buf[:0]
	for _, c := range cols {
		buf = r[c].Encode(buf)
	}
	h := murmur3.Sum32(buf)
	out := make([]byte, len(buf))
	copy(out, buf)
	return Key{Bytes: out, Hash: h}
}

// Encode serializes r as a self-describing byte sequence, used for the
// minimal-tuple representation written to a spill tape (spec §4.4).
func Encode(r Row) []byte {
	buf := make([]byte, 0, 16*len(r))
	for _, d := range r {
		buf = d.Encode(buf)
	}
	return buf
}

// Decode reads back a Row previously produced by Encode. Because each
// Datum is self-describing, no external schema is required — matching the
// spec's choice to let the spill format be internal to this module.
func Decode(buf []byte, ncols int) (Row, error) {
	out := make(Row, 0, ncols)
	pos := 0
	for pos < len(buf) {
		d, next, err := datum.Decode(buf, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
		pos = next
	}
	return out, nil
}

// HashOf computes the murmur3 hash of r projected onto cols, without
// retaining the encoded buffer; it equals the Hash BuildKey returns for the
// same columns. Spill replay does not re-hash: it uses the hash stored with
// each spilled record.
func HashOf(r Row, cols []int) uint32 {
	var buf []byte
	for _, c := range cols {
		buf = r[c].Encode(buf)
	}
	return murmur3.Sum32(buf)
}
