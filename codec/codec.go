// Package codec provides the low-level byte encoding primitives shared by
// the aggregate function partial-result serializers and the spill tape
// record format. It mirrors the style of a fixed-width little-endian
// encoder/decoder pair per Go type, the same shape as a spill serialization
// helper: one Append/Take function pair per primitive type, each
// taking (or returning) the buffer position explicitly rather than hiding
// it behind an io.Writer.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/pingcap/errors"
)

// ErrShortBuffer is returned when a Take* call runs past the end of
// the supplied buffer.
var ErrShortBuffer = errors.New("codec: short buffer")

// AppendBool appends a single byte encoding v to buf.
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendInt64 appends the little-endian encoding of v to buf.
func AppendInt64(buf []byte, v int64) []byte {
	return AppendUint64(buf, uint64(v))
}

// AppendUint64 appends the little-endian encoding of v to buf.
func AppendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendUint32 appends the little-endian encoding of v to buf.
func AppendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendFloat64 appends the IEEE-754 bit pattern of v to buf.
func AppendFloat64(buf []byte, v float64) []byte {
	return AppendUint64(buf, math.Float64bits(v))
}

// AppendString appends a length-prefixed string to buf.
func AppendString(buf []byte, v string) []byte {
	buf = AppendUint64(buf, uint64(len(v)))
	return append(buf, v...)
}

// AppendBytes appends a length-prefixed byte slice to buf.
func AppendBytes(buf []byte, v []byte) []byte {
	buf = AppendUint64(buf, uint64(len(v)))
	return append(buf, v...)
}

// TakeBool reads a bool starting at pos, returning the value and the
// position immediately after it.
func TakeBool(buf []byte, pos int) (bool, int, error) {
	if pos+1 > len(buf) {
		return false, pos, errors.Trace(ErrShortBuffer)
	}
	return buf[pos] != 0, pos + 1, nil
}

// TakeInt64 reads an int64 starting at pos.
func TakeInt64(buf []byte, pos int) (int64, int, error) {
	v, next, err := TakeUint64(buf, pos)
	return int64(v), next, err
}

// TakeUint64 reads a uint64 starting at pos.
func TakeUint64(buf []byte, pos int) (uint64, int, error) {
	if pos+8 > len(buf) {
		return 0, pos, errors.Trace(ErrShortBuffer)
	}
	return binary.LittleEndian.Uint64(buf[pos : pos+8]), pos + 8, nil
}

// TakeUint32 reads a uint32 starting at pos.
func TakeUint32(buf []byte, pos int) (uint32, int, error) {
	if pos+4 > len(buf) {
		return 0, pos, errors.Trace(ErrShortBuffer)
	}
	return binary.LittleEndian.Uint32(buf[pos : pos+4]), pos + 4, nil
}

// TakeFloat64 reads a float64 starting at pos.
func TakeFloat64(buf []byte, pos int) (float64, int, error) {
	bits, next, err := TakeUint64(buf, pos)
	if err != nil {
		return 0, pos, err
	}
	return math.Float64frombits(bits), next, nil
}

// TakeString reads a length-prefixed string starting at pos.
func TakeString(buf []byte, pos int) (string, int, error) {
	n, next, err := TakeUint64(buf, pos)
	if err != nil {
		return "", pos, err
	}
	end := next + int(n)
	if end > len(buf) {
		return "", pos, errors.Trace(ErrShortBuffer)
	}
	return string(buf[next:end]), end, nil
}

// TakeBytes reads a length-prefixed byte slice starting at pos. The
// returned slice aliases buf.
func TakeBytes(buf []byte, pos int) ([]byte, int, error) {
	n, next, err := TakeUint64(buf, pos)
	if err != nil {
		return nil, pos, err
	}
	end := next + int(n)
	if end > len(buf) {
		return nil, pos, errors.Trace(ErrShortBuffer)
	}
	return buf[next:end], end, nil
}
