// Package datum holds the single scalar value type that flows through the
// aggregation executor: the grouping columns, the aggregate arguments, and
// the per-transition-state payloads are all Datums.
package datum

import "github.com/adam8157/aggexec/codec"

// Kind discriminates the payload carried by a Datum. It is self-describing
// so that a Datum can round-trip through Encode/Decode without an external
// schema, the way a spilled tuple must be readable without consulting the
// plan that produced it.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindString
	KindBytes
)

// Datum is a tagged union over the handful of scalar types the executor
// needs to move around. It is intentionally not an interface{} grab-bag:
// Compare and Clone need to know exactly what they're holding.
type Datum struct {
	Kind Kind
	I    int64
	F    float64
	S    string
	B    []byte
}

// Null returns the NULL datum.
func Null() Datum { return Datum{Kind: KindNull} }

// NewInt wraps an int64.
func NewInt(v int64) Datum { return Datum{Kind: KindInt64, I: v} }

// NewFloat wraps a float64.
func NewFloat(v float64) Datum { return Datum{Kind: KindFloat64, F: v} }

// NewString wraps a string.
func NewString(v string) Datum { return Datum{Kind: KindString, S: v} }

// NewBytes wraps a byte slice. The slice is not copied; callers that need
// an owned copy should call Clone.
func NewBytes(v []byte) Datum { return Datum{Kind: KindBytes, B: v} }

// IsNull reports whether d is SQL NULL.
func (d Datum) IsNull() bool { return d.Kind == KindNull }

// Clone returns a Datum whose backing storage (if any) is independently
// owned, the Go analogue of "copy into the grouping-set arena" for a
// pass-by-reference transition value: the source nodeAgg.c copies a
// detoasted datum with datumCopy before storing it past the current tuple's
// lifetime, and this is that operation for the in-process representation.
func (d Datum) Clone() Datum {
	switch d.Kind {
	case KindString:
		b := make([]byte, len(d.S))
		copy(b, d.S)
		return Datum{Kind: KindString, S: string(b)}
	case KindBytes:
		b := make([]byte, len(d.B))
		copy(b, d.B)
		return Datum{Kind: KindBytes, B: b}
	default:
		return d
	}
}

// Size estimates the in-memory footprint of d in bytes, used for the hash
// table's memory-watermark accounting (spec §4.3).
func (d Datum) Size() int64 {
	switch d.Kind {
	case KindString:
		return int64(len(d.S)) + 16
	case KindBytes:
		return int64(len(d.B)) + 16
	default:
		return 24
	}
}

// Compare orders two Datums of the same Kind. NULL sorts before every
// non-NULL value, and Compare between differing non-NULL Kinds is
// undefined (callers only ever compare Datums produced by the same
// expression, so this is never reached in practice).
func (d Datum) Compare(o Datum) int {
	if d.Kind == KindNull || o.Kind == KindNull {
		switch {
		case d.Kind == KindNull && o.Kind == KindNull:
			return 0
		case d.Kind == KindNull:
			return -1
		default:
			return 1
		}
	}
	switch d.Kind {
	case KindInt64:
		switch {
		case d.I < o.I:
			return -1
		case d.I > o.I:
			return 1
		default:
			return 0
		}
	case KindFloat64:
		switch {
		case d.F < o.F:
			return -1
		case d.F > o.F:
			return 1
		default:
			return 0
		}
	case KindString:
		switch {
		case d.S < o.S:
			return -1
		case d.S > o.S:
			return 1
		default:
			return 0
		}
	case KindBytes:
		n := len(d.B)
		if len(o.B) < n {
			n = len(o.B)
		}
		for i := 0; i < n; i++ {
			if d.B[i] != o.B[i] {
				if d.B[i] < o.B[i] {
					return -1
				}
				return 1
			}
		}
		switch {
		case len(d.B) < len(o.B):
			return -1
		case len(d.B) > len(o.B):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// Equal reports whether d and o compare equal.
func (d Datum) Equal(o Datum) bool { return d.Kind == o.Kind && d.Compare(o) == 0 }

// Encode appends the self-describing encoding of d to buf.
func (d Datum) Encode(buf []byte) []byte {
	buf = append(buf, byte(d.Kind))
	switch d.Kind {
	case KindNull:
		return buf
	case KindInt64:
		return codec.AppendInt64(buf, d.I)
	case KindFloat64:
		return codec.AppendFloat64(buf, d.F)
	case KindString:
		return codec.AppendString(buf, d.S)
	case KindBytes:
		return codec.AppendBytes(buf, d.B)
	default:
		return buf
	}
}

// Decode reads one self-describing Datum starting at pos in buf.
func Decode(buf []byte, pos int) (Datum, int, error) {
	if pos >= len(buf) {
		return Datum{}, pos, codec.ErrShortBuffer
	}
	kind := Kind(buf[pos])
	pos++
	switch kind {
	case KindNull:
		return Datum{Kind: KindNull}, pos, nil
	case KindInt64:
		v, next, err := codec.TakeInt64(buf, pos)
		return Datum{Kind: KindInt64, I: v}, next, err
	case KindFloat64:
		v, next, err := codec.TakeFloat64(buf, pos)
		return Datum{Kind: KindFloat64, F: v}, next, err
	case KindString:
		v, next, err := codec.TakeString(buf, pos)
		return Datum{Kind: KindString, S: v}, next, err
	case KindBytes:
		v, next, err := codec.TakeBytes(buf, pos)
		cp := make([]byte, len(v))
		copy(cp, v)
		return Datum{Kind: KindBytes, B: cp}, next, err
	default:
		return Datum{}, pos, codec.ErrShortBuffer
	}
}
