package aggfuncs

import (
	"github.com/adam8157/aggexec/codec"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// partialResult4Sum mirrors tidb's partialResult4SumFloat64 in
// executor/aggfuncs/partial_result_func.go: a running sum plus a count of
// non-NULL rows seen, the latter needed to tell "sum of nothing" (NULL)
// apart from "sum of zeros" (0).
type partialResult4Sum struct {
	val             float64
	notNullRowCount int64
}

// NewSum builds the descriptor for SUM(expr). SUM's transfn is strict: a
// NULL argument leaves the running state untouched, and with no explicit
// initcond the state starts as "no transition value yet" until the first
// non-NULL row (spec §3's strict/NULL-initcond invariant, exercised by
// scenario S3's min() but identical in shape for sum).
func NewSum() *Descriptor {
	return &Descriptor{
		Name:     "sum",
		Strict:   true,
		NewState: func() any { return &partialResult4Sum{} },
		Trans: func(state any, args row.Row) (any, bool, error) {
			s := state.(*partialResult4Sum)
			v, err := toFloat(args[0])
			if err != nil {
				return s, false, err
			}
			s.val += v
			s.notNullRowCount++
			return s, false, nil
		},
		Final: func(state any, isNull bool, _ row.Row) (datum.Datum, error) {
			s := state.(*partialResult4Sum)
			if isNull || s.notNullRowCount == 0 {
				return datum.Null(), nil
			}
			return datum.NewFloat(s.val), nil
		},
		Serial: func(state any, _ bool) ([]byte, error) {
			s := state.(*partialResult4Sum)
			buf := codec.AppendFloat64(nil, s.val)
			return codec.AppendInt64(buf, s.notNullRowCount), nil
		},
		Deserial: func(buf []byte) (any, bool, error) {
			val, pos, err := codec.TakeFloat64(buf, 0)
			if err != nil {
				return nil, false, err
			}
			n, _, err := codec.TakeInt64(buf, pos)
			return &partialResult4Sum{val: val, notNullRowCount: n}, false, err
		},
		Combine: func(a any, _ bool, b any, _ bool) (any, bool, error) {
			sa, sb := a.(*partialResult4Sum), b.(*partialResult4Sum)
			sa.val += sb.val
			sa.notNullRowCount += sb.notNullRowCount
			return sa, false, nil
		},
	}
}

func toFloat(d datum.Datum) (float64, error) {
	switch d.Kind {
	case datum.KindInt64:
		return float64(d.I), nil
	case datum.KindFloat64:
		return d.F, nil
	default:
		return 0, nil
	}
}
