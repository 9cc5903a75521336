package aggfuncs

import (
	"github.com/adam8157/aggexec/codec"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// partialResult4Avg mirrors tidb's partialResult4AvgFloat64
// (pkg/executor/aggfuncs/spill_serialize_helper.go): sum and count kept
// separately so AVG can combine partials the same way SUM does.
type partialResult4Avg struct {
	sum   float64
	count int64
}

// NewAvg builds the descriptor for AVG(expr), strict with no initcond, so
// an all-NULL group produces NULL rather than a division by zero.
func NewAvg() *Descriptor {
	return &Descriptor{
		Name:     "avg",
		Strict:   true,
		NewState: func() any { return &partialResult4Avg{} },
		Trans: func(state any, args row.Row) (any, bool, error) {
			s := state.(*partialResult4Avg)
			v, err := toFloat(args[0])
			if err != nil {
				return s, false, err
			}
			s.sum += v
			s.count++
			return s, false, nil
		},
		Final: func(state any, isNull bool, _ row.Row) (datum.Datum, error) {
			s := state.(*partialResult4Avg)
			if isNull || s.count == 0 {
				return datum.Null(), nil
			}
			return datum.NewFloat(s.sum / float64(s.count)), nil
		},
		Serial: func(state any, _ bool) ([]byte, error) {
			s := state.(*partialResult4Avg)
			buf := codec.AppendFloat64(nil, s.sum)
			return codec.AppendInt64(buf, s.count), nil
		},
		Deserial: func(buf []byte) (any, bool, error) {
			sum, pos, err := codec.TakeFloat64(buf, 0)
			if err != nil {
				return nil, false, err
			}
			count, _, err := codec.TakeInt64(buf, pos)
			return &partialResult4Avg{sum: sum, count: count}, false, err
		},
		Combine: func(a any, _ bool, b any, _ bool) (any, bool, error) {
			sa, sb := a.(*partialResult4Avg), b.(*partialResult4Avg)
			sa.sum += sb.sum
			sa.count += sb.count
			return sa, false, nil
		},
	}
}
