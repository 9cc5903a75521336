package aggfuncs

import (
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// partialResult4MinMax mirrors tidb's partialResult4MaxMinInt family
// (executor/aggfuncs/func_max_min.go / pkg/executor/aggfuncs/func_max_min_numeric.go):
// a nullable Datum holding the extreme value seen so far.
type partialResult4MinMax struct {
	val    datum.Datum
	isNull bool
}

// NewMin and NewMax build strict, NULL-initcond MIN/MAX descriptors: the
// transfn only ever runs on non-NULL input (strictness handles that), so
// the "current extreme" comparison never has to special-case NULL itself —
// it is exactly scenario S3 of spec.md §8.
func NewMin() *Descriptor { return newMinMax("min", -1) }
func NewMax() *Descriptor { return newMinMax("max", 1) }

// newMinMax builds a MIN (better = -1, keep the smaller) or MAX
// (better = 1, keep the larger) descriptor.
func newMinMax(name string, better int) *Descriptor {
	return &Descriptor{
		Name:     name,
		Strict:   true,
		ByRef:    true,
		NewState: func() any { return &partialResult4MinMax{isNull: true} },
		Trans: func(state any, args row.Row) (any, bool, error) {
			s := state.(*partialResult4MinMax)
			if s.isNull || args[0].Compare(s.val)*better > 0 {
				s.val = args[0].Clone()
				s.isNull = false
			}
			return s, false, nil
		},
		Final: func(state any, isNull bool, _ row.Row) (datum.Datum, error) {
			s := state.(*partialResult4MinMax)
			if isNull || s.isNull {
				return datum.Null(), nil
			}
			return s.val, nil
		},
		Serial: func(state any, _ bool) ([]byte, error) {
			s := state.(*partialResult4MinMax)
			var buf []byte
			buf = append(buf, boolByte(s.isNull))
			return s.val.Encode(buf), nil
		},
		Deserial: func(buf []byte) (any, bool, error) {
			isNull := buf[0] != 0
			d, _, err := datum.Decode(buf, 1)
			return &partialResult4MinMax{val: d, isNull: isNull}, false, err
		},
		Combine: func(a any, _ bool, b any, _ bool) (any, bool, error) {
			sa, sb := a.(*partialResult4MinMax), b.(*partialResult4MinMax)
			if sb.isNull {
				return sa, false, nil
			}
			if sa.isNull || sb.val.Compare(sa.val)*better > 0 {
				sa.val, sa.isNull = sb.val, false
			}
			return sa, false, nil
		},
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
