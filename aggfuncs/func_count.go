package aggfuncs

import (
	"github.com/adam8157/aggexec/codec"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// partialResult4Count holds a running row count, the Go analogue of
// tidb's partialResult4Count (= int64) in executor/aggfuncs/func_count.go.
type partialResult4Count struct {
	n int64
}

// NewCount builds the descriptor for COUNT(expr). Unlike most aggregates,
// COUNT's transfn is never strict — a NULL input simply doesn't advance the
// counter, matching count's transfn `int8inc_any` which accepts NULL.
func NewCount() *Descriptor {
	return &Descriptor{
		Name:     "count",
		Strict:   false,
		NewState: func() any { return &partialResult4Count{} },
		Trans: func(state any, args row.Row) (any, bool, error) {
			s := state.(*partialResult4Count)
			if len(args) == 0 || !args[0].IsNull() {
				s.n++
			}
			return s, false, nil
		},
		Final: func(state any, _ bool, _ row.Row) (datum.Datum, error) {
			return datum.NewInt(state.(*partialResult4Count).n), nil
		},
		Serial: func(state any, _ bool) ([]byte, error) {
			return codec.AppendInt64(nil, state.(*partialResult4Count).n), nil
		},
		Deserial: func(buf []byte) (any, bool, error) {
			n, _, err := codec.TakeInt64(buf, 0)
			return &partialResult4Count{n: n}, false, err
		},
		Combine: func(a any, _ bool, b any, _ bool) (any, bool, error) {
			s := a.(*partialResult4Count)
			s.n += b.(*partialResult4Count).n
			return s, false, nil
		},
	}
}
