package aggfuncs

import (
	"strings"

	"github.com/adam8157/aggexec/codec"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
)

// partialResult4GroupConcat mirrors tidb's basePartialResult4GroupConcat
// (pkg/executor/aggfuncs/func_group_concat.go): an accumulation buffer plus
// the separator and a flag for whether anything has been appended yet (so
// the separator isn't written before the first value).
type partialResult4GroupConcat struct {
	buf  strings.Builder
	sep  string
	any  bool
}

// NewGroupConcat builds GROUP_CONCAT(expr SEPARATOR sep). Its own transfn is
// non-strict at the Descriptor level — NULL arguments are simply skipped —
// because any DISTINCT/ORDER BY collapsing happens upstream, in
// TransitionInvoker's per-aggregate sorter drain (spec §4.5), before a
// value ever reaches this transfn.
func NewGroupConcat(sep string) *Descriptor {
	return &Descriptor{
		Name:   "group_concat",
		Strict: false,
		NewState: func() any {
			return &partialResult4GroupConcat{sep: sep}
		},
		Trans: func(state any, args row.Row) (any, bool, error) {
			s := state.(*partialResult4GroupConcat)
			if args[0].IsNull() {
				return s, false, nil
			}
			if s.any {
				s.buf.WriteString(s.sep)
			}
			s.buf.WriteString(datumToString(args[0]))
			s.any = true
			return s, false, nil
		},
		Final: func(state any, isNull bool, _ row.Row) (datum.Datum, error) {
			s := state.(*partialResult4GroupConcat)
			if isNull || !s.any {
				return datum.Null(), nil
			}
			return datum.NewString(s.buf.String()), nil
		},
		Serial: func(state any, _ bool) ([]byte, error) {
			s := state.(*partialResult4GroupConcat)
			buf := codec.AppendString(nil, s.buf.String())
			buf = codec.AppendString(buf, s.sep)
			return codec.AppendBool(buf, s.any), nil
		},
		Deserial: func(buf []byte) (any, bool, error) {
			text, pos, err := codec.TakeString(buf, 0)
			if err != nil {
				return nil, false, err
			}
			sep, pos2, err := codec.TakeString(buf, pos)
			if err != nil {
				return nil, false, err
			}
			any_, _, err := codec.TakeBool(buf, pos2)
			s := &partialResult4GroupConcat{sep: sep, any: any_}
			s.buf.WriteString(text)
			return s, false, err
		},
		Combine: func(a any, _ bool, b any, _ bool) (any, bool, error) {
			sa, sb := a.(*partialResult4GroupConcat), b.(*partialResult4GroupConcat)
			if !sb.any {
				return sa, false, nil
			}
			if sa.any {
				sa.buf.WriteString(sa.sep)
			}
			sa.buf.WriteString(sb.buf.String())
			sa.any = true
			return sa, false, nil
		},
	}
}

func datumToString(d datum.Datum) string {
	switch d.Kind {
	case datum.KindString:
		return d.S
	case datum.KindBytes:
		return string(d.B)
	case datum.KindInt64:
		return itoa(d.I)
	case datum.KindFloat64:
		return ftoa(d.F)
	default:
		return ""
	}
}
