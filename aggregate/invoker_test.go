package aggregate

import (
	"testing"

	"github.com/adam8157/aggexec/aggfuncs"
	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
	"github.com/stretchr/testify/require"
)

func rawStateDescriptor() *aggfuncs.Descriptor {
	return &aggfuncs.Descriptor{
		Name:     "raw",
		NewState: func() any { return &struct{ n int64 }{} },
		Trans:    func(state any, _ row.Row) (any, bool, error) { return state, false, nil },
		Final:    func(state any, _ bool, _ row.Row) (datum.Datum, error) { return datum.NewInt(0), nil },
	}
}

// TestFinalizePartial_PropagatesDatumTransValue exercises the serializer-free
// branch of finalizePartial's partial/combine-partial split: when a
// transition state happens to already be a datum.Datum (no custom struct
// wrapping it), it is the real accumulated value, not a placeholder.
func TestFinalizePartial_PropagatesDatumTransValue(t *testing.T) {
	d := &PerAggDescriptor{Name: "raw", Func: rawStateDescriptor(), SplitMode: SplitPartial}
	inv := NewTransitionInvoker([]*PerAggDescriptor{d}, NewArena())
	ts := &PerTransState{TransValue: datum.NewInt(42), TransIsNull: false}

	got, err := inv.Finalize(d, ts, nil)
	require.NoError(t, err)
	require.Equal(t, int64(42), got.I)
}

// TestFinalizePartial_ErrorsWithoutPortableEncoding exercises finalizePartial's
// error path: no Serial function configured and the transition state is a
// custom struct, not a Datum, so there is genuinely no portable encoding to
// hand back, and the invoker must say so instead of returning a placeholder.
func TestFinalizePartial_ErrorsWithoutPortableEncoding(t *testing.T) {
	d := &PerAggDescriptor{Name: "raw", Func: rawStateDescriptor(), SplitMode: SplitPartial}
	inv := NewTransitionInvoker([]*PerAggDescriptor{d}, NewArena())
	ts := &PerTransState{TransValue: &struct{ n int64 }{n: 1}, TransIsNull: false}

	_, err := inv.Finalize(d, ts, nil)
	require.Error(t, err)
}

// TestFinalizePartial_NullTransValue exercises finalizePartial's NULL
// short-circuit: a group that never saw a qualifying row finalizes to NULL
// even with no serialize function configured.
func TestFinalizePartial_NullTransValue(t *testing.T) {
	d := &PerAggDescriptor{Name: "raw", Func: rawStateDescriptor(), SplitMode: SplitPartial}
	inv := NewTransitionInvoker([]*PerAggDescriptor{d}, NewArena())
	ts := &PerTransState{NoTransValue: true, TransIsNull: true}

	got, err := inv.Finalize(d, ts, nil)
	require.NoError(t, err)
	require.True(t, got.IsNull())
}
