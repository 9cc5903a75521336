package aggfuncs

import (
	"testing"

	"github.com/adam8157/aggexec/datum"
	"github.com/adam8157/aggexec/row"
	"github.com/stretchr/testify/require"
)

func runTrans(t *testing.T, d *Descriptor, rows []row.Row) (any, bool) {
	t.Helper()
	state := d.NewState()
	var isNull bool
	for _, r := range rows {
		if d.Strict {
			skip := false
			for _, a := range r {
				if a.IsNull() {
					skip = true
				}
			}
			if skip {
				continue
			}
		}
		var err error
		state, isNull, err = d.Trans(state, r)
		require.NoError(t, err)
	}
	return state, isNull
}

func TestCount(t *testing.T) {
	d := NewCount()
	rows := []row.Row{{datum.NewInt(1)}, {datum.Null()}, {datum.NewInt(3)}}
	state, isNull := runTrans(t, d, rows)
	res, err := d.Final(state, isNull, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), res.I)
}

func TestSumAllNullIsNull(t *testing.T) {
	d := NewSum()
	state := d.NewState()
	res, err := d.Final(state, false, nil)
	require.NoError(t, err)
	require.True(t, res.IsNull())
}

func TestSumSerialDeserialRoundTrip(t *testing.T) {
	d := NewSum()
	rows := []row.Row{{datum.NewInt(2)}, {datum.NewInt(3)}}
	state, isNull := runTrans(t, d, rows)
	buf, err := d.Serial(state, isNull)
	require.NoError(t, err)
	decoded, isNull2, err := d.Deserial(buf)
	require.NoError(t, err)
	res, err := d.Final(decoded, isNull2, nil)
	require.NoError(t, err)
	require.Equal(t, float64(5), res.F)
}

func TestSumCombine(t *testing.T) {
	d := NewSum()
	s1, n1 := runTrans(t, d, []row.Row{{datum.NewInt(2)}})
	s2, n2 := runTrans(t, d, []row.Row{{datum.NewInt(3)}})
	merged, isNull, err := d.Combine(s1, n1, s2, n2)
	require.NoError(t, err)
	res, err := d.Final(merged, isNull, nil)
	require.NoError(t, err)
	require.Equal(t, float64(5), res.F)
}

func TestMinMax(t *testing.T) {
	rows := []row.Row{{datum.NewInt(5)}, {datum.NewInt(1)}, {datum.NewInt(9)}}
	minD := NewMin()
	state, isNull := runTrans(t, minD, rows)
	res, err := minD.Final(state, isNull, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.I)

	maxD := NewMax()
	state, isNull = runTrans(t, maxD, rows)
	res, err = maxD.Final(state, isNull, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9), res.I)
}

func TestMinMaxAllNullIsNull(t *testing.T) {
	d := NewMin()
	state := d.NewState()
	res, err := d.Final(state, false, nil)
	require.NoError(t, err)
	require.True(t, res.IsNull())
}

func TestAvg(t *testing.T) {
	d := NewAvg()
	rows := []row.Row{{datum.NewInt(2)}, {datum.NewInt(4)}, {datum.NewInt(6)}}
	state, isNull := runTrans(t, d, rows)
	res, err := d.Final(state, isNull, nil)
	require.NoError(t, err)
	require.Equal(t, float64(4), res.F)
}

func TestGroupConcat(t *testing.T) {
	d := NewGroupConcat(",")
	rows := []row.Row{{datum.NewString("a")}, {datum.Null()}, {datum.NewString("b")}}
	state, isNull := runTrans(t, d, rows)
	res, err := d.Final(state, isNull, nil)
	require.NoError(t, err)
	require.Equal(t, "a,b", res.S)
}

func TestGroupConcatCombine(t *testing.T) {
	d := NewGroupConcat(",")
	s1, n1 := runTrans(t, d, []row.Row{{datum.NewString("a")}})
	s2, n2 := runTrans(t, d, []row.Row{{datum.NewString("b")}})
	merged, isNull, err := d.Combine(s1, n1, s2, n2)
	require.NoError(t, err)
	res, err := d.Final(merged, isNull, nil)
	require.NoError(t, err)
	require.Equal(t, "a,b", res.S)
}

func TestValidateRejectsStrictCombineOverInternalType(t *testing.T) {
	d := &Descriptor{
		Name:                "bad",
		TransTypeIsInternal: true,
		Combine:             func(a any, _ bool, b any, _ bool) (any, bool, error) { return a, false, nil },
		CombineStrict:       true,
	}
	require.Error(t, d.Validate())
}
