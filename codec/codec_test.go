package codec

import "testing"

import "github.com/stretchr/testify/require"

func TestRoundTripScalars(t *testing.T) {
	var buf []byte
	buf = AppendBool(buf, true)
	buf = AppendInt64(buf, -42)
	buf = AppendUint32(buf, 7)
	buf = AppendFloat64(buf, 3.5)
	buf = AppendString(buf, "hello")
	buf = AppendBytes(buf, []byte{1, 2, 3})

	b, pos, err := TakeBool(buf, 0)
	require.NoError(t, err)
	require.True(t, b)

	i, pos, err := TakeInt64(buf, pos)
	require.NoError(t, err)
	require.Equal(t, int64(-42), i)

	u, pos, err := TakeUint32(buf, pos)
	require.NoError(t, err)
	require.Equal(t, uint32(7), u)

	f, pos, err := TakeFloat64(buf, pos)
	require.NoError(t, err)
	require.Equal(t, 3.5, f)

	s, pos, err := TakeString(buf, pos)
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	bs, pos, err := TakeBytes(buf, pos)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, bs)
	require.Equal(t, len(buf), pos)
}

func TestTakeShortBufferErrors(t *testing.T) {
	_, _, err := TakeInt64([]byte{1, 2, 3}, 0)
	require.Error(t, err)

	_, _, err = TakeString(AppendUint64(nil, 10), 0)
	require.Error(t, err)

	_, _, err = TakeBytes(AppendUint64(nil, 10), 0)
	require.Error(t, err)
}
