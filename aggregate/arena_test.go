package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaTrackAccumulates(t *testing.T) {
	a := NewArena()
	a.Track(10)
	a.Track(5)
	require.Equal(t, int64(15), a.Bytes())
}

func TestArenaResetFiresCallbacksAndZeroes(t *testing.T) {
	a := NewArena()
	a.Track(100)
	fired := 0
	a.RegisterCallback(func() { fired++ })
	a.RegisterCallback(func() { fired++ })
	a.Reset()
	require.Equal(t, 2, fired)
	require.Equal(t, int64(0), a.Bytes())

	// callbacks don't re-fire on a second reset with nothing registered
	a.Reset()
	require.Equal(t, 2, fired)
}

func TestArenaDestroyBehavesLikeReset(t *testing.T) {
	a := NewArena()
	a.Track(50)
	a.Destroy()
	require.Equal(t, int64(0), a.Bytes())
}
