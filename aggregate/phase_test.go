package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func allHashEligible(GroupingSet) bool { return true }
func noneHashEligible(GroupingSet) bool { return false }

func TestBuildPhasesAllHashed(t *testing.T) {
	sets := []GroupingSet{{0}, {0, 1}, {}}
	phases := BuildPhases(sets, allHashEligible)
	require.Len(t, phases, 1)
	require.Equal(t, StrategyHashed, phases[0].Strategy)
	require.Len(t, phases[0].GroupingSets, 3)
}

func TestBuildPhasesRollupSharesOneSortedPhase(t *testing.T) {
	sets := []GroupingSet{{0, 1}, {0}, {}}
	phases := BuildPhases(sets, noneHashEligible)
	require.Len(t, phases, 1)
	require.Equal(t, StrategySorted, phases[0].Strategy)
	require.Equal(t, []int{0, 1}, phases[0].SortPrefix)
	require.Len(t, phases[0].GroupingSets, 3)
}

func TestBuildPhasesCubeSplitsByPrefix(t *testing.T) {
	// A CUBE(a,b) expansion: {a,b}, {a}, {b}, {}. {b} is not a prefix of
	// {a,b} so it cannot share that phase's sort order and must start its
	// own.
	sets := []GroupingSet{{0, 1}, {0}, {1}, {}}
	phases := BuildPhases(sets, noneHashEligible)
	require.Len(t, phases, 2)
	require.Equal(t, []int{0, 1}, phases[0].SortPrefix)
	require.Len(t, phases[0].GroupingSets, 3) // {0,1}, {0}, {}
	require.Equal(t, []int{1}, phases[1].SortPrefix)
	require.Len(t, phases[1].GroupingSets, 1) // {1}
}

func TestBuildPhasesMixedHashAndSorted(t *testing.T) {
	sets := []GroupingSet{{0, 1}, {0}, {}}
	hashEligible := func(s GroupingSet) bool { return len(s) == 2 }
	phases := BuildPhases(sets, hashEligible)
	require.Len(t, phases, 2)
	require.Equal(t, StrategyHashed, phases[0].Strategy)
	require.Equal(t, StrategySorted, phases[1].Strategy)
}

func TestPhaseControllerAdvanceRejectsNonAdjacentJump(t *testing.T) {
	phases := []Phase{
		{Strategy: StrategySorted, SortPrefix: []int{0}},
		{Strategy: StrategySorted, SortPrefix: []int{}},
	}
	pc := NewPhaseController(phases, func() Sorter { return NewMemorySorter(nil) })
	require.NoError(t, pc.Advance(0))
	require.Error(t, pc.Advance(2))
}

func TestPhaseControllerAdvanceChainsSorters(t *testing.T) {
	phases := []Phase{
		{Strategy: StrategySorted, SortPrefix: []int{0, 1}},
		{Strategy: StrategySorted, SortPrefix: []int{0}},
	}
	pc := NewPhaseController(phases, func() Sorter { return NewMemorySorter(phases[1].SortPrefix) })
	require.NoError(t, pc.Advance(0))
	require.Nil(t, pc.InputSorter())
	require.NotNil(t, pc.OutputSorter())

	require.NoError(t, pc.Advance(1))
	require.NotNil(t, pc.InputSorter())
	require.Nil(t, pc.OutputSorter())
}
