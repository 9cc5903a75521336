package aggregate

import "sort"

// GroupingSet is an ordered list of grouping-column indices, spec.md §3's
// data model entry of the same name. The empty GroupingSet (len 0)
// represents the "grand total" level of a ROLLUP/CUBE.
type GroupingSet []int

// Strategy selects how a Phase is executed.
type Strategy int

const (
	StrategyPlain Strategy = iota
	StrategySorted
	StrategyHashed
)

func (s Strategy) String() string {
	switch s {
	case StrategyPlain:
		return "plain"
	case StrategySorted:
		return "sorted"
	case StrategyHashed:
		return "hashed"
	default:
		return "unknown"
	}
}

// Phase is a contiguous run of grouping sets sharing one strategy and (for
// sorted phases) one sort prefix, spec.md §3. Phase 0 is always reserved
// for hashed grouping sets; phases 1..N are sorted, most-specific grouping
// set listed first within the phase.
type Phase struct {
	Strategy     Strategy
	GroupingSets []GroupingSet
	// SortPrefix is the column list the phase's input must be sorted by;
	// empty for StrategyPlain and StrategyHashed.
	SortPrefix []int
}

// BuildPhases partitions an arbitrary list of grouping sets (a ROLLUP
// chain, a CUBE expansion, or an explicit GROUPING SETS list — see
// SPEC_FULL.md's supplemented-feature #1) into a hash phase and zero or
// more sorted phases. hashEligible reports whether a given grouping set may
// live in the hashed phase 0; sets that are not hash-eligible (because the
// aggregate list contains a DISTINCT/ORDER BY per-aggregate aggregate,
// rejected statically for hashed per spec §4.5) are grouped into sorted
// phases by shared, longest-first sort prefix.
func BuildPhases(sets []GroupingSet, hashEligible func(GroupingSet) bool) []Phase {
	var hashSets, sortedSets []GroupingSet
	for _, s := range sets {
		if hashEligible(s) {
			hashSets = append(hashSets, s)
		} else {
			sortedSets = append(sortedSets, s)
		}
	}

	var phases []Phase
	if len(hashSets) > 0 {
		phases = append(phases, Phase{Strategy: StrategyHashed, GroupingSets: hashSets})
	}

	// Sort grouping sets longest-first so that, within one sorted phase,
	// the most specific set is listed first (spec §4.1's tie-break rule).
	sort.SliceStable(sortedSets, func(i, j int) bool { return len(sortedSets[i]) > len(sortedSets[j]) })

	// Group sorted sets by shared prefix: a simple, faithful rendition of
	// "a phase owns a family of grouping sets sharing a sort prefix" is to
	// bucket by the set with the longest length seen so far that every
	// later set's columns form a prefix of. For the common ROLLUP/CUBE
	// case (every set is a prefix or suffix truncation of the full column
	// list) a single greedy pass suffices.
	for len(sortedSets) > 0 {
		lead := sortedSets[0]
		phase := Phase{Strategy: StrategySorted, GroupingSets: []GroupingSet{lead}, SortPrefix: lead}
		rest := sortedSets[1:]
		var remaining []GroupingSet
		for _, s := range rest {
			if isPrefixOf(s, lead) {
				phase.GroupingSets = append(phase.GroupingSets, s)
			} else {
				remaining = append(remaining, s)
			}
		}
		phases = append(phases, phase)
		sortedSets = remaining
	}
	return phases
}

func isPrefixOf(shorter, longer []int) bool {
	if len(shorter) > len(longer) {
		return false
	}
	for i := range shorter {
		if shorter[i] != longer[i] {
			return false
		}
	}
	return true
}
