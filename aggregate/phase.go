package aggregate

import "github.com/adam8157/aggexec/row"

// PhaseController is spec.md's C5: the multi-phase state machine for
// sorted/grouping-sets/mixed strategies. It owns the input and output
// sorters between phases and enforces the forward-only transition rule of
// spec §4.2.
type PhaseController struct {
	phases  []Phase
	current int

	inputSorter  Sorter
	outputSorter Sorter
	newSorter    func() Sorter
}

// NewPhaseController builds a controller over the given phases. newSorter
// constructs a fresh Sorter for the next phase's output; it is the
// sorter_factory collaborator of spec §6.
func NewPhaseController(phases []Phase, newSorter func() Sorter) *PhaseController {
	return &PhaseController{phases: phases, current: -1, newSorter: newSorter}
}

// Current returns the active phase, or (Phase{}, false) before the first
// Advance or after the last phase completes.
func (pc *PhaseController) Current() (Phase, bool) {
	if pc.current < 0 || pc.current >= len(pc.phases) {
		return Phase{}, false
	}
	return pc.phases[pc.current], true
}

// CurrentIndex returns the 0-based index of the active phase, or -1.
func (pc *PhaseController) CurrentIndex() int { return pc.current }

// Advance performs one phase transition, spec §4.2: tear down the previous
// phase's input sorter, promote the previous output sorter to the new
// input sorter and perform-sort it, then construct a new output sorter if
// another phase follows. to must be pc.current+1, or 0/1 (a reset), or
// InternalError is raised for a non-adjacent forward jump.
func (pc *PhaseController) Advance(to int) error {
	if to != pc.current+1 && to != 0 && to != 1 {
		return internalErrorf("non-adjacent phase transition")
	}
	if pc.inputSorter != nil {
		pc.inputSorter.End()
		pc.inputSorter = nil
	}
	pc.inputSorter = pc.outputSorter
	pc.outputSorter = nil
	if pc.inputSorter != nil {
		if err := pc.inputSorter.PerformSort(); err != nil {
			return err
		}
	}
	pc.current = to
	if to+1 < len(pc.phases) {
		pc.outputSorter = pc.newSorter()
	}
	return nil
}

// InputSorter returns the sorter feeding the current phase, or nil for
// phase 0 (which reads directly from the child iterator, or is hash-only).
func (pc *PhaseController) InputSorter() Sorter { return pc.inputSorter }

// OutputSorter returns the sorter collecting rows for the next phase, or
// nil if this is the last phase.
func (pc *PhaseController) OutputSorter() Sorter { return pc.outputSorter }

// PutToOutput forwards r to the output sorter if one exists — the "tuples
// flowing through any non-terminal sorted phase are duplicated into the
// next phase's sorter" behavior of spec §4.2.
func (pc *PhaseController) PutToOutput(r row.Row) error {
	if pc.outputSorter == nil {
		return nil
	}
	return pc.outputSorter.Put(r)
}

// Reset returns the controller to its pre-Advance state (used by
// AggregationDriver.Rescan).
func (pc *PhaseController) Reset() {
	if pc.inputSorter != nil {
		pc.inputSorter.End()
	}
	if pc.outputSorter != nil {
		pc.outputSorter.End()
	}
	pc.inputSorter, pc.outputSorter = nil, nil
	pc.current = -1
}
