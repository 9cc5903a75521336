package aggregate

import "github.com/adam8157/aggexec/row"

// ChildIterator is the driver contract consumed from an external operator,
// spec.md §6's `child.next() -> Row | end`.
type ChildIterator interface {
	Next() (row.Row, bool, error)
}

// Sorter is the sorter_factory collaborator of spec.md §6: a handle that
// accumulates rows, sorts them once told to, and is then drained in order.
// PhaseController uses one Sorter per sorted phase transition; the
// per-aggregate DISTINCT/ORDER BY machinery in TransitionInvoker uses one
// per (aggregate, group).
type Sorter interface {
	Put(row.Row) error
	PerformSort() error
	GetRow() (row.Row, bool, error)
	End()
}

// CancelToken is the cooperative cancellation collaborator of spec.md §5's
// InterruptCheck: polled at row-fetch and spill-read boundaries, never
// between two transition updates for the same row.
type CancelToken interface {
	// Check returns a non-nil error (an *InterruptError) once cancellation
	// has been requested.
	Check() error
}

// NopCancelToken never cancels, the default when a caller doesn't need
// cooperative cancellation.
type NopCancelToken struct{}

func (NopCancelToken) Check() error { return nil }
