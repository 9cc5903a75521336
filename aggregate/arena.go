package aggregate

// Arena is the Go rendering of spec.md's C9 MemoryArenas component.
// PostgreSQL's memory contexts let nodeAgg.c reset a whole scope's
// allocations in one call and register cleanup callbacks that fire on that
// reset; Go's GC makes the allocation-freeing half of that moot, but the
// *byte accounting* and *callback-on-reset* halves are still load-bearing:
// the memory watermark in GroupKeyTable depends on accounting, and
// AggRegisterCallback (spec §6) depends on the callback hook.
type Arena struct {
	bytes     int64
	callbacks []func()
}

// NewArena creates an empty arena.
func NewArena() *Arena { return &Arena{} }

// Track records n additional bytes as allocated within this arena.
func (a *Arena) Track(n int64) { a.bytes += n }

// Bytes reports the arena's current byte accounting.
func (a *Arena) Bytes() int64 { return a.bytes }

// RegisterCallback registers fn to run on the next Reset or Destroy, the Go
// analogue of AggRegisterCallback (spec §6): "fires on arena reset/destroy,
// not on error paths" — callers that need cleanup-on-error must use defer
// at the Go call site instead, since this module doesn't unwind through a
// PostgreSQL-style subtransaction abort path.
func (a *Arena) RegisterCallback(fn func()) { a.callbacks = append(a.callbacks, fn) }

// Reset fires every registered callback and zeroes the byte count, the
// per-group-boundary operation the sorted/plain loop performs (spec §4.1:
// "reset per-output arena").
func (a *Arena) Reset() {
	cbs := a.callbacks
	a.callbacks = nil
	a.bytes = 0
	for _, cb := range cbs {
		cb()
	}
}

// Destroy is Reset plus making the arena unusable for further Track calls
// until reused; for this Go implementation the two are identical since
// there is no backing allocation to free. It exists as a distinct method
// so call sites read the way nodeAgg.c's MemoryContextDelete sites do.
func (a *Arena) Destroy() { a.Reset() }
