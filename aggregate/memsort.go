package aggregate

import (
	"sort"

	"github.com/adam8157/aggexec/row"
)

// MemorySorter is a default, in-process Sorter: it buffers every row in a
// slice and sorts it with sort.Slice once told to. It exists so this module
// is usable without a caller-supplied external sorter (spec.md §6 treats
// sorter_factory as a consumed collaborator, but callers exercising the
// sorted/mixed strategy in-process need something to pass as one); a
// caller fronting a real disk-backed sort only needs to implement Sorter
// and is never required to use this type.
type MemorySorter struct {
	cols []int
	rows []row.Row
	pos  int
}

// NewMemorySorter builds a Sorter that orders rows by the given column
// prefix (a sorted phase's SortPrefix).
func NewMemorySorter(cols []int) *MemorySorter {
	return &MemorySorter{cols: cols}
}

func (s *MemorySorter) Put(r row.Row) error {
	s.rows = append(s.rows, r.Clone())
	return nil
}

func (s *MemorySorter) PerformSort() error {
	sort.SliceStable(s.rows, func(i, j int) bool {
		return compareByCols(s.rows[i], s.rows[j], s.cols) < 0
	})
	s.pos = 0
	return nil
}

func (s *MemorySorter) GetRow() (row.Row, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	r := s.rows[s.pos]
	s.pos++
	return r, true, nil
}

func (s *MemorySorter) End() {
	s.rows = nil
	s.pos = 0
}

func compareByCols(a, b row.Row, cols []int) int {
	for _, c := range cols {
		if v := a[c].Compare(b[c]); v != 0 {
			return v
		}
	}
	return 0
}
