// Package scheduler implements the TestBacklog ready-queue and the
// TestExecList in-process pool control loop (spec.md §4.5).
package scheduler

import (
	"sort"

	"github.com/sandialabs/vvtest/pkg/testcase"
)

// SortMode selects the key TestBacklog.Sort orders by.
type SortMode int

const (
	// SortByRuntime orders descending by (np, runtime estimate); used for
	// pool execution, longest first among the largest np buckets.
	SortByRuntime SortMode = iota
	// SortByTimeout orders descending by (np, timeout); used for batch
	// packing.
	SortByTimeout
)

// RuntimeEstimator returns the best available runtime estimate for a
// case, consulted only under SortByRuntime.
type RuntimeEstimator func(tc *testcase.Case) float64

// Constraint gates which backlog entries Pop may return.
type Constraint struct {
	// MaxNP is the processor ceiling; entries whose np exceeds MaxNP are
	// skipped. A nil Constraint (see Pop) means "no ceiling, promote
	// anything" — the system-idle promotion case.
	MaxNP int
}

type entry struct {
	tc       *testcase.Case
	np       int
	nd       int
	key      float64 // runtime estimate or timeout, depending on sort mode
	inserted int     // original insertion index, for stable-sort tie-breaking
}

// Backlog is an ordered queue of ready TestCases awaiting resources
// (spec.md §4.5).
type Backlog struct {
	entries   []entry
	nodeSize  int
	estimate  RuntimeEstimator
	nextIndex int
}

// New returns an empty Backlog. nodeSize is forwarded to
// testspec.Spec.Size when computing each entry's np; estimate supplies
// runtime estimates for SortByRuntime.
func New(nodeSize int, estimate RuntimeEstimator) *Backlog {
	return &Backlog{nodeSize: nodeSize, estimate: estimate}
}

// Insert appends a ready TestCase to the backlog (spec.md §4.5: "append").
func (b *Backlog) Insert(tc *testcase.Case) {
	np, nd := tc.Spec.Size(b.nodeSize)
	b.entries = append(b.entries, entry{
		tc:       tc,
		np:       np,
		nd:       nd,
		inserted: b.nextIndex,
	})
	b.nextIndex++
}

// Sort stably reorders the backlog descending by the chosen mode's key:
// within equal (np, key), insertion order is preserved (spec.md §4.5
// ordering guarantee).
func (b *Backlog) Sort(mode SortMode) {
	for i := range b.entries {
		e := &b.entries[i]
		switch mode {
		case SortByTimeout:
			e.key = float64(e.tc.Spec.Timeout)
		default:
			e.key = estimatedRuntime(e.tc, b.estimate)
		}
	}
	sort.SliceStable(b.entries, func(i, j int) bool {
		a, c := b.entries[i], b.entries[j]
		if a.np != c.np {
			return a.np > c.np
		}
		return a.key > c.key
	})
}

func estimatedRuntime(tc *testcase.Case, estimate RuntimeEstimator) float64 {
	if tc.Status.Runtime > 0 {
		return tc.Status.Runtime
	}
	if estimate != nil {
		return estimate(tc)
	}
	return 0
}

// Pop scans from a binary-searched cutoff index (the first entry whose
// np no longer exceeds constraint.MaxNP, given entries are
// np-descending) and returns the first unblocked entry at or past that
// cutoff, or nil if none qualifies. A nil constraint imposes no np
// ceiling at all — the promote-when-idle case (spec.md §4.5 step 2).
func (b *Backlog) Pop(constraint *Constraint) *testcase.Case {
	start := 0
	if constraint != nil {
		start = sort.Search(len(b.entries), func(i int) bool {
			return b.entries[i].np <= constraint.MaxNP
		})
	}

	for i := start; i < len(b.entries); i++ {
		if constraint != nil && b.entries[i].np > constraint.MaxNP {
			continue
		}
		tc := b.entries[i].tc
		if tc.IsBlocked() {
			continue
		}
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		return tc
	}
	return nil
}

// Consume drains and returns every remaining entry in current order.
func (b *Backlog) Consume() []*testcase.Case {
	out := make([]*testcase.Case, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.tc
	}
	b.entries = nil
	return out
}

// Iterate returns a non-destructive snapshot of the current order.
func (b *Backlog) Iterate() []*testcase.Case {
	out := make([]*testcase.Case, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.tc
	}
	return out
}

// Len reports how many entries remain.
func (b *Backlog) Len() int { return len(b.entries) }
