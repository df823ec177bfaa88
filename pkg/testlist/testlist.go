// Package testlist implements the TestList registry (execute-dir ->
// TestCase) and the on-disk result-merge file format described in
// spec.md §4.10.
package testlist

import (
	"sync"

	"github.com/sandialabs/vvtest/pkg/testcase"
)

// List is the authoritative execute-dir -> TestCase registry.
type List struct {
	mu    sync.Mutex
	byDir map[string]*testcase.Case
	order []string // insertion order, for deterministic iteration/writes

	activeCount int
}

// New returns an empty List.
func New() *List {
	return &List{byDir: map[string]*testcase.Case{}, activeCount: -1}
}

// Add registers a Case, keyed by its execute-directory. Re-adding the
// same xdir overwrites the prior entry in place (position preserved).
func (l *List) Add(tc *testcase.Case) {
	l.mu.Lock()
	defer l.mu.Unlock()

	xdir := tc.ID()
	if _, exists := l.byDir[xdir]; !exists {
		l.order = append(l.order, xdir)
	}
	l.byDir[xdir] = tc
	l.invalidateActiveCount()
}

// Lookup implements testcase.Registry.
func (l *List) Lookup(xdir string) (*testcase.Case, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tc, ok := l.byDir[xdir]
	return tc, ok
}

// AllExecuteDirs implements testcase.Registry.
func (l *List) AllExecuteDirs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Tests returns every registered Case in insertion order.
func (l *List) Tests() []*testcase.Case {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*testcase.Case, 0, len(l.order))
	for _, xdir := range l.order {
		out = append(out, l.byDir[xdir])
	}
	return out
}

// ActiveCount returns the number of non-skipped tests, cached until the
// next Add/skip-state invalidation (spec.md §2 component 8: "the
// active-count cache").
func (l *List) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activeCount >= 0 {
		return l.activeCount
	}
	n := 0
	for _, xdir := range l.order {
		if !l.byDir[xdir].Status.IsSkipped() {
			n++
		}
	}
	l.activeCount = n
	return n
}

// InvalidateActiveCount forces the next ActiveCount() call to recompute,
// e.g. after a filter pass changes skip reasons in bulk.
func (l *List) InvalidateActiveCount() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidateActiveCount()
}

func (l *List) invalidateActiveCount() {
	l.activeCount = -1
}
