package scheduler

import (
	"testing"

	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

func newCase(xdir string, np int) *testcase.Case {
	n := np
	return testcase.New(&testspec.Spec{ExecuteDir: xdir, RelPath: xdir, Name: xdir, NP: n})
}

func TestPopRejectsEverythingWhenMaxNPIsZero(t *testing.T) {
	// spec.md §8 scenario: backlog.pop(constraint={maxnp:0}) returns nil
	// even if tests exist.
	b := New(0, nil)
	b.Insert(newCase("a", 4))
	b.Sort(SortByRuntime)

	if tc := b.Pop(&Constraint{MaxNP: 0}); tc != nil {
		t.Fatalf("expected nil pop under maxnp=0, got %v", tc.ID())
	}
}

func TestLongestFirstWithPromotion(t *testing.T) {
	// spec.md §8 scenario 4: (np=4,rt=10), (np=2,rt=100), (np=8,rt=5),
	// platform total 4. First pop returns np=4; then np=2; np=8 is
	// rejected by size until the backlog is polled with no constraint
	// (system idle), at which point promotion returns it.
	four := newCase("four", 4)
	four.Status.Runtime = 10
	two := newCase("two", 2)
	two.Status.Runtime = 100
	eight := newCase("eight", 8)
	eight.Status.Runtime = 5

	b := New(0, nil)
	b.Insert(four)
	b.Insert(two)
	b.Insert(eight)
	b.Sort(SortByRuntime)

	if got := b.Pop(&Constraint{MaxNP: 4}); got != four {
		t.Fatalf("expected first pop to return the np=4 test, got %v", got)
	}
	if got := b.Pop(&Constraint{MaxNP: 4}); got != two {
		t.Fatalf("expected second pop to return the np=2 test, got %v", got)
	}
	if got := b.Pop(&Constraint{MaxNP: 4}); got != nil {
		t.Fatalf("expected np=8 test to be rejected by size, got %v", got)
	}
	if got := b.Pop(nil); got != eight {
		t.Fatalf("expected promotion to return the np=8 test when idle, got %v", got)
	}
}

func TestSortIsStableOnTies(t *testing.T) {
	a := newCase("a", 4)
	a.Status.Runtime = 10
	c := newCase("c", 4)
	c.Status.Runtime = 10
	b := New(0, nil)
	b.Insert(a)
	b.Insert(c)
	b.Sort(SortByRuntime)

	order := b.Iterate()
	if order[0] != a || order[1] != c {
		t.Fatal("expected insertion order preserved among exact ties")
	}
}

func TestPopSkipsBlockedDependency(t *testing.T) {
	blocked := newCase("blocked", 1)
	blocked.AddDependency(testcase.NewUnresolved("blocker"))
	ready := newCase("ready", 1)

	b := New(0, nil)
	b.Insert(blocked)
	b.Insert(ready)
	b.Sort(SortByRuntime)

	if got := b.Pop(&Constraint{MaxNP: 10}); got != ready {
		t.Fatalf("expected the blocked test to be skipped in favor of ready, got %v", got)
	}
}
