package testlist

import (
	"testing"

	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

func newCase(xdir, name string) *testcase.Case {
	return testcase.New(&testspec.Spec{ExecuteDir: xdir, RelPath: name, Name: name})
}

func TestAddPreservesInsertionOrderAndOverwrites(t *testing.T) {
	l := New()
	a := newCase("a", "a")
	b := newCase("b", "b")
	l.Add(a)
	l.Add(b)

	a2 := newCase("a", "a")
	a2.Status.MarkDone(a2.Status.EndTime, testspec.ResultPass, "0")
	l.Add(a2)

	dirs := l.AllExecuteDirs()
	if len(dirs) != 2 || dirs[0] != "a" || dirs[1] != "b" {
		t.Fatalf("expected order [a b], got %v", dirs)
	}
	got, ok := l.Lookup("a")
	if !ok || got != a2 {
		t.Fatal("re-Add should overwrite the entry in place")
	}
}

func TestActiveCountCachesUntilInvalidated(t *testing.T) {
	l := New()
	a := newCase("a", "a")
	b := newCase("b", "b")
	l.Add(a)
	l.Add(b)

	if n := l.ActiveCount(); n != 2 {
		t.Fatalf("expected 2 active, got %d", n)
	}

	b.Status.Skip("platform", false)
	if n := l.ActiveCount(); n != 2 {
		t.Fatalf("expected cached 2 (stale), got %d", n)
	}

	l.InvalidateActiveCount()
	if n := l.ActiveCount(); n != 1 {
		t.Fatalf("expected 1 active after invalidation, got %d", n)
	}
}

func TestEmptyListActiveCountIsZero(t *testing.T) {
	l := New()
	if n := l.ActiveCount(); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}
