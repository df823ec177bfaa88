package testcase

import (
	"testing"

	"github.com/sandialabs/vvtest/pkg/testspec"
)

type memRegistry struct {
	byDir map[string]*Case
}

func newMemRegistry(cases ...*Case) *memRegistry {
	r := &memRegistry{byDir: map[string]*Case{}}
	for _, c := range cases {
		r.byDir[c.ID()] = c
	}
	return r
}

func (r *memRegistry) Lookup(xdir string) (*Case, bool) {
	c, ok := r.byDir[xdir]
	return c, ok
}

func (r *memRegistry) AllExecuteDirs() []string {
	out := make([]string, 0, len(r.byDir))
	for xdir := range r.byDir {
		out = append(out, xdir)
	}
	return out
}

func newCase(xdir, name string, deps ...testspec.Dependency) *Case {
	return New(&testspec.Spec{
		ExecuteDir:   xdir,
		RelPath:      xdir,
		Name:         name,
		Dependencies: deps,
	})
}

func TestDependencyPriorityResolution(t *testing.T) {
	// Scenario 2 from spec.md §8: alpha/beta and alpha/gamma/beta both
	// exist; a test at alpha/x depends on pattern "beta". Priority 1
	// (dirname(this)/beta = alpha/beta) must win over alpha/gamma/beta.
	alphaBeta := newCase("alpha/beta", "beta")
	alphaGammaBeta := newCase("alpha/gamma/beta", "beta")
	x := newCase("alpha/x", "x", testspec.Dependency{Pattern: "beta"})

	reg := newMemRegistry(alphaBeta, alphaGammaBeta, x)
	ConnectDeclaredDependencies(x, reg)

	if x.NumDependencies() != 1 {
		t.Fatalf("expected exactly 1 dependency, got %d", x.NumDependencies())
	}
	if got := x.Dependencies()[0].Dependee.ID(); got != "alpha/beta" {
		t.Fatalf("resolved dependee = %q, want alpha/beta (priority 1 over priority 2)", got)
	}
}

func TestUnresolvedDependencyIsDeferredFailure(t *testing.T) {
	x := newCase("x", "x", testspec.Dependency{Pattern: "nope*"})
	reg := newMemRegistry(x)
	ConnectDeclaredDependencies(x, reg)

	if !x.WillNeverRun() {
		t.Fatal("dependency matching nothing should mark WillNeverRun")
	}
	if !x.IsBlocked() {
		t.Fatal("unresolved dependency should block")
	}
}

func TestAnalyzeAutoDependsOnSiblings(t *testing.T) {
	p1 := New(&testspec.Spec{ExecuteDir: "t.np=1", RelPath: "t", Name: "t"})
	p2 := New(&testspec.Spec{ExecuteDir: "t.np=2", RelPath: "t", Name: "t"})
	analyze := New(&testspec.Spec{ExecuteDir: "t.analyze", RelPath: "t", Name: "t", Analyze: true})

	gm := NewGroupMap([]*Case{p1, p2, analyze})
	ConnectAnalyzeDependencies(analyze, gm)

	if analyze.NumDependencies() != 2 {
		t.Fatalf("expected analyze to depend on 2 siblings, got %d", analyze.NumDependencies())
	}
	if !p1.HasDependent() || !p2.HasDependent() {
		t.Fatal("siblings should be marked has-dependent")
	}
}

func TestAddDependencyOverwritesSameDependee(t *testing.T) {
	dep1 := newCase("dep", "dep")
	tc := newCase("tc", "tc")

	tc.AddDependency(&Dependency{Dependee: dep1, MatchPattern: "dep"})
	tc.AddDependency(&Dependency{Dependee: dep1, MatchPattern: "dep", WordExpression: "pass"})

	if tc.NumDependencies() != 1 {
		t.Fatalf("re-adding same dependee should overwrite, got %d deps", tc.NumDependencies())
	}
	if tc.Dependencies()[0].WordExpression != "pass" {
		t.Fatal("overwritten edge should carry the new word expression")
	}
}

func TestAddDependencyDoesNotPanicOnMultipleUnresolvedDependencies(t *testing.T) {
	tc := newCase("tc", "tc")

	tc.AddDependency(NewUnresolved("nomatch.*"))
	tc.AddDependency(NewUnresolved("alsonomatch.*"))

	if tc.NumDependencies() != 2 {
		t.Fatalf("expected 2 distinct unresolved dependencies, got %d", tc.NumDependencies())
	}
	for _, dep := range tc.Dependencies() {
		if !dep.WillNeverRun() {
			t.Fatal("unresolved dependencies should never run")
		}
	}
}

func TestAddDependencyOverwritesSameUnresolvedPattern(t *testing.T) {
	tc := newCase("tc", "tc")

	tc.AddDependency(NewUnresolved("nomatch.*"))
	tc.AddDependency(NewUnresolved("nomatch.*"))

	if tc.NumDependencies() != 1 {
		t.Fatalf("re-adding the same unresolved pattern should overwrite, got %d deps", tc.NumDependencies())
	}
}
