// Package testcase implements TestCase (a TestSpec bound to mutable
// status and dependency edges), TestDependency, and the
// ParameterizeAnalyzeGroups map that binds an analyze test to its
// parameterized siblings.
package testcase

import (
	"github.com/sandialabs/vvtest/pkg/testspec"
)

// Case is a TestSpec + TestStatus + dependency edges + has-dependent
// flag, as described in spec.md §3.
type Case struct {
	Spec   *testspec.Spec
	Status *testspec.Status

	deps         []*Dependency
	hasDependent bool

	// depdirs maps a satisfied dependee's execute-dir to the match
	// pattern that resolved it, exposed to the child process environment
	// at launch time.
	depdirs map[string]string
}

// New wraps a Spec in a fresh Case with zeroed Status.
func New(spec *testspec.Spec) *Case {
	return &Case{
		Spec:    spec,
		Status:  &testspec.Status{},
		depdirs: map[string]string{},
	}
}

// ID returns the execute-directory identity of this case.
func (c *Case) ID() string { return c.Spec.ID() }

// SetHasDependent marks that some other Case declared a dependency on
// this one.
func (c *Case) SetHasDependent() { c.hasDependent = true }

// HasDependent reports whether any other Case depends on this one.
func (c *Case) HasDependent() bool { return c.hasDependent }

// AddDependency records an edge to another Case. Re-adding a dependency
// with the same identity (the dependee's execute-dir id, or the match
// pattern itself when unresolved) overwrites the prior edge rather than
// duplicating it (spec.md §3 TestCase invariant).
func (c *Case) AddDependency(dep *Dependency) {
	for i, existing := range c.deps {
		if existing.Identity() == dep.Identity() {
			c.deps[i] = dep
			c.syncDepDir(dep)
			return
		}
	}
	c.deps = append(c.deps, dep)
	c.syncDepDir(dep)
}

func (c *Case) syncDepDir(dep *Dependency) {
	if dep.RanOrCouldRun() {
		if xdir := dep.Dependee.ID(); xdir != "" {
			c.depdirs[xdir] = dep.MatchPattern
		}
	}
}

// NumDependencies returns the number of dependency edges.
func (c *Case) NumDependencies() int { return len(c.deps) }

// Dependencies returns the dependency edges of this case.
func (c *Case) Dependencies() []*Dependency { return c.deps }

// IsBlocked reports whether any dependency currently blocks execution.
func (c *Case) IsBlocked() bool {
	for _, dep := range c.deps {
		if dep.IsBlocking() {
			return true
		}
	}
	return false
}

// BlockedReason returns the reason string of the first blocking
// dependency found, or "" if none blocks.
func (c *Case) BlockedReason() string {
	for _, dep := range c.deps {
		if dep.IsBlocking() {
			return dep.BlockedReason()
		}
	}
	return ""
}

// WillNeverRun reports whether any dependency can never be satisfied.
func (c *Case) WillNeverRun() bool {
	for _, dep := range c.deps {
		if dep.WillNeverRun() {
			return true
		}
	}
	return false
}

// DepDirectories returns the (matchPattern, executeDir) pairs of every
// dependency that has run or could run, for exposure to the child
// process environment.
func (c *Case) DepDirectories() []MatchDir {
	out := make([]MatchDir, 0, len(c.depdirs))
	for xdir, pattern := range c.depdirs {
		out = append(out, MatchDir{Pattern: pattern, ExecuteDir: xdir})
	}
	return out
}

// MatchDir pairs a dependency's match pattern with the resolved
// execute-directory of the dependee.
type MatchDir struct {
	Pattern    string
	ExecuteDir string
}
