package testcase

import (
	"strings"

	"github.com/sandialabs/vvtest/pkg/testspec"
)

// Dependency is one edge from a dependent Case to a dependee Case,
// carrying the wildcard pattern that matched and an optional result
// word-expression gating satisfaction.
type Dependency struct {
	Dependee       *Case
	MatchPattern   string
	WordExpression string

	// unresolved is set for a declared dependency pattern that matched no
	// known execute-dir; it is recorded as a deferred failure rather than
	// raised immediately (spec.md §4.4).
	unresolved bool
}

// NewUnresolved constructs a dependency edge that could never be matched
// against a known execute-dir: it always blocks and will never run.
func NewUnresolved(pattern string) *Dependency {
	return &Dependency{MatchPattern: pattern, unresolved: true}
}

// IsBlocking reports whether this dependency currently prevents its
// dependent from executing: the dependee has not finished, or finished
// with a result that fails the word expression.
func (d *Dependency) IsBlocking() bool {
	if d.unresolved {
		return true
	}
	if d.Dependee == nil {
		return true
	}
	if !d.Dependee.Status.IsDone() {
		return true
	}
	return !d.resultSatisfiesExpression()
}

// BlockedReason describes why this dependency blocks, for reporting.
func (d *Dependency) BlockedReason() string {
	if d.unresolved {
		return "dependency pattern " + d.MatchPattern + " matched no test"
	}
	if d.Dependee == nil {
		return "dependency unresolved"
	}
	if !d.Dependee.Status.IsDone() {
		return "waiting on " + d.Dependee.ID()
	}
	return "dependency result of " + d.Dependee.ID() + " does not satisfy " + d.WordExpression
}

// WillNeverRun reports whether this dependency can never be satisfied:
// either it was never resolved to a dependee, or the dependee itself
// will never run.
func (d *Dependency) WillNeverRun() bool {
	if d.unresolved {
		return true
	}
	if d.Dependee == nil {
		return true
	}
	if d.Dependee.Status.IsSkipped() {
		return true
	}
	return d.Dependee.WillNeverRun()
}

// Identity returns the key AddDependency uses to recognize a re-added
// edge to the same dependee: the dependee's execute-dir id when
// resolved, or the match pattern itself for an unresolved dependency
// (mirrors libvvtest's TestDependency.getTestID()).
func (d *Dependency) Identity() string {
	if d.Dependee == nil {
		return d.MatchPattern
	}
	return d.Dependee.ID()
}

// RanOrCouldRun reports whether the dependee is a real, resolvable Case
// (used to decide whether to expose its execute-dir to the dependent).
func (d *Dependency) RanOrCouldRun() bool {
	return !d.unresolved && d.Dependee != nil
}

// GetMatchDirectory returns the (pattern, executeDir) pair for this
// dependency, or ("", "") if unresolved.
func (d *Dependency) GetMatchDirectory() (string, string) {
	if d.Dependee == nil {
		return "", ""
	}
	return d.MatchPattern, d.Dependee.ID()
}

// resultSatisfiesExpression evaluates the word expression against the
// dependee's recorded result. An empty expression means "done is
// enough"; otherwise the expression is a space/"or"-separated list of
// acceptable result words (e.g. "pass or diff"), matching the keyword
// expression vocabulary used elsewhere in the engine.
func (d *Dependency) resultSatisfiesExpression() bool {
	if strings.TrimSpace(d.WordExpression) == "" {
		return true
	}
	want := string(d.Dependee.Status.Result)
	for _, word := range strings.Fields(strings.ReplaceAll(d.WordExpression, "or", " ")) {
		if strings.EqualFold(word, want) {
			return true
		}
	}
	return false
}
