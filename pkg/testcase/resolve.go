package testcase

import (
	"path"
	"sort"

	"github.com/danwakefield/fnmatch"
)

// Registry is the minimal view of the known execute-directories a
// dependency resolver needs: xdir -> Case lookup plus an ordered list of
// all known xdirs (for deterministic wildcard search order).
type Registry interface {
	Lookup(xdir string) (*Case, bool)
	AllExecuteDirs() []string
}

// ConnectAnalyzeDependencies adds an edge from the analyze Case ac to
// every non-analyze sibling in its group (spec.md §4.4: analyze tests
// auto-depend on their parameterized siblings).
func ConnectAnalyzeDependencies(ac *Case, gm *GroupMap) {
	for _, sibling := range gm.Siblings(ac) {
		dep := &Dependency{Dependee: sibling, MatchPattern: "*"}
		ac.AddDependency(dep)
		sibling.SetHasDependent()
	}
}

// ConnectDeclaredDependencies resolves tc's declared wildcard dependency
// patterns against the registry of known execute-directories, using the
// four-tier priority search of spec.md §4.4:
//
//  1. dirname(this_xdir)/P
//  2. dirname(this_xdir)/*/P
//  3. P
//  4. *P
//
// The first non-empty match list wins; ties within a tier all become
// edges. A pattern matching nothing becomes a deferred "never run"
// dependency rather than a construction error.
func ConnectDeclaredDependencies(tc *Case, reg Registry) {
	thisDir := path.Dir(tc.Spec.ExecuteDir)

	for _, decl := range tc.Spec.Dependencies {
		candidates := buildPriorityPatterns(thisDir, decl.Pattern)

		var matched []string
		for _, candidate := range candidates {
			matched = matchExecuteDirs(reg, candidate)
			if len(matched) > 0 {
				break
			}
		}

		if len(matched) == 0 {
			tc.AddDependency(NewUnresolved(decl.Pattern))
			continue
		}

		sort.Strings(matched)
		for _, xdir := range matched {
			if xdir == tc.Spec.ExecuteDir {
				// never create an edge back to ourselves
				continue
			}
			dependee, ok := reg.Lookup(xdir)
			if !ok {
				continue
			}
			dep := &Dependency{
				Dependee:       dependee,
				MatchPattern:   decl.Pattern,
				WordExpression: decl.WordExpression,
			}
			tc.AddDependency(dep)
			dependee.SetHasDependent()
		}
	}
}

// buildPriorityPatterns returns the four candidate glob patterns, in
// priority order, for a dependency pattern declared by a test whose
// execute-dir's parent directory is thisDir.
func buildPriorityPatterns(thisDir, pattern string) []string {
	return []string{
		path.Join(thisDir, pattern),
		path.Join(thisDir, "*", pattern),
		pattern,
		"*" + pattern,
	}
}

func matchExecuteDirs(reg Registry, globPattern string) []string {
	var out []string
	for _, xdir := range reg.AllExecuteDirs() {
		if fnmatch.Match(globPattern, xdir, 0) {
			out = append(out, xdir)
		}
	}
	return out
}
