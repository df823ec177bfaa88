// Package testspec holds the immutable TestSpec description of a single
// test instance and its mutable TestStatus execution record.
package testspec

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
)

// DependencyPattern holds only the optional result expression (e.g.
// "pass or diff") of a declared dependency, gating whether the dependee
// satisfies the dependency once it is done; the wildcard pattern itself
// is carried by Dependency.
type DependencyPattern struct {
	WordExpression string
}

// Dependency pairs a declared wildcard pattern with its optional result
// expression.
type Dependency struct {
	Pattern        string
	WordExpression string
}

// Spec is the read-only-after-construction description of one test
// instance, as produced by the (out of scope) test-source parser.
type Spec struct {
	SourceRoot     string
	RelPath        string
	Name           string
	ExecuteDir     string
	Parameters     map[string]string
	Keywords       sets.String
	Dependencies   []Dependency
	PlatformExprs  []string
	OptionExprs    []string
	ParameterExprs []string
	FileSearch     []string
	RuntimeExpr    string
	Timeout        int // seconds; 0 means "no timeout" per spec.md §8.

	Analyze  bool
	Baseline bool

	NP      int
	NDevice *int
	NNode   *int
}

// ID is the unique identity of a TestSpec: its execute-directory.
func (s *Spec) ID() string { return s.ExecuteDir }

// String renders a human-readable identifier for logging.
func (s *Spec) String() string {
	return fmt.Sprintf("%s(%s)", s.Name, s.ExecuteDir)
}

// Size returns (np, nd) the way original_source/libvvtest/testcase.py's
// compute_test_size does: np is read from the np/nnode parameters (0 if
// neither is declared), raised to satisfy nnode*nodeSize when a node
// size is known, then floored at 1; nd defaults to 0.
func (s *Spec) Size(nodeSize int) (np, nd int) {
	np = 0
	if s.NP > 0 {
		np = s.NP
	}
	nn := 0
	if s.NNode != nil {
		nn = *s.NNode
		if nn < 1 {
			nn = 1
		}
	}

	if nodeSize > 0 {
		switch {
		case np > 0 && nn > 0:
			if nn*nodeSize > np {
				np = nn * nodeSize
			}
		case nn > 0:
			np = nn * nodeSize
		}
	}
	if np < 1 {
		np = 1
	}

	if s.NDevice != nil && *s.NDevice > 0 {
		nd = *s.NDevice
	}
	return np, nd
}
