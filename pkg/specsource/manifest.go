// Package specsource loads TestSpecs from a YAML manifest. Scanning a
// directory tree of test source files and parsing their declaration
// syntax is explicitly out of scope (spec.md §2 calls this "the
// out-of-scope parser's job"); this package is the substitute front
// door the CLI reads instead; its entries carry testspec.Spec's fields
// and are read with the same YAML library as pkg/platform/config.go.
package specsource

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/sandialabs/vvtest/pkg/testspec"
)

// Manifest is the on-disk shape of a test-source listing: a root
// directory plus one entry per test instance.
type Manifest struct {
	Root  string    `yaml:"root"`
	Tests []TestDef `yaml:"tests"`
}

// TestDef mirrors testspec.Spec's fields with YAML-friendly types
// (plain strings/slices instead of sets.String/pointers).
type TestDef struct {
	RelPath        string            `yaml:"relpath"`
	Name           string            `yaml:"name"`
	ExecuteDir     string            `yaml:"executedir"`
	Parameters     map[string]string `yaml:"parameters"`
	Keywords       []string          `yaml:"keywords"`
	Dependencies   []DependencyDef   `yaml:"dependencies"`
	PlatformExprs  []string          `yaml:"platforms"`
	OptionExprs    []string          `yaml:"options"`
	ParameterExprs []string          `yaml:"parameter_exprs"`
	FileSearch     []string          `yaml:"filesearch"`
	RuntimeExpr    string            `yaml:"runtime_expr"`
	Timeout        int               `yaml:"timeout"`
	Analyze        bool              `yaml:"analyze"`
	Baseline       bool              `yaml:"baseline"`
	NP             int               `yaml:"np"`
	NDevice        *int              `yaml:"ndevice"`
	NNode          *int              `yaml:"nnode"`
}

// DependencyDef is a declared dependency's YAML form.
type DependencyDef struct {
	Pattern        string `yaml:"pattern"`
	WordExpression string `yaml:"result"`
}

// Load reads a manifest file and expands it into TestSpecs. Each
// TestDef's ExecuteDir defaults to its RelPath when not given, matching
// the un-parameterized case.
func Load(path string) ([]*testspec.Spec, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("specsource: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("specsource: parse manifest %s: %w", path, err)
	}

	root := m.Root
	if root == "" {
		root = filepath.Dir(path)
	}

	specs := make([]*testspec.Spec, 0, len(m.Tests))
	for _, td := range m.Tests {
		xdir := td.ExecuteDir
		if xdir == "" {
			xdir = td.RelPath
		}

		deps := make([]testspec.Dependency, 0, len(td.Dependencies))
		for _, d := range td.Dependencies {
			deps = append(deps, testspec.Dependency{Pattern: d.Pattern, WordExpression: d.WordExpression})
		}

		specs = append(specs, &testspec.Spec{
			SourceRoot:     root,
			RelPath:        td.RelPath,
			Name:           td.Name,
			ExecuteDir:     xdir,
			Parameters:     td.Parameters,
			Keywords:       sets.NewString(td.Keywords...),
			Dependencies:   deps,
			PlatformExprs:  td.PlatformExprs,
			OptionExprs:    td.OptionExprs,
			ParameterExprs: td.ParameterExprs,
			FileSearch:     td.FileSearch,
			RuntimeExpr:    td.RuntimeExpr,
			Timeout:        td.Timeout,
			Analyze:        td.Analyze,
			Baseline:       td.Baseline,
			NP:             td.NP,
			NDevice:        td.NDevice,
			NNode:          td.NNode,
		})
	}
	return specs, nil
}
