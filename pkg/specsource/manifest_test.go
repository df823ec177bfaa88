package specsource

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExpandsTestDefsIntoSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	content := `
root: /src/tests
tests:
  - relpath: basic/hello
    name: hello
    np: 2
    keywords: [fast, smoke]
    dependencies:
      - pattern: "setup.*"
        result: pass
  - relpath: basic/hello.np=4
    name: hello
    executedir: basic/hello.np=4
    np: 4
    analyze: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	specs, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}

	first := specs[0]
	if first.ExecuteDir != "basic/hello" {
		t.Fatalf("expected executedir to default to relpath, got %q", first.ExecuteDir)
	}
	if !first.Keywords.Has("fast") || !first.Keywords.Has("smoke") {
		t.Fatalf("expected keywords to be set, got %v", first.Keywords)
	}
	if len(first.Dependencies) != 1 || first.Dependencies[0].Pattern != "setup.*" {
		t.Fatalf("expected one dependency pattern, got %+v", first.Dependencies)
	}

	second := specs[1]
	if !second.Analyze {
		t.Fatal("expected second spec to be marked analyze")
	}
	if second.ExecuteDir != "basic/hello.np=4" {
		t.Fatalf("expected explicit executedir to be honored, got %q", second.ExecuteDir)
	}
}

func TestLoadDefaultsRootToManifestDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte("tests:\n  - relpath: a\n    name: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	specs, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if specs[0].SourceRoot != dir {
		t.Fatalf("expected root to default to %q, got %q", dir, specs[0].SourceRoot)
	}
}
