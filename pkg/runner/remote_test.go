package runner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanExitMarkerParsesTrailingValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	if err := os.WriteFile(path, []byte("output\nSubcommand exit: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	exit, ok := scanExitMarker(path)
	if !ok || exit != "0" {
		t.Fatalf("expected exit 0, got %q ok=%v", exit, ok)
	}
}

func TestScanExitMarkerAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	if err := os.WriteFile(path, []byte("still running\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := scanExitMarker(path); ok {
		t.Fatal("expected no marker to be found")
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's a test")
	want := `'it'\''s a test'`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBackgroundCommandIncludesTimeoutWatchdog(t *testing.T) {
	cmd := backgroundCommand([]string{"run.sh"}, "/tmp/log", "", 30)
	if !contains(cmd, "sleep 30") {
		t.Fatalf("expected timeout watchdog in command: %s", cmd)
	}
	if !contains(cmd, "Subcommand exit") {
		t.Fatalf("expected exit marker echo in command: %s", cmd)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
