package batch

import (
	"strings"
	"testing"
)

func TestHMSFormatUnderAndOverAnHour(t *testing.T) {
	if got := hmsFormat(65); got != "1:05" {
		t.Fatalf("expected 1:05, got %s", got)
	}
	if got := hmsFormat(3725); got != "1:02:05" {
		t.Fatalf("expected 1:02:05, got %s", got)
	}
}

func TestComputeNumNodesAccountsForDevicesPerNode(t *testing.T) {
	if n := computeNumNodes(8, 0, 4, 0); n != 2 {
		t.Fatalf("expected 2 nodes for 8 procs at 4 ppn, got %d", n)
	}
	if n := computeNumNodes(2, 2, 16, 1); n != 2 {
		t.Fatalf("expected 2 nodes when devices-per-node=1 needs 2 devices, got %d", n)
	}
}

func TestHeaderIncludesQoSWhenConfigured(t *testing.T) {
	s := NewSLURM(4, 0, nil, "debug")
	hdr := s.Header(4, 0, 120, "/tmp/out.log")
	if !strings.Contains(hdr, "--qos=debug") {
		t.Fatalf("expected qos directive in header: %s", hdr)
	}
	if !strings.Contains(hdr, "--time=2:00") {
		t.Fatalf("expected formatted walltime in header: %s", hdr)
	}
}

func TestSubmitParsesJobIDFromSbatchOutput(t *testing.T) {
	s := NewSLURM(4, 0, nil, "")
	s.Run = func(argv []string, workdir string) (string, error) {
		return "Submitted batch job 291041\n", nil
	}
	id, err := s.Submit("script.sh", "/work", "/work/out.log", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "291041" {
		t.Fatalf("expected job id 291041, got %q", id)
	}
}

func TestSubmitFailsWhenOutputUnparseable(t *testing.T) {
	s := NewSLURM(4, 0, nil, "")
	s.Run = func(argv []string, workdir string) (string, error) {
		return "sbatch: error: invalid partition\n", nil
	}
	if _, err := s.Submit("script.sh", "/work", "/work/out.log", "", ""); err == nil {
		t.Fatal("expected an error when the job id cannot be parsed")
	}
}

func TestQueryMapsSqueueStateCodes(t *testing.T) {
	s := NewSLURM(4, 0, nil, "")
	s.Run = func(argv []string, workdir string) (string, error) {
		return "100 R\n101 PD\n102 CG\n", nil
	}
	states, err := s.Query([]string{"100", "101", "102", "103"})
	if err != nil {
		t.Fatal(err)
	}
	if states["100"] != "running" || states["101"] != "pending" || states["102"] != "" || states["103"] != "" {
		t.Fatalf("unexpected state mapping: %+v", states)
	}
}

func TestCancelInvokesScancelWithJobID(t *testing.T) {
	s := NewSLURM(4, 0, nil, "")
	var seen []string
	s.Run = func(argv []string, workdir string) (string, error) {
		seen = argv
		return "", nil
	}
	if err := s.Cancel("42"); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "scancel" || seen[1] != "42" {
		t.Fatalf("unexpected scancel invocation: %+v", seen)
	}
}
