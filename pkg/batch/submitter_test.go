package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

type fakeInterface struct {
	submitErr   error
	submittedID string
	states      map[string]string
}

func (f *fakeInterface) Submit(scriptPath, workdir, outfile, queue, account string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submittedID, nil
}

func (f *fakeInterface) Query(jobIDs []string) (map[string]string, error) {
	return f.states, nil
}

func (f *fakeInterface) Cancel(jobID string) error { return nil }

func TestSubmitJobWritesScriptAndTestlist(t *testing.T) {
	dir := t.TempDir()
	tc := newCase("a", 2, 30)
	job := &Job{Cases: []*testcase.Case{tc}, NP: 2, Walltime: 60}

	iface := &fakeInterface{submittedID: "12345"}
	sub := NewSubmitter(&Packer{NodeSize: 2, MaxNP: 2, Walltime: 60}, iface, ScriptOptions{
		Queue:      "normal",
		Account:    "acct",
		HarnessCmd: []string{"vvtest", "-p", "myplat"},
	})

	jobDir := filepath.Join(dir, "job0")
	if err := sub.SubmitJob(job, NewSLURM(2, 0, nil, ""), jobDir); err != nil {
		t.Fatal(err)
	}
	if job.ID != "12345" || job.State != "pending" {
		t.Fatalf("expected job to be marked pending with id 12345, got id=%q state=%q", job.ID, job.State)
	}

	scriptBytes, err := os.ReadFile(filepath.Join(jobDir, "submit.sh"))
	if err != nil {
		t.Fatal(err)
	}
	script := string(scriptBytes)
	if !strings.HasPrefix(script, "#!/bin/sh\n") {
		t.Fatalf("expected shebang at top of script: %s", script)
	}
	if !strings.Contains(script, "#SBATCH") {
		t.Fatalf("expected SLURM directives in script: %s", script)
	}
	if !strings.Contains(script, "vvtest") {
		t.Fatalf("expected harness command in script: %s", script)
	}

	if _, err := os.Stat(filepath.Join(jobDir, "testlist")); err != nil {
		t.Fatalf("expected a sub-testlist file to be written: %v", err)
	}
}

func TestSubmitJobAlertsAfterConsecutiveFailures(t *testing.T) {
	iface := &fakeInterface{submitErr: errBoom{}}
	sub := NewSubmitter(&Packer{NodeSize: 1, MaxNP: 1}, iface, ScriptOptions{})
	sub.AlertAfter = 2
	sub.RoutingKey = "routing-key"

	var alerted []string
	sub.alertClient = func(routingKey, summary string) error {
		alerted = append(alerted, summary)
		return nil
	}

	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		job := &Job{Cases: []*testcase.Case{}}
		tc := newCase("a", 1, 10)
		job.Cases = append(job.Cases, tc)
		_ = sub.SubmitJob(job, NewSLURM(1, 0, nil, ""), filepath.Join(dir, "try", string(rune('0'+i))))
	}

	if len(alerted) != 1 {
		t.Fatalf("expected exactly one alert after 2 consecutive failures, got %d", len(alerted))
	}
}

func TestPollJobsUpdatesStateFromQuery(t *testing.T) {
	iface := &fakeInterface{states: map[string]string{"1": "running", "2": ""}}
	sub := NewSubmitter(&Packer{}, iface, ScriptOptions{})

	jobs := []*Job{
		{ID: "1", State: "pending"},
		{ID: "2", State: "pending"},
	}
	if err := sub.PollJobs(jobs); err != nil {
		t.Fatal(err)
	}
	if jobs[0].State != "running" {
		t.Fatalf("expected job 1 to be running, got %q", jobs[0].State)
	}
	if !jobs[1].Done() {
		t.Fatal("expected job 2 to be done once squeue no longer lists it")
	}
}

func TestReconcileMergesResultFileIntoCases(t *testing.T) {
	dir := t.TempDir()
	tc := newCase("a", 1, 10)
	job := &Job{Cases: []*testcase.Case{}}
	job.Cases = append(job.Cases, tc)

	resultPath := filepath.Join(dir, "results")
	if err := os.WriteFile(resultPath, []byte("TEST: a Mon_Jan_01_00:00:00_2024 xtime=1.5 done pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	job.ResultFile = resultPath

	sub := NewSubmitter(&Packer{}, &fakeInterface{}, ScriptOptions{})
	if err := sub.Reconcile(job); err != nil {
		t.Fatal(err)
	}
	if tc.Status.Result != testspec.ResultPass {
		t.Fatalf("expected reconciled result to be pass, got %q", tc.Status.Result)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
