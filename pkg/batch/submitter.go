package batch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PagerDuty/go-pagerduty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testlist"
)

// ScriptOptions configures the submit script a Submitter writes for
// each packed Job: the shebang/harness re-invocation wrapping the
// resource-manager directives produced by an Interface's header.
type ScriptOptions struct {
	WorkDir    string // not read by SubmitJob, which writes into its jobDir argument
	Queue      string
	Account    string
	HarnessCmd []string // re-entrant invocation, one sub-testlist appended per job
}

// Submitter submits already-packed Jobs through an Interface, queries
// their states one PollJobs call at a time, and reconciles each job's
// appended result log back into the master TestList (spec.md §4.9).
type Submitter struct {
	Packer   *Packer
	Iface    Interface
	Options  ScriptOptions
	PollWait time.Duration

	// AlertAfter is the number of consecutive submission failures that
	// triggers a PagerDuty alert; 0 disables alerting (NEW,
	// SPEC_FULL.md §4.9).
	AlertAfter  int
	RoutingKey  string
	alertClient func(routingKey, summary string) error

	consecutiveFailures int
}

// NewSubmitter wires a Submitter with the real PagerDuty client as its
// alert sink.
func NewSubmitter(packer *Packer, iface Interface, opts ScriptOptions) *Submitter {
	return &Submitter{
		Packer:   packer,
		Iface:    iface,
		Options:  opts,
		PollWait: 30 * time.Second,
		alertClient: func(routingKey, summary string) error {
			_, err := pagerduty.ManageEvent(pagerduty.V2Event{
				RoutingKey: routingKey,
				Action:     "trigger",
				Payload: &pagerduty.V2Payload{
					Summary:  summary,
					Source:   "vvtest-batch",
					Severity: "error",
				},
			})
			return err
		},
	}
}

// WriteScript renders job's submit script to path: a shebang, the
// Interface's directive header, then the harness command re-invoked
// against the job's own sub-testlist file.
func WriteScript(path string, header string, job *Job, harnessCmd []string, testlistPath string) error {
	var b bytes.Buffer
	b.WriteString("#!/bin/sh\n")
	b.WriteString(header)
	b.WriteString("\n\n")
	for i, arg := range harnessCmd {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(shQuote(arg))
	}
	fmt.Fprintf(&b, " %s\n", shQuote(testlistPath))
	return os.WriteFile(path, b.Bytes(), 0o755)
}

func shQuote(s string) string {
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\'' || r == '"' {
			return "'" + s + "'"
		}
	}
	return s
}

// SubmitJob writes job's script and sub-testlist, then submits it
// through the Interface. On repeated consecutive submission failure it
// raises a PagerDuty alert once AlertAfter is reached.
func (s *Submitter) SubmitJob(job *Job, slurm *SLURM, jobDir string) error {
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return errors.Wrapf(err, "batch: creating job dir %s", jobDir)
	}

	listPath := filepath.Join(jobDir, "testlist")
	lf, err := os.Create(listPath)
	if err != nil {
		return errors.Wrap(err, "batch: creating job testlist")
	}
	suffix := time.Now().Format(testlist.ResultsSuffixLayout)
	werr := testlist.WriteTestList(lf, job.Cases, suffix)
	lf.Close()
	if werr != nil {
		return errors.Wrap(werr, "batch: writing job testlist")
	}
	job.ResultFile = listPath + "." + suffix

	outfile := filepath.Join(jobDir, "batch.log")
	scriptPath := filepath.Join(jobDir, "submit.sh")
	header := slurm.Header(job.NP, job.ND, job.Walltime, outfile)
	if err := WriteScript(scriptPath, header, job, s.Options.HarnessCmd, listPath); err != nil {
		return errors.Wrap(err, "batch: writing submit script")
	}

	id, err := s.Iface.Submit(scriptPath, jobDir, outfile, s.Options.Queue, s.Options.Account)
	if err != nil {
		s.consecutiveFailures++
		s.maybeAlert(err)
		return errors.Wrap(err, "batch: submission failed")
	}
	s.consecutiveFailures = 0
	job.ID = id
	job.State = "pending"
	return nil
}

func (s *Submitter) maybeAlert(cause error) {
	if s.AlertAfter <= 0 || s.RoutingKey == "" || s.alertClient == nil {
		return
	}
	if s.consecutiveFailures < s.AlertAfter {
		return
	}
	summary := fmt.Sprintf("vvtest batch submission failed %d times in a row: %v", s.consecutiveFailures, cause)
	if err := s.alertClient(s.RoutingKey, summary); err != nil {
		logrus.WithError(err).Warn("batch: failed to raise PagerDuty alert")
	}
}

// PollJobs refreshes State on every not-yet-done job in jobs via a
// single Query call.
func (s *Submitter) PollJobs(jobs []*Job) error {
	var ids []string
	for _, j := range jobs {
		if j.ID != "" && j.State != "" {
			ids = append(ids, j.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	states, err := s.Iface.Query(ids)
	if err != nil {
		return errors.Wrap(err, "batch: querying job states")
	}
	for _, j := range jobs {
		if st, ok := states[j.ID]; ok {
			j.State = st
		}
	}
	return nil
}

// Reconcile reads a finished job's appended result log and merges its
// outcomes back into the in-memory Cases, resolving each TEST: line's
// execute-dir against the job's own case list (spec.md §4.10's
// reconciliation half of batch mode).
func (s *Submitter) Reconcile(job *Job) error {
	byID := map[string]*testcase.Case{}
	for _, tc := range job.Cases {
		byID[tc.ID()] = tc
	}
	return testlist.ReadTestList(job.ResultFile, testlist.ReadOptions{
		Resolve: func(xdir string) (*testcase.Case, bool) {
			tc, ok := byID[xdir]
			return tc, ok
		},
	})
}

// Done reports whether a Job's state says it has left the queue
// (neither pending nor running).
func (j *Job) Done() bool {
	return j.State != "pending" && j.State != "running"
}
