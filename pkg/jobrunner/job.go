// Package jobrunner implements the background JobRunner: a registry of
// Jobs, each running its own command (locally or on a remote machine)
// in a dedicated goroutine, with a per-job mutex-guarded attribute map
// (spec.md §4.8).
package jobrunner

import (
	"sync"
	"time"
)

// State is a Job's position in its setup -> ready -> run -> done
// lifecycle (spec.md §4.8).
type State string

const (
	StateSetup State = "setup"
	StateReady State = "ready"
	StateRun   State = "run"
	StateDone  State = "done"
)

// ID is the triple that uniquely identifies a Job (spec.md §4.8:
// "(name, machine, date_string)").
type ID struct {
	Name    string
	Machine string
	Date    string
}

// Execute runs a Job's command to completion, returning its exit code
// (as a string, to allow non-numeric codes) and error. Execute is
// called on the Job's dedicated goroutine; Job itself never launches
// anything directly, it just tracks state around a supplied Execute func.
type Execute func() (exitRaw string, err error)

// Job is one unit of background work: a name/machine/date identity, a
// mutex-guarded attribute map, and a state machine advanced by its
// worker goroutine.
type Job struct {
	id ID

	mu    sync.Mutex
	attrs map[string]string
	state State
	exc   string // sticky exception string; set, never cleared

	execute Execute
	done    chan struct{}

	waitForJobID *ID
}

// NewJob constructs a Job in the "setup" state. date should already be
// a formatted, collision-resistant string; Submit is responsible for
// uniqueness via its one-second submission delay.
func NewJob(name, machine, date string, execute Execute) *Job {
	return &Job{
		id:      ID{Name: name, Machine: machine, Date: date},
		attrs:   map[string]string{},
		state:   StateSetup,
		execute: execute,
		done:    make(chan struct{}),
	}
}

// ID returns the job's identity triple.
func (j *Job) ID() ID { return j.id }

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Set records an attribute.
func (j *Job) Set(name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attrs[name] = value
}

// Get returns an attribute, or def if unset.
func (j *Job) Get(name, def string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v, ok := j.attrs[name]; ok {
		return v
	}
	return def
}

// Has reports whether an attribute is set.
func (j *Job) Has(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.attrs[name]
	return ok
}

// Exc returns the sticky exception string recorded during submission,
// start, or execution, or "" if none occurred.
func (j *Job) Exc() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.exc
}

func (j *Job) setExc(s string) {
	j.mu.Lock()
	j.exc = s
	j.state = StateDone
	j.mu.Unlock()
}

// Successful reports whether the job ran to completion with exit "0"
// (the Go analogue of runjob.py's Job.__bool__).
func (j *Job) Successful() bool {
	return j.State() == StateDone && j.Get("exit", "1") == "0"
}

// finalize transitions setup -> ready; called once a job's command is
// fully configured.
func (j *Job) finalize() {
	j.mu.Lock()
	j.state = StateReady
	j.mu.Unlock()
}

// start launches the job's goroutine. The worker recovers from a panic
// in execute, recording it as a sticky exception rather than crashing
// the runner (spec.md §4.8: "the worker never crashes the runner").
func (j *Job) start() {
	j.mu.Lock()
	j.state = StateRun
	j.mu.Unlock()

	go func() {
		defer close(j.done)
		defer func() {
			if r := recover(); r != nil {
				j.setExc(panicMessage(r))
			}
		}()

		exitRaw, err := j.execute()
		j.mu.Lock()
		if err != nil {
			j.exc = err.Error()
		} else {
			j.attrs["exit"] = exitRaw
		}
		j.state = StateDone
		j.mu.Unlock()
	}()
}

func panicMessage(r interface{}) string {
	return time.Now().Format(time.RFC3339) + ": panic: " + toString(r)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}

// Wait blocks until the job's worker goroutine has finished, then
// returns. Safe to call on an already-done job.
func (j *Job) Wait() {
	if j.State() == StateDone {
		return
	}
	<-j.done
}

// Poll is a non-blocking completion check.
func (j *Job) Poll() bool {
	select {
	case <-j.done:
		return true
	default:
		return j.State() == StateDone
	}
}
