package jobrunner

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner is the background JobRunner registry: submitted Jobs, a
// waiting list for predecessor-gated jobs, and defaults. Unlike the
// teacher source's module-level singleton, this is an explicit value
// threaded through by the caller (spec.md §9 Design Note).
type Runner struct {
	mu      sync.Mutex
	jobs    map[ID]*Job
	waiting map[ID]waitEntry

	// clock is overridable in tests so the 1-second submission delay
	// and job-id date stamping don't make tests slow.
	clock func() time.Time
	sleep func(time.Duration)
}

type waitEntry struct {
	job    *Job
	waitOn ID
}

// New returns an empty Runner.
func New() *Runner {
	return &Runner{
		jobs:    map[ID]*Job{},
		waiting: map[ID]waitEntry{},
		clock:   time.Now,
		sleep:   time.Sleep,
	}
}

// Submit constructs and (unless waitForJobID is given and not yet done)
// immediately starts a Job running execute. The returned ID is
// guaranteed unique: submission always sleeps one second afterward so
// the next call's date stamp differs (spec.md §4.8).
func (r *Runner) Submit(name, machine string, waitForJobID *ID, execute Execute) (ID, error) {
	r.PollAll()

	date := r.clock().Format("Mon_Jan_02_2006_15:04:05")
	job := NewJob(name, machine, date, execute)

	r.mu.Lock()
	if waitForJobID != nil {
		if _, ok := r.jobs[*waitForJobID]; !ok {
			r.mu.Unlock()
			return ID{}, fmt.Errorf("jobrunner: waitforjobid not in existing job list: %+v", *waitForJobID)
		}
	}
	job.finalize()
	r.jobs[job.id] = job
	r.mu.Unlock()

	if waitForJobID != nil && !r.isDone(*waitForJobID) {
		r.mu.Lock()
		r.waiting[job.id] = waitEntry{job: job, waitOn: *waitForJobID}
		r.mu.Unlock()
	} else {
		job.start()
		logrus.WithField("jobid", fmt.Sprintf("%+v", job.id)).Info("launched job")
	}

	r.sleep(time.Second)
	return job.id, nil
}

func (r *Runner) isDone(id ID) bool {
	r.mu.Lock()
	job, ok := r.jobs[id]
	r.mu.Unlock()
	return !ok || job.State() == StateDone
}

// PollAll launches any waiting job whose predecessor has completed
// (spec.md §4.8's poll_jobs behavior); running jobs are not queried.
func (r *Runner) PollAll() {
	r.mu.Lock()
	var toLaunch []*Job
	remaining := map[ID]waitEntry{}
	for id, entry := range r.waiting {
		if r.jobDoneLocked(entry.waitOn) {
			toLaunch = append(toLaunch, entry.job)
		} else {
			remaining[id] = entry
		}
	}
	r.waiting = remaining
	r.mu.Unlock()

	for _, job := range toLaunch {
		job.start()
	}
}

func (r *Runner) jobDoneLocked(id ID) bool {
	job, ok := r.jobs[id]
	return !ok || job.State() == StateDone
}

// Poll reports whether id has completed.
func (r *Runner) Poll(id ID) (bool, error) {
	r.PollAll()
	r.mu.Lock()
	job, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("jobrunner: unknown job id %+v", id)
	}
	return job.Poll(), nil
}

// Wait blocks until id completes and returns its Job, launching waiting
// jobs (id itself included) as their predecessors complete.
func (r *Runner) Wait(id ID) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("jobrunner: unknown job id %+v", id)
	}
	for !job.Poll() {
		r.PollAll()
		select {
		case <-job.done:
		case <-time.After(10 * time.Millisecond):
		}
	}
	job.Wait()
	return job, nil
}

// WaitAll waits for every given id (or, if none given, every submitted
// job) to complete, returning their Jobs. Waiting itself runs
// concurrently via errgroup so a slow job doesn't serialize behind
// others.
func (r *Runner) WaitAll(ids ...ID) ([]*Job, error) {
	if len(ids) == 0 {
		r.mu.Lock()
		for id := range r.jobs {
			ids = append(ids, id)
		}
		r.mu.Unlock()
	}

	jobs := make([]*Job, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			job, err := r.Wait(id)
			if err != nil {
				return err
			}
			jobs[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// RunWait submits execute and blocks until it completes, returning its
// exit string (the Go analogue of run_wait()).
func (r *Runner) RunWait(name, machine string, execute Execute) (string, error) {
	id, err := r.Submit(name, machine, nil, execute)
	if err != nil {
		return "", err
	}
	job, err := r.Wait(id)
	if err != nil {
		return "", err
	}
	return job.Get("exit", ""), nil
}
