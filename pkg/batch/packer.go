// Package batch packs ready TestCases into node-sized batch jobs,
// generates their submit scripts, submits/polls/cancels them through a
// resource-manager binding, and reconciles finished jobs' results back
// into the master TestList (spec.md §4.9, grounded on
// original_source/batch/slurm.py).
package batch

import (
	"sort"

	"github.com/sandialabs/vvtest/pkg/testcase"
)

// Job is one packed batch submission: a set of TestCases that together
// fit within the Packer's MaxNP procs and MaxND devices.
type Job struct {
	Cases      []*testcase.Case
	NP         int
	ND         int
	Walltime   int
	ResultFile string // set once a submit script has been written

	// set after submission/query.
	ID    string
	State string // "pending", "running", "" (done/unknown)
}

// Packer groups ready TestCases into Jobs sized to fit a fixed node
// budget, the way original_source/batch/slurm.py's caller (runtest.py's
// batch mode) does before calling BatchInterface.submit per job.
type Packer struct {
	NodeSize int
	MaxNP    int // 0 means no packing: every case gets a job of its own
	MaxND    int // 0 means unbounded; caps accumulated devices per job
	Walltime int // job walltime in seconds for cases with no timeout; also the floor of every job's walltime
}

// Pack sorts cases longest-first by (np, timeout) descending (matching
// scheduler.Backlog's own tie-break, spec.md §4.5) and greedily bins
// them into Jobs no larger than MaxNP procs. A single case larger than
// MaxNP still gets its own Job (it simply can't share).
func (p *Packer) Pack(cases []*testcase.Case) []*Job {
	ordered := make([]*testcase.Case, len(cases))
	copy(ordered, cases)
	sort.SliceStable(ordered, func(i, j int) bool {
		npi, _ := ordered[i].Spec.Size(p.NodeSize)
		npj, _ := ordered[j].Spec.Size(p.NodeSize)
		if npi != npj {
			return npi > npj
		}
		return ordered[i].Spec.Timeout > ordered[j].Spec.Timeout
	})

	var jobs []*Job
	for _, tc := range ordered {
		np, nd := tc.Spec.Size(p.NodeSize)
		wall := tc.Spec.Timeout
		if wall <= 0 {
			wall = p.Walltime
		}

		job := p.fitJob(jobs, np, nd, wall)
		if job == nil {
			job = &Job{Walltime: p.Walltime}
			jobs = append(jobs, job)
		}
		job.Cases = append(job.Cases, tc)
		job.NP += np
		job.ND += nd
		if wall > job.Walltime {
			job.Walltime = wall
		}
	}
	return jobs
}

// fitJob finds the most recent job with room for another np procs and
// nd devices, mirroring slurm.py's node-count accounting via
// compute_num_nodes.
func (p *Packer) fitJob(jobs []*Job, np, nd, wall int) *Job {
	if p.MaxNP <= 0 {
		return nil
	}
	for i := len(jobs) - 1; i >= 0; i-- {
		if jobs[i].NP+np > p.MaxNP {
			continue
		}
		if p.MaxND > 0 && jobs[i].ND+nd > p.MaxND {
			continue
		}
		return jobs[i]
	}
	return nil
}
