package scheduler

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sandialabs/vvtest/pkg/resource"
	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

// Launcher starts a TestCase's runner (local subprocess or remote SSH
// worker) without blocking; the returned Handle is polled by the
// control loop (spec.md §4.6/§4.7 run under §4.5's pool loop).
type Launcher interface {
	Start(tc *testcase.Case, procIDs, deviceIDs []int) (Handle, error)
}

// Handle is a started test's in-flight execution.
type Handle interface {
	// Poll reports whether the test has finished; when done is true,
	// result/exitRaw describe the outcome.
	Poll() (done bool, result testspec.Result, exitRaw string)
}

type running struct {
	tc        *testcase.Case
	handle    Handle
	procIDs   []int
	deviceIDs []int
	np        int
	nd        int
}

// ExecList is the TestExecList in-process pool control loop: one
// control thread owns backlog, running set, and both resource pools,
// so none of them need internal locking (spec.md §4.5, §5).
type ExecList struct {
	backlog *Backlog
	procs   *resource.Pool
	devices *resource.Pool
	launch  Launcher

	nodeSize int

	runningList []*running
	numDone     int

	// OnDone is called after a test transitions to done, after resources
	// have been returned to the pools.
	OnDone func(tc *testcase.Case)

	cancelled bool
}

// NewExecList constructs a control loop bound to procs/devices pools and
// a Launcher. nodeSize is forwarded to Spec.Size the same way Backlog
// uses it, so allocation requests agree with the backlog's own np/nd.
func NewExecList(backlog *Backlog, procs, devices *resource.Pool, launch Launcher, nodeSize int) *ExecList {
	return &ExecList{backlog: backlog, procs: procs, devices: devices, launch: launch, nodeSize: nodeSize}
}

// Cancel requests a soft stop: no further tests are launched, but
// already-running ones are left to finish (spec.md §4.5 cancellation).
func (e *ExecList) Cancel() { e.cancelled = true }

// NumRunning reports how many tests are currently in flight.
func (e *ExecList) NumRunning() int { return len(e.runningList) }

// NumDone reports how many tests have completed (any terminal result).
func (e *ExecList) NumDone() int { return e.numDone }

// Tick performs one scheduling decision: pop the next eligible test
// (promoting an oversize one if idle), allocate resources, and start it.
// It returns false when there is no work to start this tick (the
// backlog is empty/blocked, or a cancel is in effect).
func (e *ExecList) Tick() bool {
	if e.cancelled {
		return false
	}

	tc := e.popNext()
	if tc == nil {
		return false
	}

	np, nd := tc.Spec.Size(e.nodeSize)
	procIDs := e.procs.Get(np)
	var deviceIDs []int
	if nd > 0 && e.devices != nil {
		deviceIDs = e.devices.Get(nd)
	}

	handle, err := e.launch.Start(tc, procIDs, deviceIDs)
	if err != nil {
		e.procs.Put(procIDs)
		if deviceIDs != nil {
			e.devices.Put(deviceIDs)
		}
		tc.Status.MarkDone(time.Now(), testspec.ResultFail, err.Error())
		e.numDone++
		logrus.WithError(err).WithField("test", tc.ID()).Error("failed to start test")
		if e.OnDone != nil {
			e.OnDone(tc)
		}
		return true
	}

	tc.Status.MarkStarted(time.Now())
	e.runningList = append(e.runningList, &running{tc: tc, handle: handle, procIDs: procIDs, deviceIDs: deviceIDs, np: np, nd: nd})
	return true
}

// popNext implements spec.md §4.5 steps 1-2: pop under the current free
// constraint; if nothing qualifies and nothing is running, promote an
// oversize test by popping with no constraint at all.
func (e *ExecList) popNext() *testcase.Case {
	free := e.procs.NumAvailable()
	tc := e.backlog.Pop(&Constraint{MaxNP: free})
	if tc == nil && len(e.runningList) == 0 {
		tc = e.backlog.Pop(nil)
	}
	return tc
}

// CheckStateChange polls every running test once, returning resources
// and recording completions for any that have finished (spec.md §4.5
// step 5). Call this once per control-loop iteration between Tick
// calls.
func (e *ExecList) CheckStateChange() {
	var stillRunning []*running
	for _, r := range e.runningList {
		done, result, exitRaw := r.handle.Poll()
		if !done {
			stillRunning = append(stillRunning, r)
			continue
		}

		e.procs.Put(r.procIDs)
		if r.deviceIDs != nil {
			e.devices.Put(r.deviceIDs)
		}
		r.tc.Status.MarkDone(time.Now(), result, exitRaw)
		e.numDone++
		if e.OnDone != nil {
			e.OnDone(r.tc)
		}
	}
	e.runningList = stillRunning
}

// HasWork reports whether the loop still has anything to do: tests
// running, or tests left in the backlog.
func (e *ExecList) HasWork() bool {
	return len(e.runningList) > 0 || e.backlog.Len() > 0
}
