package scheduler

import (
	"testing"

	"github.com/sandialabs/vvtest/pkg/resource"
	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

type fakeHandle struct{ done bool }

func (h *fakeHandle) Poll() (bool, testspec.Result, string) {
	if !h.done {
		h.done = true
		return false, "", ""
	}
	return true, testspec.ResultPass, "0"
}

type launcherAdapter struct{ started int }

func (l *launcherAdapter) Start(tc *testcase.Case, procIDs, deviceIDs []int) (Handle, error) {
	l.started++
	return &fakeHandle{}, nil
}

func TestExecListRunsOneTestToCompletion(t *testing.T) {
	procs, err := resource.New(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	tc := newCase("a", 2)

	backlog := New(0, nil)
	backlog.Insert(tc)
	backlog.Sort(SortByRuntime)

	launcher := &launcherAdapter{}
	e := NewExecList(backlog, procs, nil, launcher, 0)

	if !e.Tick() {
		t.Fatal("expected Tick to start the test")
	}
	if e.NumRunning() != 1 {
		t.Fatalf("expected 1 running, got %d", e.NumRunning())
	}
	if procs.NumAvailable() != 2 {
		t.Fatalf("expected 2 procs available after checkout, got %d", procs.NumAvailable())
	}

	e.CheckStateChange() // first poll: not yet done
	if e.NumRunning() != 1 {
		t.Fatal("expected test still running after first poll")
	}

	e.CheckStateChange() // second poll: done
	if e.NumRunning() != 0 {
		t.Fatal("expected test to have completed")
	}
	if e.NumDone() != 1 {
		t.Fatalf("expected 1 done, got %d", e.NumDone())
	}
	if procs.NumAvailable() != 4 {
		t.Fatalf("expected all procs returned, got %d available", procs.NumAvailable())
	}
	if tc.Status.Result != testspec.ResultPass {
		t.Fatalf("expected pass result, got %q", tc.Status.Result)
	}
}

func TestExecListTickReturnsFalseOnEmptyBacklog(t *testing.T) {
	procs, _ := resource.New(4, 4)
	backlog := New(0, nil)
	e := NewExecList(backlog, procs, nil, &launcherAdapter{}, 0)
	if e.Tick() {
		t.Fatal("expected Tick to report no work on an empty backlog")
	}
}
