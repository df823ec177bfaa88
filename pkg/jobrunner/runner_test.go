package jobrunner

import (
	"fmt"
	"testing"
	"time"
)

func fastRunner() *Runner {
	r := New()
	n := 0
	r.clock = func() time.Time {
		n++
		return time.Date(2024, 1, 1, 0, 0, n, 0, time.UTC)
	}
	r.sleep = func(time.Duration) {}
	return r
}

func TestSubmitAndWaitSuccessful(t *testing.T) {
	r := fastRunner()
	id, err := r.Submit("echo", "", nil, func() (string, error) {
		return "0", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	job, err := r.Wait(id)
	if err != nil {
		t.Fatal(err)
	}
	if !job.Successful() {
		t.Fatalf("expected success, exc=%q exit=%q", job.Exc(), job.Get("exit", ""))
	}
}

func TestSubmitRecordsStickyExceptionOnError(t *testing.T) {
	r := fastRunner()
	id, err := r.Submit("bad", "", nil, func() (string, error) {
		return "", fmt.Errorf("boom")
	})
	if err != nil {
		t.Fatal(err)
	}
	job, err := r.Wait(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Successful() {
		t.Fatal("expected job to not be successful")
	}
	if job.Exc() != "boom" {
		t.Fatalf("expected sticky exception 'boom', got %q", job.Exc())
	}
}

func TestSubmitParksOnUnfinishedPredecessor(t *testing.T) {
	r := fastRunner()
	gate := make(chan struct{})
	firstID, err := r.Submit("first", "", nil, func() (string, error) {
		<-gate
		return "0", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	secondID, err := r.Submit("second", "", &firstID, func() (string, error) {
		return "0", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	done, _ := r.Poll(secondID)
	if done {
		t.Fatal("expected second job to still be waiting on first")
	}

	close(gate)
	job, err := r.Wait(secondID)
	if err != nil {
		t.Fatal(err)
	}
	if !job.Successful() {
		t.Fatal("expected second job to eventually succeed once first finished")
	}
}

func TestSubmitRejectsUnknownWaitForJobID(t *testing.T) {
	r := fastRunner()
	bogus := ID{Name: "nope", Date: "never"}
	_, err := r.Submit("x", "", &bogus, func() (string, error) { return "0", nil })
	if err == nil {
		t.Fatal("expected an error for an unknown waitforjobid")
	}
}

func TestWaitAllCollectsEveryJob(t *testing.T) {
	r := fastRunner()
	var ids []ID
	for i := 0; i < 3; i++ {
		id, err := r.Submit(fmt.Sprintf("job%d", i), "", nil, func() (string, error) {
			return "0", nil
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	jobs, err := r.WaitAll(ids...)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for _, j := range jobs {
		if !j.Successful() {
			t.Fatal("expected every job to succeed")
		}
	}
}
