package batch

import (
	"testing"

	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

func newCase(xdir string, np, timeout int) *testcase.Case {
	return testcase.New(&testspec.Spec{
		ExecuteDir: xdir,
		RelPath:    xdir,
		Name:       xdir,
		NP:         np,
		Timeout:    timeout,
	})
}

func newDeviceCase(xdir string, np, nd, timeout int) *testcase.Case {
	return testcase.New(&testspec.Spec{
		ExecuteDir: xdir,
		RelPath:    xdir,
		Name:       xdir,
		NP:         np,
		NDevice:    &nd,
		Timeout:    timeout,
	})
}

func TestPackFitsCasesWithinNodeBudget(t *testing.T) {
	p := &Packer{NodeSize: 4, MaxNP: 8, Walltime: 60}
	cases := []*testcase.Case{
		newCase("a", 4, 10),
		newCase("b", 4, 10),
		newCase("c", 4, 10),
	}

	jobs := p.Pack(cases)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs packing 3x np=4 into MaxNP=8, got %d", len(jobs))
	}
	if jobs[0].NP != 8 || len(jobs[0].Cases) != 2 {
		t.Fatalf("expected first job to hold 2 cases at np=8, got np=%d cases=%d", jobs[0].NP, len(jobs[0].Cases))
	}
	if jobs[1].NP != 4 || len(jobs[1].Cases) != 1 {
		t.Fatalf("expected second job to hold the leftover case, got np=%d cases=%d", jobs[1].NP, len(jobs[1].Cases))
	}
}

func TestPackSortsLongestFirst(t *testing.T) {
	p := &Packer{NodeSize: 1, MaxNP: 0, Walltime: 60}
	cases := []*testcase.Case{
		newCase("small", 1, 10),
		newCase("big", 8, 10),
	}

	jobs := p.Pack(cases)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 unbounded single-case jobs, got %d", len(jobs))
	}
	if jobs[0].Cases[0].ID() != "big" {
		t.Fatalf("expected the larger case packed first, got %s", jobs[0].Cases[0].ID())
	}
}

func TestPackCapsAccumulatedDevicesPerJob(t *testing.T) {
	p := &Packer{NodeSize: 4, MaxNP: 32, MaxND: 2, Walltime: 60}
	cases := []*testcase.Case{
		newDeviceCase("a", 4, 1, 10),
		newDeviceCase("b", 4, 1, 10),
		newDeviceCase("c", 4, 1, 10),
	}

	jobs := p.Pack(cases)
	if len(jobs) != 2 {
		t.Fatalf("expected device cap to force a 3rd job's worth of devices into a new job, got %d jobs", len(jobs))
	}
	if jobs[0].ND != 2 || len(jobs[0].Cases) != 2 {
		t.Fatalf("expected first job to hold 2 device-using cases at nd=2, got nd=%d cases=%d", jobs[0].ND, len(jobs[0].Cases))
	}
	if jobs[1].ND != 1 || len(jobs[1].Cases) != 1 {
		t.Fatalf("expected second job to hold the leftover device case, got nd=%d cases=%d", jobs[1].ND, len(jobs[1].Cases))
	}
}

func TestPackUsesLargestDeclaredTimeoutAsWalltime(t *testing.T) {
	p := &Packer{NodeSize: 1, MaxNP: 8, Walltime: 60}
	cases := []*testcase.Case{
		newCase("a", 2, 300),
		newCase("b", 2, 120),
	}
	jobs := p.Pack(cases)
	if len(jobs) != 1 {
		t.Fatalf("expected both cases in one job, got %d jobs", len(jobs))
	}
	if jobs[0].Walltime != 300 {
		t.Fatalf("expected job walltime to take the max declared timeout 300, got %d", jobs[0].Walltime)
	}
}
