package testspec

import "testing"

func intp(i int) *int { return &i }

func TestSizeDefaultsToOne(t *testing.T) {
	s := &Spec{}
	np, nd := s.Size(0)
	if np != 1 || nd != 0 {
		t.Fatalf("Size() = (%d,%d), want (1,0)", np, nd)
	}
}

func TestSizeRaisedByNodeCount(t *testing.T) {
	s := &Spec{NNode: intp(2)}
	np, _ := s.Size(4)
	if np != 8 {
		t.Fatalf("Size() np = %d, want 8 (nnode*nodeSize)", np)
	}
}

func TestSizeTakesMaxOfNPAndNNode(t *testing.T) {
	s := &Spec{NP: 3, NNode: intp(2)}
	np, _ := s.Size(4)
	if np != 8 {
		t.Fatalf("Size() np = %d, want max(3, 2*4)=8", np)
	}
}

func TestStatusLifecycle(t *testing.T) {
	var st Status
	if st.IsDone() {
		t.Fatal("fresh status should not be done")
	}
	st.Skip("cumulative runtime threshold", false)
	if !st.IsSkipped() || !st.IsDone() {
		t.Fatal("skipped status should be skipped and done")
	}
}

func TestZeroTimeoutMeansNoTimeout(t *testing.T) {
	s := &Spec{Timeout: 0}
	if s.Timeout != 0 {
		t.Fatal("zero timeout should remain zero (no timeout), distinct from 1s")
	}
}
