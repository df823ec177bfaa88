package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusEndpointReportsSnapshot(t *testing.T) {
	s := NewServer(func() Snapshot {
		return Snapshot{Total: 10, Running: 2, Done: 8, Pass: 6, Fail: 1, Diff: 1}
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Total != 10 || got.Running != 2 || got.Done != 8 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestMetricsEndpointExposesGauges(t *testing.T) {
	s := NewServer(func() Snapshot {
		return Snapshot{Total: 5, Running: 1, Done: 4, Pass: 4}
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "vvtest_tests_total 5") {
		t.Fatalf("expected vvtest_tests_total gauge in metrics output: %s", body)
	}
	if !strings.Contains(body, `vvtest_tests_by_result{result="pass"} 4`) {
		t.Fatalf("expected pass result gauge in metrics output: %s", body)
	}
}

func TestTwoServersDoNotCollideOnRegistration(t *testing.T) {
	provider := func() Snapshot { return Snapshot{} }
	a := NewServer(provider)
	b := NewServer(provider)
	if a.registry == b.registry {
		t.Fatal("expected independent registries per Server")
	}
}
