// Package statusserver exposes a running vvtest session's progress over
// HTTP: a JSON snapshot for humans/scripts and a Prometheus scrape
// endpoint for dashboards (SPEC_FULL.md §2 ambient addition — vvtest's
// actual UI is a terminal report, which is explicitly out of scope, so
// this package has no direct original_source grounding; it exists to
// exercise the domain stack's httprouter/client_golang the way a
// service built from this teacher would).
package statusserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Snapshot is a point-in-time count of TestCases by outcome, the same
// shape a terminal progress report would tally.
type Snapshot struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Diff    int `json:"diff"`
	Timeout int `json:"timeout"`
	Notrun  int `json:"notrun"`
}

// Provider produces the current Snapshot; the caller's scheduler loop
// supplies this (e.g. by counting its ExecList/Backlog state) without
// statusserver knowing anything about scheduler internals.
type Provider func() Snapshot

// Server serves /status and /metrics for the lifetime of a vvtest run.
type Server struct {
	provider Provider
	router   *httprouter.Router
	registry *prometheus.Registry

	total   prometheus.Gauge
	running prometheus.Gauge
	done    prometheus.Gauge
	results *prometheus.GaugeVec
}

// NewServer builds a Server backed by provider. Each Server owns its
// own prometheus.Registry (rather than registering into the global
// default) so multiple Servers — one per vvtest invocation — never
// collide over metric names.
func NewServer(provider Provider) *Server {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	s := &Server{
		provider: provider,
		router:   httprouter.New(),
		registry: reg,
		total:    factory.NewGauge(prometheus.GaugeOpts{Name: "vvtest_tests_total", Help: "Total number of tests in the current run."}),
		running:  factory.NewGauge(prometheus.GaugeOpts{Name: "vvtest_tests_running", Help: "Number of tests currently executing."}),
		done:     factory.NewGauge(prometheus.GaugeOpts{Name: "vvtest_tests_done", Help: "Number of tests that have finished."}),
		results:  factory.NewGaugeVec(prometheus.GaugeOpts{Name: "vvtest_tests_by_result", Help: "Number of finished tests broken down by result."}, []string{"result"}),
	}

	s.router.GET("/status", s.handleStatus)
	s.router.GET("/metrics", s.handleMetrics)
	return s
}

// Handler returns the http.Handler to mount (or serve directly).
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving Handler() on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logrus.WithField("addr", addr).Info("statusserver: listening")
	return srv.ListenAndServe()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.refresh()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logrus.WithError(err).Warn("statusserver: failed to encode status response")
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.refresh()
	promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// refresh pulls a fresh Snapshot from the provider and updates the
// Prometheus collectors to match, returning the snapshot so callers
// serving /status don't need a second provider call.
func (s *Server) refresh() Snapshot {
	snap := s.provider()
	s.total.Set(float64(snap.Total))
	s.running.Set(float64(snap.Running))
	s.done.Set(float64(snap.Done))
	s.results.WithLabelValues("pass").Set(float64(snap.Pass))
	s.results.WithLabelValues("fail").Set(float64(snap.Fail))
	s.results.WithLabelValues("diff").Set(float64(snap.Diff))
	s.results.WithLabelValues("timeout").Set(float64(snap.Timeout))
	s.results.WithLabelValues("notrun").Set(float64(snap.Notrun))
	return snap
}
