package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mpquic-rl/pathsched/sched"
)

// statusSource is the read side of a running coordinator.
type statusSource interface {
	Phase() sched.Phase
	Stats() sched.CoordinatorStats
}

// runController ends externally driven runs. Implemented by driver.ExternalDriver.
type runController interface {
	EndRun() bool
	Current() (sched.RunSession, bool)
}

type controlServer struct {
	status statusSource
	runs   runController // nil unless the environment is external
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Phase          string `json:"phase"`
	Epoch          int64  `json:"epoch"`
	RequestsServed int64  `json:"requests_served"`
	RunsTrained    int64  `json:"runs_trained"`
	RunsDiscarded  int64  `json:"runs_discarded"`
}

// RunResponse is the body of the /run endpoints.
type RunResponse struct {
	Index          int        `json:"index"`
	Graph          string     `json:"graph"`
	PathBandwidths [2]float64 `json:"path_bandwidths"`
	Active         bool       `json:"active"`
}

func newControlRouter(gatherer prometheus.Gatherer, status statusSource, runs runController) *mux.Router {
	s := &controlServer{status: status, runs: runs}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/healthz", s.healthz).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/run/current", s.currentRun).Methods("GET")
	r.HandleFunc("/run/end", s.endRun).Methods("POST")
	return r
}

// NewControlServer returns the HTTP control surface bound to addr.
func NewControlServer(addr string, gatherer prometheus.Gatherer, status statusSource, runs runController) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: newControlRouter(gatherer, status, runs),
	}
}

func (s *controlServer) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "healthy")
}

func (s *controlServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.status.Stats()
	writeJSON(w, http.StatusOK, StatusResponse{
		Phase:          s.status.Phase().String(),
		Epoch:          stats.Epoch,
		RequestsServed: stats.RequestsServed,
		RunsTrained:    stats.RunsTrained,
		RunsDiscarded:  stats.RunsDiscarded,
	})
}

func (s *controlServer) currentRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "runs are not externally driven", http.StatusNotFound)
		return
	}
	session, active := s.runs.Current()
	writeJSON(w, http.StatusOK, runResponse(session, active))
}

func (s *controlServer) endRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "runs are not externally driven", http.StatusNotFound)
		return
	}
	session, _ := s.runs.Current()
	if !s.runs.EndRun() {
		http.Error(w, "no active run", http.StatusConflict)
		return
	}
	logrus.Infof("End of run %d requested over HTTP", session.Index)
	writeJSON(w, http.StatusAccepted, runResponse(session, false))
}

func runResponse(session sched.RunSession, active bool) RunResponse {
	return RunResponse{
		Index:          session.Index,
		Graph:          session.GraphName,
		PathBandwidths: session.PathBandwidths,
		Active:         active,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Writing response: %v", err)
	}
}
