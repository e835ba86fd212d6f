package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpquic-rl/pathsched/sched"
	"github.com/mpquic-rl/pathsched/sched/driver"
	"github.com/mpquic-rl/pathsched/sched/metrics"
)

type fixedStatus struct {
	phase sched.Phase
	stats sched.CoordinatorStats
}

func (f fixedStatus) Phase() sched.Phase { return f.phase }
func (f fixedStatus) Stats() sched.CoordinatorStats { return f.stats }

func serveRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestControlRouter_Healthz(t *testing.T) {
	router := newControlRouter(prometheus.NewRegistry(), fixedStatus{}, nil)

	rec := serveRequest(t, router, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", rec.Body.String())
}

func TestControlRouter_Status_ReportsCoordinatorStats(t *testing.T) {
	// GIVEN a coordinator mid-session
	status := fixedStatus{
		phase: sched.PhaseAwaitingRequest,
		stats: sched.CoordinatorStats{RequestsServed: 12, RunsTrained: 2, RunsDiscarded: 1, Epoch: 1},
	}
	router := newControlRouter(prometheus.NewRegistry(), status, nil)

	// WHEN /status is fetched
	rec := serveRequest(t, router, http.MethodGet, "/status")

	// THEN the body mirrors the stats
	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusResponse{
		Phase:          "AWAITING_REQUEST",
		Epoch:          1,
		RequestsServed: 12,
		RunsTrained:    2,
		RunsDiscarded:  1,
	}, body)
}

func TestControlRouter_EndRun_SignalsSharedState(t *testing.T) {
	// GIVEN an externally driven run in progress
	shared := sched.NewSharedRunState()
	ext := driver.NewExternalDriver(shared)
	require.NoError(t, ext.StartRun(t.Context(), sched.RunSession{Index: 3, GraphName: "g.json", PathBandwidths: [2]float64{10, 20}}))
	router := newControlRouter(prometheus.NewRegistry(), fixedStatus{}, ext)

	// WHEN the run is ended over HTTP
	rec := serveRequest(t, router, http.MethodPost, "/run/end")

	// THEN the request is accepted and end-of-run is raised
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Index)
	assert.False(t, body.Active)
	assert.True(t, shared.EndOfRun())

	// AND a second request conflicts because no run is active
	rec = serveRequest(t, router, http.MethodPost, "/run/end")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestControlRouter_CurrentRun(t *testing.T) {
	ext := driver.NewExternalDriver(sched.NewSharedRunState())
	require.NoError(t, ext.StartRun(t.Context(), sched.RunSession{Index: 1, GraphName: "web.json", PathBandwidths: [2]float64{5, 50}}))
	router := newControlRouter(prometheus.NewRegistry(), fixedStatus{}, ext)

	rec := serveRequest(t, router, http.MethodGet, "/run/current")

	require.Equal(t, http.StatusOK, rec.Code)
	var body RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, RunResponse{Index: 1, Graph: "web.json", PathBandwidths: [2]float64{5, 50}, Active: true}, body)
}

func TestControlRouter_RunEndpoints_NotFoundWithoutExternalDriver(t *testing.T) {
	router := newControlRouter(prometheus.NewRegistry(), fixedStatus{}, nil)

	assert.Equal(t, http.StatusNotFound, serveRequest(t, router, http.MethodPost, "/run/end").Code)
	assert.Equal(t, http.StatusNotFound, serveRequest(t, router, http.MethodGet, "/run/current").Code)
}

func TestControlRouter_EndRun_RejectsGet(t *testing.T) {
	ext := driver.NewExternalDriver(sched.NewSharedRunState())
	router := newControlRouter(prometheus.NewRegistry(), fixedStatus{}, ext)

	rec := serveRequest(t, router, http.MethodGet, "/run/end")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestControlRouter_Metrics_ExposesRecorder(t *testing.T) {
	// GIVEN a recorder that has seen one decision
	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	require.NoError(t, err)
	recorder.ObserveDecision(sched.DecisionReport{ChosenPathID: 3, Delivered: true})
	router := newControlRouter(reg, fixedStatus{}, nil)

	// WHEN /metrics is scraped
	rec := serveRequest(t, router, http.MethodGet, "/metrics")

	// THEN the exposition includes the decision counter
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `pathsched_decisions_total{path="3"} 1`), rec.Body.String())
}
