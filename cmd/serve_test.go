package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpquic-rl/pathsched/sched/driver"
	"github.com/mpquic-rl/pathsched/sched/trace"
	"github.com/mpquic-rl/pathsched/sched/transport"
)

// memSocket is an in-memory socket for both transport channels.
type memSocket struct {
	mu    sync.Mutex
	inbox [][]string
	sent  [][]string
}

func (m *memSocket) push(frames []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = append(m.inbox, frames)
}

func (m *memSocket) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbox)
}

func (m *memSocket) sentFrames() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.sent...)
}

func (m *memSocket) Poll(timeout time.Duration) (bool, error) {
	if m.pending() > 0 {
		return true, nil
	}
	time.Sleep(min(timeout, 5*time.Millisecond))
	return m.pending() > 0, nil
}

func (m *memSocket) RecvMessage() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inbox) == 0 {
		return nil, errors.New("nothing to receive")
	}
	msg := m.inbox[0]
	m.inbox = m.inbox[1:]
	return msg, nil
}

func (m *memSocket) SendMessage(frames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, frames)
	return nil
}

func (m *memSocket) Reset() error { return nil }
func (m *memSocket) Close() error { return nil }

func memSockets(reply, sub *memSocket) socketFactory {
	return socketFactory{
		Reply:      func(string) (transport.ReplySocket, error) { return reply, nil },
		Subscriber: func(string) (transport.SubscriberSocket, error) { return sub, nil },
	}
}

func sessionConfig(t *testing.T, dir string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Catalog.TopologiesFile = writeFile(t, dir, "topologies.json", `[{"paths":[{"bandwidth":"10"},{"bandwidth":20}]}]`)
	cfg.Catalog.GraphsFile = writeFile(t, dir, "graphs.json", `[{"file":"web.json"}]`)
	cfg.Metrics.Addr = ""
	cfg.Trace.Level = string(trace.TraceLevelDecisions)
	cfg.Policy.Name = "first-path"
	require.NoError(t, cfg.Validate(true))
	return cfg
}

type serveResult struct {
	st  *trace.SessionTrace
	err error
}

func startServe(ctx context.Context, cfg Config, sockets socketFactory) <-chan serveResult {
	done := make(chan serveResult, 1)
	go func() {
		st, err := serve(ctx, cfg, sockets)
		done <- serveResult{st: st, err: err}
	}()
	return done
}

func awaitServe(t *testing.T, done <-chan serveResult) serveResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
		return serveResult{}
	}
}

func TestServe_CommandDriver_TrainsOneRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	// GIVEN a one-run catalog whose environment command waits for a marker file
	dir := t.TempDir()
	marker := filepath.Join(dir, "done")
	cfg := sessionConfig(t, dir)
	cfg.Environment = driver.Config{
		Mode:    driver.ModeCommand,
		Command: []string{"/bin/sh", "-c", `while [ ! -f "$1" ]; do sleep 0.02; done`, "sh", marker},
	}
	reply, sub := &memSocket{}, &memSocket{}
	reply.push([]string{"7", `{"StreamID":7,"RequestPath":"/index.html","Path1":{"PathID":3,"SmoothedRTT":0.04},"Path2":{"PathID":1,"SmoothedRTT":0.02}}`})

	// WHEN the session runs, the request is answered and its completion is published
	done := startServe(t.Context(), cfg, memSockets(reply, sub))
	require.Eventually(t, func() bool { return len(reply.sentFrames()) == 1 }, 5*time.Second, 5*time.Millisecond)
	sub.push([]string{"7", `{"StreamID":7,"ObjectID":"/index.html","RequestPath":"/index.html","CompletionTime":0.5}`})
	require.Eventually(t, func() bool { return sub.pending() == 0 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	res := awaitServe(t, done)

	// THEN the session ends cleanly once the catalog is exhausted
	require.NoError(t, res.err)

	// AND the first path was chosen and delivered
	assert.Equal(t, [][]string{{"7", "1"}}, reply.sentFrames())
	require.Len(t, res.st.Decisions, 1)
	assert.Equal(t, uint8(1), res.st.Decisions[0].ChosenPathID)
	assert.True(t, res.st.Decisions[0].Delivered)

	// AND the run trained on the reconciled record
	require.Len(t, res.st.Runs, 1)
	run := res.st.Runs[0]
	assert.Equal(t, "trained", run.Outcome)
	assert.Equal(t, "web.json", run.Graph)
	assert.Equal(t, [2]float64{10, 20}, run.PathBandwidths)
	assert.Equal(t, 1, run.Records)
	assert.InDelta(t, 0.75, run.MeanReward, 1e-9)
}

func TestServe_CancelledContext_ReturnsCleanly(t *testing.T) {
	// GIVEN an externally driven session that never ends on its own
	cfg := sessionConfig(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())

	// WHEN the context is cancelled
	done := startServe(ctx, cfg, memSockets(&memSocket{}, &memSocket{}))
	time.Sleep(50 * time.Millisecond)
	cancel()
	res := awaitServe(t, done)

	// THEN serve returns without error and nothing was recorded
	require.NoError(t, res.err)
	assert.Empty(t, res.st.Runs)
}

func TestServe_SocketFailure_Errors(t *testing.T) {
	cfg := sessionConfig(t, t.TempDir())
	sockets := socketFactory{
		Reply: func(string) (transport.ReplySocket, error) { return nil, transport.ErrZMQUnavailable },
	}

	_, err := serve(t.Context(), cfg, sockets)

	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrZMQUnavailable)
}

func TestServe_MissingCatalog_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.TopologiesFile = filepath.Join(t.TempDir(), "absent.json")
	cfg.Catalog.GraphsFile = cfg.Catalog.TopologiesFile

	_, err := serve(t.Context(), cfg, memSockets(&memSocket{}, &memSocket{}))

	assert.Error(t, err)
}

func TestWriteDecisions_WritesHeaderAndRows(t *testing.T) {
	st := trace.NewSessionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	st.RecordDecision(trace.DecisionRecord{RunID: "r", StreamID: "1", ChosenPathID: 3, Delivered: true})
	path := filepath.Join(t.TempDir(), "decisions.tsv")

	require.NoError(t, writeDecisions(st, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "run\tstream"))
	assert.True(t, strings.HasPrefix(lines[1], "r\t1\t"))
}

func TestPrintSummary_ListsPathsInOrder(t *testing.T) {
	// GIVEN a summary with decisions on two paths
	summary := &trace.TraceSummary{
		TotalDecisions:   3,
		PathDistribution: map[uint8]int{3: 1, 1: 2},
		TotalRuns:        1,
		TrainedRuns:      1,
		MeanReward:       0.5,
		FinalEpoch:       1,
	}
	var buf bytes.Buffer

	// WHEN it is printed
	printSummary(&buf, summary)

	// THEN the header, the reward and both paths appear, lowest path first
	out := buf.String()
	assert.Contains(t, out, "Session Summary")
	assert.Contains(t, out, "Mean Reward          : 0.5000")
	first, second := strings.Index(out, "Path 1"), strings.Index(out, "Path 3")
	require.True(t, first >= 0 && second >= 0, out)
	assert.Less(t, first, second)
}
