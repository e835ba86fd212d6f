// Package catalog enumerates the (topology, workload graph) pairs that make up
// a training session. It implements sched.SessionSource.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mpquic-rl/pathsched/sched"
)

// Catalog walks a seeded shuffle of topologies × graphs exactly once.
// Exhaustion is terminal: build a new Catalog to repeat a session.
//
// Safe for concurrent use.
type Catalog struct {
	mu   sync.Mutex
	runs []sched.RunSession
	idx  int
}

// Load reads two JSON lists from disk and builds a Catalog from them.
func Load(topologiesPath, graphsPath string, seed int64) (*Catalog, error) {
	topologies, err := readList(topologiesPath)
	if err != nil {
		return nil, fmt.Errorf("topologies: %w", err)
	}
	graphs, err := readList(graphsPath)
	if err != nil {
		return nil, fmt.Errorf("graphs: %w", err)
	}
	return New(topologies, graphs, seed)
}

func readList(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing %s: expected a JSON list: %w", path, err)
	}
	return list, nil
}

// New builds the cross product of topologies and graphs and shuffles it with the
// catalog subsystem of a PartitionedRNG seeded with seed.
func New(topologies, graphs []json.RawMessage, seed int64) (*Catalog, error) {
	if len(topologies) == 0 {
		return nil, fmt.Errorf("no topologies")
	}
	if len(graphs) == 0 {
		return nil, fmt.Errorf("no workload graphs")
	}

	bandwidths := make([][2]float64, len(topologies))
	for i, topo := range topologies {
		bw, err := PathBandwidths(topo)
		if err != nil {
			return nil, fmt.Errorf("topology %d: %w", i, err)
		}
		bandwidths[i] = bw
	}
	names := make([]string, len(graphs))
	for j, g := range graphs {
		names[j] = GraphName(g, j)
	}

	runs := make([]sched.RunSession, 0, len(topologies)*len(graphs))
	for i, topo := range topologies {
		for j, g := range graphs {
			runs = append(runs, sched.RunSession{
				Topology:       topo,
				WorkloadGraph:  g,
				GraphName:      names[j],
				PathBandwidths: bandwidths[i],
			})
		}
	}
	rng := sched.NewPartitionedRNG(seed).ForSubsystem(sched.SubsystemCatalog)
	rng.Shuffle(len(runs), func(a, b int) { runs[a], runs[b] = runs[b], runs[a] })
	for k := range runs {
		runs[k].Index = k
	}

	logrus.Debugf("Catalog: %d topologies × %d graphs = %d runs (seed %d)", len(topologies), len(graphs), len(runs), seed)
	return &Catalog{runs: runs}, nil
}

// Truncate keeps only the first n runs of the shuffled order. n <= 0 keeps all.
func (c *Catalog) Truncate(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 && n < len(c.runs) {
		c.runs = c.runs[:n]
	}
}

// Count returns the total number of runs.
func (c *Catalog) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

// Current returns the run in progress. ok is false once exhausted.
func (c *Catalog) Current() (sched.RunSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.runs) {
		return sched.RunSession{}, false
	}
	return c.runs[c.idx], true
}

// Advance moves to the next run. Returns false once exhausted, and stays exhausted.
func (c *Catalog) Advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx < len(c.runs) {
		c.idx++
	}
	return c.idx < len(c.runs)
}

// Index returns the position of the current run.
func (c *Catalog) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx
}

// Runs returns a copy of the full run order.
func (c *Catalog) Runs() []sched.RunSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sched.RunSession(nil), c.runs...)
}

type topologyPath struct {
	Bandwidth json.RawMessage `json:"bandwidth"`
}

type topology struct {
	Paths []topologyPath `json:"paths"`
}

// PathBandwidths extracts the bandwidth of the first two paths of a topology.
// The topology may be an object or a single-element list wrapping one, and
// bandwidths may be JSON numbers or numeric strings.
func PathBandwidths(raw json.RawMessage) ([2]float64, error) {
	var out [2]float64
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var wrapped []json.RawMessage
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return out, err
		}
		if len(wrapped) == 0 {
			return out, fmt.Errorf("empty topology list")
		}
		raw = wrapped[0]
	}
	var topo topology
	if err := json.Unmarshal(raw, &topo); err != nil {
		return out, err
	}
	if len(topo.Paths) < 2 {
		return out, fmt.Errorf("need at least 2 paths, got %d", len(topo.Paths))
	}
	for i := 0; i < 2; i++ {
		bw, err := parseNumber(topo.Paths[i].Bandwidth)
		if err != nil {
			return out, fmt.Errorf("path %d bandwidth: %w", i, err)
		}
		out[i] = bw
	}
	return out, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	err := json.Unmarshal(raw, &f)
	return f, err
}

// GraphName returns the graph's "file" field, or a positional name if absent.
func GraphName(raw json.RawMessage, position int) string {
	var g struct {
		File string `json:"file"`
	}
	if err := json.Unmarshal(raw, &g); err == nil && g.File != "" {
		return g.File
	}
	return "graph_" + strconv.Itoa(position)
}
