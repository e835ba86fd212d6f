// Package metrics exports coordinator and transport activity as Prometheus
// collectors. A Recorder is both a sched.Observer and a transport.Instrumentation.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mpquic-rl/pathsched/sched"
)

// Metric labels
const (
	LabelChannel = "channel"
	LabelOutcome = "outcome"
	LabelPath    = "path"
)

const namespace = "pathsched"

// Recorder holds every collector. Safe for concurrent use.
type Recorder struct {
	messages        *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	undelivered     prometheus.Counter
	decisionLatency prometheus.Histogram
	runs            *prometheus.CounterVec
	windows         prometheus.Counter
	epoch           prometheus.Gauge
	runReward       prometheus.Gauge
	runDuration     prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_messages_total",
				Help:      "Messages handled by the transports, by channel and outcome",
			},
			[]string{LabelChannel, LabelOutcome},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Scheduling decisions served, by chosen path",
			},
			[]string{LabelPath},
		),
		undelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_undelivered_total",
			Help:      "Scheduling decisions whose response could not be written",
		}),
		decisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time from request acceptance to delivered response",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15), // 10us to ~160ms
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed runs, by outcome",
			},
			[]string{LabelOutcome},
		),
		windows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gradient_windows_total",
			Help:      "Training windows for which gradients were computed",
		}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch",
			Help:      "Number of gradient applications so far",
		}),
		runReward: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_mean_reward",
			Help:      "Mean reward of the most recently trained run",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		}),
	}
	for _, c := range []prometheus.Collector{
		r.messages, r.decisions, r.undelivered, r.decisionLatency,
		r.runs, r.windows, r.epoch, r.runReward, r.runDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return r, nil
}

// ObserveMessage implements transport.Instrumentation.
func (r *Recorder) ObserveMessage(channel, outcome string) {
	r.messages.WithLabelValues(channel, outcome).Inc()
}

// ObserveDecision implements sched.Observer.
func (r *Recorder) ObserveDecision(d sched.DecisionReport) {
	r.decisions.WithLabelValues(strconv.Itoa(int(d.ChosenPathID))).Inc()
	if !d.Delivered {
		r.undelivered.Inc()
	}
	r.decisionLatency.Observe(d.Latency.Seconds())
}

// ObserveRun implements sched.Observer.
func (r *Recorder) ObserveRun(run sched.RunReport) {
	r.runs.WithLabelValues(string(run.Outcome)).Inc()
	r.windows.Add(float64(run.Windows))
	r.epoch.Set(float64(run.Epoch))
	if run.Outcome == sched.RunTrained {
		r.runReward.Set(run.Stats.MeanReward)
	}
	r.runDuration.Observe(run.Duration.Seconds())
}
