package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mpquic-rl/pathsched/sched"
	"github.com/mpquic-rl/pathsched/sched/catalog"
	"github.com/mpquic-rl/pathsched/sched/driver"
	"github.com/mpquic-rl/pathsched/sched/metrics"
	"github.com/mpquic-rl/pathsched/sched/policy"
	"github.com/mpquic-rl/pathsched/sched/trace"
	"github.com/mpquic-rl/pathsched/sched/transport"
)

const shutdownTimeout = 5 * time.Second

// socketFactory opens the two transport sockets.
type socketFactory struct {
	Reply      func(endpoint string) (transport.ReplySocket, error)
	Subscriber func(endpoint string) (transport.SubscriberSocket, error)
}

var zmqSockets = socketFactory{
	Reply:      transport.NewZMQReplySocket,
	Subscriber: transport.NewZMQSubscriberSocket,
}

// serve wires every component from cfg and runs the session to completion.
// Returns the collected trace even when the session ends with an error.
func serve(ctx context.Context, cfg Config, sockets socketFactory) (*trace.SessionTrace, error) {
	st := trace.NewSessionTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.Trace.Level)})

	cat, err := catalog.Load(cfg.Catalog.TopologiesFile, cfg.Catalog.GraphsFile, cfg.Seed)
	if err != nil {
		return st, fmt.Errorf("loading catalog: %w", err)
	}
	if cfg.Catalog.MaxRuns > 0 {
		cat.Truncate(cfg.Catalog.MaxRuns)
	}

	rng := sched.NewPartitionedRNG(cfg.Seed)
	pol, trainer, err := policy.NewPolicy(cfg.Policy, cfg.Features.HistoryLength, rng)
	if err != nil {
		return st, err
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return st, err
	}

	reply, err := sockets.Reply(cfg.Transport.DecisionEndpoint)
	if err != nil {
		return st, fmt.Errorf("decision socket: %w", err)
	}
	defer reply.Close()
	sub, err := sockets.Subscriber(cfg.Transport.TelemetryEndpoint)
	if err != nil {
		return st, fmt.Errorf("telemetry socket: %w", err)
	}
	defer sub.Close()

	shared := sched.NewSharedRunState()
	exchange := sched.NewExchange()
	decisions := transport.NewDecisionTransport(reply, cfg.Paths, cfg.Transport, recorder)
	telemetry := transport.NewTelemetryChannel(sub, cfg.Transport, recorder)

	env, err := driver.New(cfg.Environment, shared)
	if err != nil {
		return st, err
	}

	coord, err := sched.NewExperienceCoordinator(cfg.Coordinator(), sched.Dependencies{
		Exchange:  exchange,
		Telemetry: telemetry,
		Shared:    shared,
		Sessions:  cat,
		Policy:    pol,
		Trainer:   trainer,
		Driver:    env,
		Observers: []sched.Observer{recorder, newTraceObserver(st)},
	})
	if err != nil {
		return st, err
	}

	listenCtx, stopListeners := context.WithCancel(ctx)
	defer stopListeners()
	g, gctx := errgroup.WithContext(listenCtx)

	g.Go(func() error { return decisions.Run(gctx, exchange) })
	g.Go(func() error { return telemetry.Run(gctx) })

	if cfg.Metrics.Addr != "" {
		var runs runController
		if ext, ok := env.(*driver.ExternalDriver); ok {
			runs = ext
		}
		srv := NewControlServer(cfg.Metrics.Addr, registry, coord, runs)
		g.Go(func() error {
			logrus.Infof("Control server listening on %s", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stopListeners()
		err := coord.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	if cmdDriver, ok := env.(*driver.CommandDriver); ok {
		cmdDriver.Wait()
	}
	stats := coord.Stats()
	logrus.Infof("Session finished: %d requests served, %d runs trained, %d discarded, epoch %d",
		stats.RequestsServed, stats.RunsTrained, stats.RunsDiscarded, stats.Epoch)
	return st, err
}

// writeDecisions exports the decision trace to path as TSV.
func writeDecisions(st *trace.SessionTrace, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := st.WriteDecisionsTSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printSummary writes a human-readable session summary.
func printSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Session Summary ===")
	fmt.Fprintf(w, "Runs                 : %d (%d trained, %d discarded)\n", s.TotalRuns, s.TrainedRuns, s.DiscardedRuns)
	fmt.Fprintf(w, "Final Epoch          : %d\n", s.FinalEpoch)
	if s.TrainedRuns > 0 {
		fmt.Fprintf(w, "Mean Reward          : %.4f\n", s.MeanReward)
		fmt.Fprintf(w, "Mean Entropy         : %.4f\n", s.MeanEntropy)
		fmt.Fprintf(w, "Mean Completion Time : %.4f\n", s.MeanCompletionTime)
	}
	if s.TotalDecisions > 0 {
		fmt.Fprintf(w, "Decisions            : %d (%d undelivered)\n", s.TotalDecisions, s.UndeliveredCount)
		ids := make([]int, 0, len(s.PathDistribution))
		for id := range s.PathDistribution {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "  Path %-3d           : %d\n", id, s.PathDistribution[uint8(id)])
		}
	}
}
