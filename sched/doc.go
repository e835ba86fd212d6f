// Package sched provides the decision-serving core of the multipath stream
// scheduler.
//
// # Reading Guide
//
// Start with these files to understand the core:
//   - types.go: wire types (SchedulingRequest, SchedulingResponse,
//     StreamCompletionRecord) and their decoding
//   - exchange.go: the two single-slot rendezvous points between the
//     decision transport and the coordinator
//   - coordinator.go: the ExperienceCoordinator state machine (per-request
//     decisions and run-boundary training)
//
// # Architecture
//
// The sched package defines the data model and the boundaries; the
// implementations that touch the outside world live in sub-packages:
//   - sched/transport/: DecisionTransport (REQ/REP) and TelemetryChannel (PUB/SUB)
//   - sched/catalog/: SessionCatalog of (topology, workload graph) runs
//   - sched/policy/: built-in Policy/Trainer implementations
//   - sched/driver/: environment driver that runs one workload per run
//   - sched/trace/: decision and run trace recording
//   - sched/metrics/: Prometheus instrumentation
//
// # Key Interfaces
//
//   - Policy: select a path for the current StateVector
//   - Trainer: compute and apply gradients, checkpoint the model
//   - SessionSource: enumerate runs (implemented by catalog.Catalog)
//   - EnvironmentDriver: start the workload for one run
//   - TelemetrySource: atomically drain completion records at a run boundary
package sched
