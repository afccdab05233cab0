// Package metrics exposes stranger-relay's Prometheus collectors.
//
// A single Metrics value is handed to every component that reports:
//
//   - omegle.Client via Options.Recorder (per-endpoint request counts and latency)
//   - relay.Orchestrator as an Observer (joint session starts, ends, duration)
//   - relay.Orchestrator as its TrafficRecorder (Envelopes in and out, notices)
//
// Collectors live on their own registry so tests can build as many Metrics
// as they need. Serve exposes the registry over HTTP.
//
// Hosts running in subprocesses do not report request metrics.
package metrics
