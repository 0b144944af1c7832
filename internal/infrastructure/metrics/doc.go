// Package metrics exposes expvar-published counters and gauges used by the
// agentflow runtime (sequencer, journal and event hub). It intentionally
// avoids external dependencies and is consumed by agentflow-server for the
// /debug/vars and /metrics endpoints.
package metrics
