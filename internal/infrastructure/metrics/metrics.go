package metrics

import (
	"expvar"
)

// Sequencer metrics.
var (
	runsStarted       = new(expvar.Int)
	runsFinished      = new(expvar.Int)
	transfersDeparted = new(expvar.Int)
	transfersArrived  = new(expvar.Int)
	staleCallbacks    = new(expvar.Int)
	inFlightTransfers = new(expvar.Int)
	hubDroppedEvents  = new(expvar.Int)
	hubSubscribers    = new(expvar.Int)
)

// Journal metrics keyed by backend ("memory", "sqlite", "postgres").
var (
	checkpointsSaved = expvar.NewMap("agentflow_checkpoints_saved_total")
	checkpointErrors = expvar.NewMap("agentflow_checkpoint_errors_total")
)

func init() {
	expvar.Publish("agentflow_runs_started_total", runsStarted)
	expvar.Publish("agentflow_runs_finished_total", runsFinished)
	expvar.Publish("agentflow_transfers_departed_total", transfersDeparted)
	expvar.Publish("agentflow_transfers_arrived_total", transfersArrived)
	expvar.Publish("agentflow_stale_callbacks_total", staleCallbacks)
	expvar.Publish("agentflow_inflight_transfers", inFlightTransfers)
	expvar.Publish("agentflow_hub_dropped_events_total", hubDroppedEvents)
	expvar.Publish("agentflow_hub_subscribers", hubSubscribers)
}

// Sequencer helpers
func IncRunsStarted()       { runsStarted.Add(1) }
func IncRunsFinished()      { runsFinished.Add(1) }
func IncTransfersDeparted() { transfersDeparted.Add(1) }
func IncTransfersArrived()  { transfersArrived.Add(1) }
func IncStaleCallbacks()    { staleCallbacks.Add(1) }
func SetInFlight(n int)     { inFlightTransfers.Set(int64(n)) }

// Hub helpers
func IncHubDropped()          { hubDroppedEvents.Add(1) }
func SetHubSubscribers(n int) { hubSubscribers.Set(int64(n)) }

// Journal helpers
func CheckpointSaved(backend string) { checkpointsSaved.Add(backend, 1) }
func CheckpointError(backend string) { checkpointErrors.Add(backend, 1) }

// Value returns the current value of a published scalar metric, or 0.
func Value(name string) int64 {
	if v, ok := expvar.Get(name).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}
