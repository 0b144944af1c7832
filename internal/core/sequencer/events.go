package sequencer

import "time"

// EventType identifies a state transition of a run
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventTransferDeparted EventType = "transfer_departed"
	EventTransferArrived  EventType = "transfer_arrived"
	EventNodeCompleted    EventType = "node_completed"
	EventTick             EventType = "tick"
	EventRunFinished      EventType = "run_finished"
	EventResultReady      EventType = "result_ready"
)

// Event is emitted to listeners after the state change it describes.
type Event struct {
	Type       EventType          `json:"type"`
	Generation uint64             `json:"generation"`
	RunID      string             `json:"run_id"`
	At         time.Time          `json:"at"`
	Elapsed    time.Duration      `json:"elapsed"`
	Node       string             `json:"node,omitempty"`
	Transfer   *ScheduledTransfer `json:"transfer,omitempty"`
	Result     any                `json:"result,omitempty"`
}

// Listener receives sequencer events and must not block. Timed events are
// delivered on the scheduler goroutine, run_started on the goroutine that
// called StartRun. Events of a superseded run may still arrive after a newer
// run_started, so consumers that care filter by Generation.
type Listener func(Event)
