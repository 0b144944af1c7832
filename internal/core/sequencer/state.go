// Package sequencer implements the timed state machine that animates a
// pipeline run: transfers depart and arrive on a single event queue, nodes
// complete once all of their inputs have landed, and the run finishes when
// the terminal node has received every incoming transfer.
package sequencer

import (
	"sort"
	"time"
)

// Phase is the lifecycle state of a run
type Phase int

const (
	// PhaseIdle means no run has been started
	PhaseIdle Phase = iota
	// PhaseRunning means transfers are being scheduled and delivered
	PhaseRunning
	// PhaseFinished means the terminal node received all of its inputs
	PhaseFinished
	// PhaseHalted means the run was stopped before it finished
	PhaseHalted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	case PhaseHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// RunState is the mutable state of the current run. The sequencer owns the
// live value; callers only ever see copies from Snapshot.
type RunState struct {
	Generation       uint64                       `json:"generation"`
	RunID            string                       `json:"run_id"`
	Phase            Phase                        `json:"phase"`
	CompletedNodes   map[string]bool              `json:"completed_nodes"`
	ActiveNodes      map[string]bool              `json:"active_nodes"`
	InFlight         map[string]ScheduledTransfer `json:"in_flight"`
	Arrivals         map[string]int               `json:"arrivals"`
	StartedAt        time.Time                    `json:"started_at"`
	FinishedAt       time.Time                    `json:"finished_at"`
	Elapsed          time.Duration                `json:"elapsed"`
	TerminalArrivals int                          `json:"terminal_arrivals"`
	ProcessedCount   int                          `json:"processed_count"`
	ActiveColumn     int                          `json:"active_column"`
	ResultReady      bool                         `json:"result_ready"`
	Plan             []ScheduledTransfer          `json:"plan"`
}

func newRunState() *RunState {
	return &RunState{
		CompletedNodes: make(map[string]bool),
		ActiveNodes:    make(map[string]bool),
		InFlight:       make(map[string]ScheduledTransfer),
		Arrivals:       make(map[string]int),
	}
}

// Clone returns a deep copy of the state.
func (s *RunState) Clone() *RunState {
	c := *s
	c.CompletedNodes = make(map[string]bool, len(s.CompletedNodes))
	for k, v := range s.CompletedNodes {
		c.CompletedNodes[k] = v
	}
	c.ActiveNodes = make(map[string]bool, len(s.ActiveNodes))
	for k, v := range s.ActiveNodes {
		c.ActiveNodes[k] = v
	}
	c.InFlight = make(map[string]ScheduledTransfer, len(s.InFlight))
	for k, v := range s.InFlight {
		c.InFlight[k] = v
	}
	c.Arrivals = make(map[string]int, len(s.Arrivals))
	for k, v := range s.Arrivals {
		c.Arrivals[k] = v
	}
	c.Plan = append([]ScheduledTransfer(nil), s.Plan...)
	return &c
}

// HasStarted reports whether the state belongs to a started run
func (s *RunState) HasStarted() bool {
	return !s.StartedAt.IsZero()
}

// IsCompleted reports whether id has completed
func (s *RunState) IsCompleted(id string) bool {
	return s.CompletedNodes[id]
}

// IsActive reports whether id is processing
func (s *RunState) IsActive(id string) bool {
	return s.ActiveNodes[id]
}

// InFlightBetween reports whether a transfer is travelling from -> to
func (s *RunState) InFlightBetween(from, to string) bool {
	for _, tr := range s.InFlight {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}

// Completed returns completed node IDs in sorted order
func (s *RunState) Completed() []string {
	return sortedKeys(s.CompletedNodes)
}

// Active returns active node IDs in sorted order
func (s *RunState) Active() []string {
	return sortedKeys(s.ActiveNodes)
}

// Transfers returns in-flight transfers ordered by plan index
func (s *RunState) Transfers() []ScheduledTransfer {
	out := make([]ScheduledTransfer, 0, len(s.InFlight))
	for _, tr := range s.InFlight {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
