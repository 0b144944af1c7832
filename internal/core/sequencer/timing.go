package sequencer

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/agentflow/agentflow/internal/core/graph"
)

// Timing bounds the randomized pacing of a run.
type Timing struct {
	// InitialOffset is the start offset of the first transfer.
	InitialOffset time.Duration `json:"initial_offset" yaml:"initial_offset"`
	// StaggerMin and StaggerMax bound the gap added between consecutive
	// transfer start offsets.
	StaggerMin time.Duration `json:"stagger_min" yaml:"stagger_min"`
	StaggerMax time.Duration `json:"stagger_max" yaml:"stagger_max"`
	// TravelMin and TravelMax bound how long one transfer stays in flight.
	TravelMin time.Duration `json:"travel_min" yaml:"travel_min"`
	TravelMax time.Duration `json:"travel_max" yaml:"travel_max"`
	// SettleDelay separates the finish of a run from the result payload.
	SettleDelay time.Duration `json:"settle_delay" yaml:"settle_delay"`
	// TickInterval is the period of the elapsed-time ticker.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
	// Layered plans in waves: every transfer into a column departs
	// together, one column after another, and stagger bounds are ignored.
	Layered bool `json:"layered,omitempty" yaml:"layered,omitempty"`
	// LayerGap separates the landing of one wave from the next departure.
	LayerGap time.Duration `json:"layer_gap,omitempty" yaml:"layer_gap,omitempty"`
}

// DefaultTiming returns the pacing of the classic claim pipeline page.
func DefaultTiming() Timing {
	return Timing{
		InitialOffset: 500 * time.Millisecond,
		StaggerMin:    600 * time.Millisecond,
		StaggerMax:    1200 * time.Millisecond,
		TravelMin:     1800 * time.Millisecond,
		TravelMax:     3000 * time.Millisecond,
		SettleDelay:   500 * time.Millisecond,
		TickInterval:  100 * time.Millisecond,
	}
}

// Validate checks that every bound is usable.
func (t Timing) Validate() error {
	switch {
	case t.InitialOffset < 0, t.StaggerMin < 0, t.SettleDelay < 0, t.LayerGap < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidTiming)
	case t.StaggerMax < t.StaggerMin:
		return fmt.Errorf("%w: stagger max %v below min %v", ErrInvalidTiming, t.StaggerMax, t.StaggerMin)
	case t.TravelMin <= 0:
		return fmt.Errorf("%w: travel min must be positive", ErrInvalidTiming)
	case t.TravelMax < t.TravelMin:
		return fmt.Errorf("%w: travel max %v below min %v", ErrInvalidTiming, t.TravelMax, t.TravelMin)
	case t.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidTiming)
	}
	return nil
}

// Random is the only source of randomness used by the sequencer.
// *rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

// NewRandom returns a deterministic source for seed.
func NewRandom(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// uniform draws from [min, max).
func uniform(rng Random, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Float64()*float64(max-min))
}

// ScheduledTransfer carries the timing of one edge traversal in one run.
type ScheduledTransfer struct {
	ID             string        `json:"id"`
	Index          int           `json:"index"`
	From           string        `json:"from"`
	To             string        `json:"to"`
	StartOffset    time.Duration `json:"start_offset"`
	TravelDuration time.Duration `json:"travel_duration"`
}

// ArrivalOffset is the offset from run start at which the transfer lands.
func (t ScheduledTransfer) ArrivalOffset() time.Duration {
	return t.StartOffset + t.TravelDuration
}

// Progress returns how far along its edge the transfer is at offset.
func (t ScheduledTransfer) Progress(offset time.Duration) float64 {
	if offset <= t.StartOffset {
		return 0
	}
	if offset >= t.ArrivalOffset() || t.TravelDuration <= 0 {
		return 1
	}
	return float64(offset-t.StartOffset) / float64(t.TravelDuration)
}

// Plan assigns a start offset and travel duration to every edge. Start
// offsets are cumulative so transfers depart as a staggered cascade.
func (t Timing) Plan(edges []*graph.Edge, rng Random) []ScheduledTransfer {
	plan := make([]ScheduledTransfer, 0, len(edges))
	offset := t.InitialOffset
	for i, e := range edges {
		plan = append(plan, ScheduledTransfer{
			ID:             fmt.Sprintf("%s-%s-%d", e.From, e.To, i),
			Index:          i,
			From:           e.From,
			To:             e.To,
			StartOffset:    offset,
			TravelDuration: uniform(rng, t.TravelMin, t.TravelMax),
		})
		offset += uniform(rng, t.StaggerMin, t.StaggerMax)
	}
	return plan
}

// PlanLayers assigns offsets wave by wave. Transfers are grouped by the
// column of their destination; the wave of the lowest destination column
// departs at InitialOffset and each later column waits one full travel
// window plus LayerGap. Travel durations are still drawn per transfer.
func (t Timing) PlanLayers(edges []*graph.Edge, columns map[string]int, rng Random) []ScheduledTransfer {
	plan := make([]ScheduledTransfer, 0, len(edges))
	if len(edges) == 0 {
		return plan
	}
	first := columns[edges[0].To]
	for _, e := range edges[1:] {
		if c := columns[e.To]; c < first {
			first = c
		}
	}
	slot := t.TravelMax + t.LayerGap
	for i, e := range edges {
		wave := time.Duration(columns[e.To] - first)
		plan = append(plan, ScheduledTransfer{
			ID:             fmt.Sprintf("%s-%s-%d", e.From, e.To, i),
			Index:          i,
			From:           e.From,
			To:             e.To,
			StartOffset:    t.InitialOffset + wave*slot,
			TravelDuration: uniform(rng, t.TravelMin, t.TravelMax),
		})
	}
	return plan
}

// FormatElapsed renders d as m:ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
