package timer

import (
	"sync"
	"time"
)

// Virtual is a manually advanced scheduler for deterministic tests and
// offline simulation. Callbacks run synchronously on the goroutine calling
// Advance.
type Virtual struct {
	q   *queue
	mu  sync.Mutex
	now time.Time
}

// NewVirtual creates a virtual scheduler starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{q: newQueue(), now: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// After schedules fn at Now()+d.
func (v *Virtual) After(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	return v.q.push(v.Now().Add(d), fn)
}

// Advance moves the clock forward by d, firing every callback that becomes
// due, including callbacks scheduled by other callbacks within the window.
// It returns the number of callbacks fired.
func (v *Virtual) Advance(d time.Duration) int {
	return v.AdvanceTo(v.Now().Add(d))
}

// AdvanceTo moves the clock to t (never backwards) firing due callbacks.
func (v *Virtual) AdvanceTo(t time.Time) int {
	fired := 0
	for {
		at, ok := v.q.next()
		if !ok || at.After(t) {
			break
		}
		e := v.q.popDue(at)
		if e == nil {
			continue
		}
		v.setNow(at)
		e.fn()
		fired++
	}
	v.setNow(t)
	return fired
}

// RunUntilIdle fires callbacks until the queue is empty or limit callbacks
// have run. A limit of zero means no limit.
func (v *Virtual) RunUntilIdle(limit int) int {
	fired := 0
	for limit == 0 || fired < limit {
		at, ok := v.q.next()
		if !ok {
			break
		}
		e := v.q.popDue(at)
		if e == nil {
			continue
		}
		v.setNow(at)
		e.fn()
		fired++
	}
	return fired
}

// Pending returns the number of scheduled callbacks.
func (v *Virtual) Pending() int {
	return v.q.len()
}

func (v *Virtual) setNow(t time.Time) {
	v.mu.Lock()
	if t.After(v.now) {
		v.now = t
	}
	v.mu.Unlock()
}
