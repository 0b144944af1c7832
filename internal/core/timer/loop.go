package timer

import (
	"context"
	"sync"
	"time"
)

// Loop is a real-time scheduler. A single goroutine drains the queue so
// callbacks never run concurrently with each other.
type Loop struct {
	q      *queue
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoop starts a real-time loop. Close must be called to stop it.
func NewLoop() *Loop {
	return newLoop(time.Now)
}

func newLoop(now func() time.Time) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{q: newQueue(), now: now, ctx: ctx, cancel: cancel}
	l.wg.Add(1)
	go l.run()
	return l
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return l.now()
}

// After schedules fn on the loop goroutine after d.
func (l *Loop) After(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	return l.q.push(l.now().Add(d), fn)
}

// Do runs fn on the loop goroutine as soon as possible and waits for it.
// It returns false if the loop was closed before fn could run. Calling Do
// from a loop callback blocks until Close.
func (l *Loop) Do(fn func()) bool {
	done := make(chan struct{})
	h := l.After(0, func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return true
	case <-l.ctx.Done():
		h.Cancel()
		return false
	}
}

// Pending returns the number of scheduled callbacks.
func (l *Loop) Pending() int {
	return l.q.len()
}

// Close stops the loop and drops every pending callback.
func (l *Loop) Close() error {
	l.cancel()
	l.wg.Wait()
	l.q.clear()
	return nil
}

func (l *Loop) run() {
	defer l.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		// Fire everything that is due.
		for {
			if l.ctx.Err() != nil {
				return
			}
			e := l.q.popDue(l.now())
			if e == nil {
				break
			}
			e.fn()
		}

		wait := time.Hour
		if at, ok := l.q.next(); ok {
			wait = at.Sub(l.now())
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-l.ctx.Done():
			return
		case <-l.q.notify:
		case <-timer.C:
		}
	}
}
