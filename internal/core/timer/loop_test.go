package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoop_FiresInOrder(t *testing.T) {
	l := NewLoop()
	defer func() { _ = l.Close() }()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i, d := range []time.Duration{30, 10, 20} {
		i := i
		l.After(d*time.Millisecond, func() {
			mu.Lock()
			got = append(got, i)
			n := len(got)
			mu.Unlock()
			if n == 3 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callbacks did not fire")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 0}, got)
}

func TestLoop_Cancel(t *testing.T) {
	l := NewLoop()
	defer func() { _ = l.Close() }()

	fired := make(chan struct{}, 1)
	h := l.After(50*time.Millisecond, func() { fired <- struct{}{} })
	require.True(t, h.Cancel())

	select {
	case <-fired:
		t.Fatal("cancelled callback fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestLoop_Do(t *testing.T) {
	l := NewLoop()
	ran := false
	assert.True(t, l.Do(func() { ran = true }))
	assert.True(t, ran)

	require.NoError(t, l.Close())
	assert.False(t, l.Do(func() {}))
}

func TestLoop_CloseDropsPending(t *testing.T) {
	l := NewLoop()
	l.After(time.Hour, func() {})
	l.After(time.Hour, func() {})
	assert.Equal(t, 2, l.Pending())

	require.NoError(t, l.Close())
	assert.Equal(t, 0, l.Pending())
}
