package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every read
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(step)
		return current
	}
}

func TestAuditor_StopIsIdempotent(t *testing.T) {
	a := New(WithClock(fakeClock(time.Unix(0, 0), 5*time.Millisecond)))
	a.Start()

	first := a.Stop()
	require.Greater(t, first, time.Duration(0))

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.Stop())
	}
	assert.Equal(t, first, a.Elapsed())
	assert.Equal(t, first.Milliseconds(), a.ElapsedMillis())
	assert.True(t, a.Stopped())
}

func TestAuditor_StartOnlyOnce(t *testing.T) {
	a := New(WithClock(fakeClock(time.Unix(0, 0), time.Millisecond)))
	a.Start()
	a.Start()
	a.Start()

	// created (1ms), start (2ms), stop (3ms)
	assert.Equal(t, 1*time.Millisecond, a.Stop())
}

func TestAuditor_AppendAutoStarts(t *testing.T) {
	a := New(WithClock(fakeClock(time.Unix(0, 0), time.Millisecond)))
	a.Append(true, "first")
	a.Appendf(false, "second %d", 2)

	entries := a.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Text)
	assert.True(t, entries[0].Timed)
	assert.Equal(t, "second 2", entries[1].Text)
	assert.False(t, entries[1].Timed)

	// The timer was already running, so Start must not move it
	a.Start()
	assert.Greater(t, a.Stop(), time.Duration(0))
}

func TestAuditor_Lines(t *testing.T) {
	a := New(WithClock(fakeClock(time.Unix(0, 0), 10*time.Millisecond)))
	a.Start()
	a.Append(true, "handshake")
	a.Append(false, "plain")

	lines := a.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "+10ms handshake", lines[0])
	assert.Equal(t, "plain", lines[1])
	assert.Equal(t, "+10ms handshake\nplain", a.String())
}

func TestAuditor_ElapsedBeforeStop(t *testing.T) {
	a := New()
	a.Start()
	assert.Equal(t, time.Duration(0), a.Elapsed())
	assert.False(t, a.Stopped())
}

func TestAuditor_ConcurrentAppend(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a.Appendf(true, "entry %d", n)
		}(i)
	}
	wg.Wait()

	assert.Len(t, a.Entries(), 50)
}
