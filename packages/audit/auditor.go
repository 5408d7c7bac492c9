package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is a single line in the audit log
type Entry struct {
	At    time.Time
	Timed bool
	Text  string
}

// Auditor is an append-only, timestamped event log with a single timer.
type Auditor struct {
	mu        sync.Mutex
	now       func() time.Time
	createdAt time.Time
	startedAt time.Time
	stoppedAt time.Time
	elapsed   time.Duration
	started   bool
	stopped   bool
	entries   []Entry
}

type Option func(*Auditor)

// WithClock replaces the time source, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

func New(opts ...Option) *Auditor {
	a := &Auditor{
		now:     time.Now,
		entries: make([]Entry, 0, 16),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.createdAt = a.now()
	return a
}

// Start records the start time. Only the first call has an effect.
func (a *Auditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startLocked()
}

func (a *Auditor) startLocked() {
	if a.started {
		return
	}
	a.started = true
	a.startedAt = a.now()
}

// Stop computes the elapsed time on its first call and returns the cached
// value on every call after that.
func (a *Auditor) Stop() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return a.elapsed
	}
	a.startLocked()
	a.stopped = true
	a.stoppedAt = a.now()
	a.elapsed = a.stoppedAt.Sub(a.startedAt)
	return a.elapsed
}

// Append adds a line to the log, starting the timer if needed.
func (a *Auditor) Append(timed bool, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.startLocked()
	a.entries = append(a.entries, Entry{
		At:    a.now(),
		Timed: timed,
		Text:  text,
	})
}

// Appendf is the formatted variant of Append
func (a *Auditor) Appendf(timed bool, format string, args ...any) {
	a.Append(timed, fmt.Sprintf(format, args...))
}

// Elapsed returns the duration computed by Stop, or zero before Stop.
func (a *Auditor) Elapsed() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.elapsed
}

func (a *Auditor) ElapsedMillis() int64 {
	return a.Elapsed().Milliseconds()
}

func (a *Auditor) Stopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *Auditor) CreatedAt() time.Time {
	return a.createdAt
}

// Entries returns a copy of the log
func (a *Auditor) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Lines renders every entry. Timed entries are prefixed with their offset
// from the start time.
func (a *Auditor) Lines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		if e.Timed {
			lines = append(lines, fmt.Sprintf("+%dms %s", e.At.Sub(a.startedAt).Milliseconds(), e.Text))
		} else {
			lines = append(lines, e.Text)
		}
	}
	return lines
}

func (a *Auditor) String() string {
	return strings.Join(a.Lines(), "\n")
}
