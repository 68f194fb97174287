package gpio

import (
	"sync"
	"time"
)

// cwSequence is one full clockwise cycle of (A,B) codes starting from rest
// with both lines high (pull-up wiring).
var cwSequence = []Levels{
	{A: false, B: true},
	{A: false, B: false},
	{A: true, B: false},
	{A: true, B: true},
}

// FakeWatcher is a test double that delivers scripted edge events.
type FakeWatcher struct {
	events chan Event

	mu        sync.Mutex
	levels    Levels
	readError error
	closed    bool
}

// NewFakeWatcher creates a FakeWatcher at rest (A and B high, button
// released) whose queue holds up to buffer events.
func NewFakeWatcher(buffer int) *FakeWatcher {
	return &FakeWatcher{
		events: make(chan Event, buffer),
		levels: Levels{A: true, B: true},
	}
}

// Events returns the scripted queue.
func (f *FakeWatcher) Events() <-chan Event {
	return f.events
}

// Emit queues ev and records its levels as the current ones.
// It blocks if the queue is full.
func (f *FakeWatcher) Emit(ev Event) {
	f.mu.Lock()
	f.levels = ev.Levels
	f.mu.Unlock()
	f.events <- ev
}

// Rotate emits the edges of n detents (clockwise if cw) starting at the
// current levels, gap apart from start. It returns the time of the last edge.
func (f *FakeWatcher) Rotate(cw bool, n int, start time.Time, gap time.Duration) time.Time {
	at := start
	for i := 0; i < n; i++ {
		for j := range cwSequence {
			idx := j
			if !cw {
				// reverse order, finishing back at rest
				idx = (len(cwSequence) - 2 - j + len(cwSequence)) % len(cwSequence)
			}
			next := cwSequence[idx]

			f.mu.Lock()
			cur := f.levels
			f.mu.Unlock()

			next.Pressed = cur.Pressed
			line := LineA
			rising := next.A
			if next.A == cur.A {
				line = LineB
				rising = next.B
			}
			f.Emit(Event{Line: line, Rising: rising, Levels: next, Time: at})
			at = at.Add(gap)
		}
	}
	return at.Add(-gap)
}

// Press emits a button press at start and its release hold later.
func (f *FakeWatcher) Press(start time.Time, hold time.Duration) {
	f.mu.Lock()
	lv := f.levels
	f.mu.Unlock()

	lv.Pressed = true
	f.Emit(Event{Line: LineButton, Rising: false, Levels: lv, Time: start})
	lv.Pressed = false
	f.Emit(Event{Line: LineButton, Rising: true, Levels: lv, Time: start.Add(hold)})
}

// SetLevels sets the levels returned by Read.
func (f *FakeWatcher) SetLevels(l Levels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = l
}

// SetReadError makes Read fail with err.
func (f *FakeWatcher) SetReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readError = err
}

// Read returns the current levels.
func (f *FakeWatcher) Read() (Levels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readError != nil {
		return Levels{}, f.readError
	}
	return f.levels, nil
}

// Close marks the watcher as closed.
func (f *FakeWatcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeWatcher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
