//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// RealWatcher watches the encoder and button through the Linux GPIO
// character device. gpiocdev invokes the event handler from its own
// goroutine; the events channel is the only path from there to the caller.
type RealWatcher struct {
	lines     *gpiocdev.Lines
	offsets   [3]int // indexed by Line
	activeLow bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	// raw levels as last reported by the kernel, indexed by Line
	mu  sync.Mutex
	raw [3]bool

	// kernel edge timestamps are CLOCK_MONOTONIC; these anchor them to wall time
	wallBase time.Time
	monoBase time.Duration
}

// NewRealWatcher requests the three lines as inputs with both-edge
// detection.
func NewRealWatcher(cfg Config) (*RealWatcher, error) {
	bias, err := biasOption(cfg.Pull)
	if err != nil {
		return nil, err
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 256
	}

	w := &RealWatcher{
		offsets:   [3]int{cfg.PinA, cfg.PinB, cfg.PinButton},
		activeLow: cfg.ButtonActiveLow,
		events:    make(chan Event, queue),
		done:      make(chan struct{}),
	}
	if err := w.anchorClock(); err != nil {
		return nil, err
	}

	// Hold mu until the initial levels are in place so the handler cannot
	// emit an event computed from zero levels.
	w.mu.Lock()
	lines, err := gpiocdev.RequestLines(cfg.Chip, w.offsets[:],
		gpiocdev.AsInput,
		bias,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer("volume-knob"),
		gpiocdev.WithEventHandler(w.handle),
	)
	if err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("request lines %v on %s: %w", w.offsets, cfg.Chip, err)
	}
	w.lines = lines

	vals := make([]int, len(w.offsets))
	if err := lines.Values(vals); err != nil {
		w.mu.Unlock()
		lines.Close()
		return nil, fmt.Errorf("read initial levels: %w", err)
	}
	for i, v := range vals {
		w.raw[i] = v != 0
	}
	w.mu.Unlock()

	return w, nil
}

func biasOption(pull string) (gpiocdev.LineReqOption, error) {
	switch pull {
	case PullUp, "":
		return gpiocdev.WithPullUp, nil
	case PullDown:
		return gpiocdev.WithPullDown, nil
	case PullNone:
		return gpiocdev.WithBiasDisabled, nil
	}
	return nil, fmt.Errorf("unknown pull mode %q", pull)
}

func (w *RealWatcher) anchorClock() error {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fmt.Errorf("read monotonic clock: %w", err)
	}
	w.wallBase = time.Now()
	w.monoBase = time.Duration(ts.Nano())
	return nil
}

// handle runs on the gpiocdev watcher goroutine.
func (w *RealWatcher) handle(le gpiocdev.LineEvent) {
	line, ok := w.lineFor(le.Offset)
	if !ok {
		return
	}
	rising := le.Type == gpiocdev.LineEventRisingEdge

	w.mu.Lock()
	w.raw[line] = rising
	ev := Event{
		Line:   line,
		Rising: rising,
		Levels: w.levelsLocked(),
		Time:   w.wallBase.Add(le.Timestamp - w.monoBase),
	}
	w.mu.Unlock()

	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *RealWatcher) lineFor(offset int) (Line, bool) {
	for i, o := range w.offsets {
		if o == offset {
			return Line(i), true
		}
	}
	return 0, false
}

func (w *RealWatcher) levelsLocked() Levels {
	return Levels{
		A:       w.raw[LineA],
		B:       w.raw[LineB],
		Pressed: pressed(w.raw[LineButton], w.activeLow),
	}
}

// Events returns the edge queue.
func (w *RealWatcher) Events() <-chan Event {
	return w.events
}

// Read samples all three lines from the kernel.
func (w *RealWatcher) Read() (Levels, error) {
	vals := make([]int, len(w.offsets))
	if err := w.lines.Values(vals); err != nil {
		return Levels{}, fmt.Errorf("read lines: %w", err)
	}
	return Levels{
		A:       vals[LineA] != 0,
		B:       vals[LineB] != 0,
		Pressed: pressed(vals[LineButton] != 0, w.activeLow),
	}, nil
}

// Close releases the lines. Pending events are discarded and the handler
// is released if it is blocked on a full queue.
func (w *RealWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.lines != nil {
			if cerr := w.lines.Close(); cerr != nil {
				err = fmt.Errorf("close lines: %w", cerr)
			}
		}
	})
	return err
}
