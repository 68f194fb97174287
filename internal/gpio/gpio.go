// Package gpio watches the encoder and button lines for edges.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"time"
)

// Line identifies a watched input.
type Line int

const (
	LineA Line = iota
	LineB
	LineButton
)

func (l Line) String() string {
	switch l {
	case LineA:
		return "A"
	case LineB:
		return "B"
	case LineButton:
		return "BUTTON"
	}
	return fmt.Sprintf("Line(%d)", int(l))
}

// Levels is a sample of all three lines in logical form.
// Pressed already has the button's active level applied.
type Levels struct {
	A       bool
	B       bool
	Pressed bool
}

// Event is one edge on one line, with the levels of all lines as they
// stood immediately after the edge.
type Event struct {
	Line   Line
	Rising bool
	Levels
	Time time.Time
}

// Watcher delivers edge events in arrival order.
type Watcher interface {
	// Events returns the edge queue. Events are delivered in the order
	// the kernel reported them.
	Events() <-chan Event

	// Read samples all three lines synchronously.
	Read() (Levels, error)

	// Close releases GPIO resources and stops event delivery.
	Close() error
}

// Pin definitions (BCM numbering), matching the common KY-040 wiring.
const (
	DefaultPinA      = 13 // CLK
	DefaultPinB      = 6  // DT
	DefaultPinButton = 5  // SW
)

// Pull resistor modes.
const (
	PullUp   = "up"
	PullDown = "down"
	PullNone = "none"
)

// Config selects the chip, pins and electrical options.
type Config struct {
	Chip            string // e.g. "gpiochip0"
	PinA            int
	PinB            int
	PinButton       int
	Pull            string
	ButtonActiveLow bool // true when the switch pulls the line to ground
	QueueSize       int  // capacity of the events channel
}

// DefaultConfig returns the stock Raspberry Pi wiring.
func DefaultConfig() Config {
	return Config{
		Chip:            "gpiochip0",
		PinA:            DefaultPinA,
		PinB:            DefaultPinB,
		PinButton:       DefaultPinButton,
		Pull:            PullUp,
		ButtonActiveLow: true,
		QueueSize:       256,
	}
}

// pressed converts a raw button level into the logical pressed state.
func pressed(raw, activeLow bool) bool {
	if activeLow {
		return !raw
	}
	return raw
}
