// Package logic contains the pure input-decoding logic for the volume knob.
// This package has NO external dependencies (no GPIO, network, OS, or time.Sleep).
// Time is always injectable via the timestamps carried on each Edge.
package logic

import "time"

// Line identifies one of the monitored input lines.
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
	return "UNKNOWN"
}

// EdgeType is the kind of transition observed on a line.
type EdgeType string

const (
	EdgeRising  EdgeType = "RISING"
	EdgeFalling EdgeType = "FALLING"
)

// Edge is a single edge notification, already in logical form.
// A and B are the levels of both encoder lines sampled at edge time;
// Pressed is the logical button state (active-low inversion already applied).
type Edge struct {
	Line    Line
	Type    EdgeType
	A       bool
	B       bool
	Pressed bool
	Time    time.Time
}

// Direction of a rotation tick.
type Direction int

const (
	CW  Direction = 1
	CCW Direction = -1
)

func (d Direction) String() string {
	if d == CW {
		return "CW"
	}
	return "CCW"
}

// Tick is one detent of rotation.
type Tick struct {
	Direction Direction
	Time      time.Time
}

// IntentKind tags an Intent.
type IntentKind string

const (
	VolumeUp    IntentKind = "VOLUME_UP"
	VolumeDown  IntentKind = "VOLUME_DOWN"
	ToggleMute  IntentKind = "TOGGLE_MUTE"
	TogglePause IntentKind = "TOGGLE_PAUSE"
)

// Intent is a decoded user action.
type Intent struct {
	Kind IntentKind
	Time time.Time
}

// IsVolume reports whether the intent adjusts volume.
func (i Intent) IsVolume() bool {
	return i.Kind == VolumeUp || i.Kind == VolumeDown
}

// DecoderCounts tracks what the decoder did with encoder edges since startup.
type DecoderCounts struct {
	Accepted int // edges that passed debounce and matched a valid transition
	Bounced  int // edges discarded by the debounce interval
	Invalid  int // edges discarded as non-adjacent transitions
	Ticks    int
}

// IntentCounts tracks the number of each intent produced since startup.
type IntentCounts struct {
	VolumeUp    int
	VolumeDown  int
	ToggleMute  int
	TogglePause int
}

// Add increments the counter for kind.
func (c *IntentCounts) Add(kind IntentKind) {
	switch kind {
	case VolumeUp:
		c.VolumeUp++
	case VolumeDown:
		c.VolumeDown++
	case ToggleMute:
		c.ToggleMute++
	case TogglePause:
		c.TogglePause++
	}
}
