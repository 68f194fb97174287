package logic

import (
	"iter"
	"time"
)

// ButtonState tracks the press half of a press/release cycle.
type ButtonState struct {
	Pressed   bool
	PressedAt time.Time
}

// Aggregator turns rotation ticks and button edges into Intents.
type Aggregator struct {
	decoder        *Decoder
	longPress      time.Duration
	buttonDebounce time.Duration

	button  ButtonState
	bounces int
	counts  IntentCounts
}

// NewAggregator creates an aggregator fed by decoder. A release at least
// longPress after its press yields ToggleMute, anything shorter TogglePause.
func NewAggregator(decoder *Decoder, longPress, buttonDebounce time.Duration) *Aggregator {
	return &Aggregator{
		decoder:        decoder,
		longPress:      longPress,
		buttonDebounce: buttonDebounce,
	}
}

// Rotate maps a tick to VolumeUp (CW) or VolumeDown (CCW).
func (a *Aggregator) Rotate(t Tick) Intent {
	kind := VolumeDown
	if t.Direction == CW {
		kind = VolumeUp
	}
	return a.emit(kind, t.Time)
}

// Button applies a button level change. Presses while already pressed and
// releases while idle are ignored. A release less than the debounce
// interval after its press closes a contact-bounce pair: the state returns
// to idle and no intent is emitted, so the level the switch settles on
// always decides the next cycle.
func (a *Aggregator) Button(pressed bool, at time.Time) (Intent, bool) {
	if pressed == a.button.Pressed {
		return Intent{}, false
	}
	if pressed {
		a.button = ButtonState{Pressed: true, PressedAt: at}
		return Intent{}, false
	}

	held := at.Sub(a.button.PressedAt)
	a.button = ButtonState{}
	if held < a.buttonDebounce {
		a.bounces++
		return Intent{}, false
	}
	if held >= a.longPress {
		return a.emit(ToggleMute, at), true
	}
	return a.emit(TogglePause, at), true
}

// Process routes an edge to the decoder or the button state machine.
func (a *Aggregator) Process(e Edge) (Intent, bool) {
	if e.Line == LineButton {
		return a.Button(e.Pressed, e.Time)
	}
	t, ok := a.decoder.Process(e)
	if !ok {
		return Intent{}, false
	}
	return a.Rotate(t), true
}

// Intents lazily yields the intents produced by edges, in order.
func (a *Aggregator) Intents(edges iter.Seq[Edge]) iter.Seq[Intent] {
	return func(yield func(Intent) bool) {
		for e := range edges {
			in, ok := a.Process(e)
			if !ok {
				continue
			}
			if !yield(in) {
				return
			}
		}
	}
}

// ButtonState returns the current button state.
func (a *Aggregator) ButtonState() ButtonState {
	return a.button
}

// Counts returns a copy of the intent counters.
func (a *Aggregator) Counts() IntentCounts {
	return a.counts
}

// ButtonBounces returns the number of press/release pairs discarded as
// contact bounce.
func (a *Aggregator) ButtonBounces() int {
	return a.bounces
}

// DecoderCounts returns the counters of the underlying decoder.
func (a *Aggregator) DecoderCounts() DecoderCounts {
	return a.decoder.Counts()
}

func (a *Aggregator) emit(kind IntentKind, at time.Time) Intent {
	a.counts.Add(kind)
	return Intent{Kind: kind, Time: at}
}
