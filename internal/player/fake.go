package player

import (
	"context"
	"fmt"
)

// Call is one recorded call on a FakePlayer.
type Call struct {
	Method string // "SetVolume", "SetMute", "TogglePause", "State"
	Volume int
	Muted  bool
}

func (c Call) String() string {
	switch c.Method {
	case "SetVolume":
		return fmt.Sprintf("SetVolume(%d)", c.Volume)
	case "SetMute":
		return fmt.Sprintf("SetMute(%v)", c.Muted)
	}
	return c.Method + "()"
}

// FakePlayer is a test double that records calls and mirrors them into
// its own State.
type FakePlayer struct {
	// Calls contains every call in order, including failed ones.
	Calls []Call

	// Current is the state the fake reports and mutates on success.
	Current State

	// Err, if set, is returned by every call.
	Err error

	// SetVolumeError, SetMuteError, TogglePauseError and StateError
	// override Err for a single method.
	SetVolumeError   error
	SetMuteError     error
	TogglePauseError error
	StateError       error

	// Paused tracks TogglePause calls.
	Paused bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePlayer creates a FakePlayer starting at the given state.
func NewFakePlayer(initial State) *FakePlayer {
	return &FakePlayer{Current: initial}
}

// SetVolume records the call.
func (f *FakePlayer) SetVolume(ctx context.Context, percent int) error {
	f.Calls = append(f.Calls, Call{Method: "SetVolume", Volume: percent})
	if err := f.fail(f.SetVolumeError); err != nil {
		return err
	}
	f.Current.Volume = percent
	return nil
}

// SetMute records the call.
func (f *FakePlayer) SetMute(ctx context.Context, muted bool) error {
	f.Calls = append(f.Calls, Call{Method: "SetMute", Muted: muted})
	if err := f.fail(f.SetMuteError); err != nil {
		return err
	}
	f.Current.Muted = muted
	return nil
}

// TogglePause records the call.
func (f *FakePlayer) TogglePause(ctx context.Context) error {
	f.Calls = append(f.Calls, Call{Method: "TogglePause"})
	if err := f.fail(f.TogglePauseError); err != nil {
		return err
	}
	f.Paused = !f.Paused
	return nil
}

// State records the call and returns Current.
func (f *FakePlayer) State(ctx context.Context) (State, error) {
	f.Calls = append(f.Calls, Call{Method: "State"})
	if err := f.fail(f.StateError); err != nil {
		return State{}, err
	}
	return f.Current, nil
}

// Close marks the player as closed.
func (f *FakePlayer) Close() error {
	f.Closed = true
	return nil
}

// CallsTo returns the recorded calls for one method.
func (f *FakePlayer) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls and injected errors.
func (f *FakePlayer) Reset() {
	f.Calls = nil
	f.Err = nil
	f.SetVolumeError = nil
	f.SetMuteError = nil
	f.TogglePauseError = nil
	f.StateError = nil
	f.Closed = false
}

func (f *FakePlayer) fail(specific error) error {
	if specific != nil {
		return specific
	}
	return f.Err
}
