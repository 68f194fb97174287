// Package player talks to the media player that the knob controls.
// The Volumio implementation uses its REST API, the CamillaDSP
// implementation its websocket API, and the fake records calls for tests.
package player

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every failed endpoint call (timeout, refused
// connection, non-success response).
var ErrUnavailable = errors.New("player unavailable")

// ErrUnsupported is returned when a backend has no equivalent for an action.
var ErrUnsupported = errors.New("action not supported by player backend")

// State is the player's volume and mute state.
type State struct {
	Volume int // percent, 0-100
	Muted  bool
}

// Controller is the player control endpoint.
// Every call must return or time out within the deadline carried by ctx.
type Controller interface {
	// SetVolume sets the absolute volume in percent (0-100).
	SetVolume(ctx context.Context, percent int) error

	// SetMute sets the mute flag.
	SetMute(ctx context.Context, muted bool) error

	// TogglePause toggles between play and pause.
	TogglePause(ctx context.Context) error

	// State reads the player's current volume and mute state.
	State(ctx context.Context) (State, error)

	// Close releases any connection held by the controller.
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendVolumio    = "volumio"
	BackendCamillaDSP = "camilladsp"
)

// ClampVolume limits v to [0,100].
func ClampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
