//go:build !linux

package gpio

import "errors"

// RealWatcher is not available on non-Linux platforms.
type RealWatcher struct{}

// NewRealWatcher returns an error on non-Linux platforms.
func NewRealWatcher(cfg Config) (*RealWatcher, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Events returns a nil channel on non-Linux platforms.
func (w *RealWatcher) Events() <-chan Event {
	return nil
}

// Read is not implemented on non-Linux platforms.
func (w *RealWatcher) Read() (Levels, error) {
	return Levels{}, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (w *RealWatcher) Close() error {
	return nil
}
