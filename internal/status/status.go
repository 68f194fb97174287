// Package status provides a thread-safe status tracker for the volume-knob daemon.
// It is written by the run loop and read by HTTP handlers and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/volume-knob/internal/dispatch"
	"github.com/sweeney/volume-knob/internal/logic"
	"github.com/sweeney/volume-knob/internal/player"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend   string
	PlayerURL string

	PinA      int
	PinB      int
	PinButton int

	Step              int
	StepsPerDetent    int
	RateLimitMs       int64
	EncoderDebounceMs int64
	LongPressMs       int64
	ButtonDebounceMs  int64
	TimeoutMs         int64
	ResyncMs          int64
	HeartbeatMs       int64

	Broker   string
	HTTPAddr string
}

// LastAction summarizes the most recent dispatch outcome.
type LastAction struct {
	Time   time.Time
	Intent logic.IntentKind
	Action dispatch.Action
	Error  string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Player        player.State // the dispatcher's mirror
	Synced        bool
	ButtonPressed bool
	Intents       logic.IntentCounts
	Decoder       logic.DecoderCounts
	Dispatch      dispatch.Stats
	Last          *LastAction
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update copies the run loop's view of the core components.
func (t *Tracker) Update(state player.State, synced, buttonPressed bool, intents logic.IntentCounts, decoder logic.DecoderCounts, stats dispatch.Stats) {
	t.mu.Lock()
	t.snap.Player = state
	t.snap.Synced = synced
	t.snap.ButtonPressed = buttonPressed
	t.snap.Intents = intents
	t.snap.Decoder = decoder
	t.snap.Dispatch = stats
	t.mu.Unlock()
}

// RecordOutcome remembers o as the last action.
func (t *Tracker) RecordOutcome(o dispatch.Outcome) {
	last := &LastAction{Time: o.Time, Intent: o.Intent, Action: o.Action}
	if o.Err != nil {
		last.Error = o.Err.Error()
	}
	t.mu.Lock()
	t.snap.Last = last
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	s.Now = time.Now()
	return s
}
