// Package mqtt publishes knob activity and lifecycle events to a broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/volume-knob/internal/dispatch"
)

// Topic is the MQTT topic for dispatch outcomes.
const Topic = "media/volume-knob/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "media/volume-knob/system"

// Publisher publishes events to MQTT. It is called from the input loop,
// so implementations must return without waiting on the broker.
type Publisher interface {
	// Publish sends one dispatch outcome to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(o dispatch.Outcome) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event: STARTUP, SHUTDOWN or HEARTBEAT.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // SIGTERM, SIGINT, MQTT_DISCONNECT (shutdown only)
	RawPayload []byte // pre-formatted status snapshot; returned as-is by FormatSystemPayload
	Retained   bool
}

// Payload is the message published for each dispatch outcome.
type Payload struct {
	Knob KnobPayload `json:"knob"`
}

// KnobPayload describes one player call (or suppressed call).
type KnobPayload struct {
	Timestamp string `json:"timestamp"`
	Intent    string `json:"intent"`
	Intents   int    `json:"intents"`
	Action    string `json:"action"`
	Previous  int    `json:"previous"`
	Volume    int    `json:"volume"`
	Muted     bool   `json:"muted"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a dispatch outcome.
func FormatPayload(o dispatch.Outcome) ([]byte, error) {
	p := Payload{
		Knob: KnobPayload{
			Timestamp: o.Time.UTC().Format(time.RFC3339Nano),
			Intent:    string(o.Intent),
			Intents:   o.Intents,
			Action:    string(o.Action),
			Previous:  o.Previous,
			Volume:    o.Volume,
			Muted:     o.Muted,
		},
	}
	if o.Err != nil {
		p.Knob.Error = o.Err.Error()
	}
	return json.Marshal(p)
}

// SystemPayload is used for events that carry no status snapshot (the LWT).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
