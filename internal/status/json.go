package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Player        PlayerJSON      `json:"player"`
	ButtonPressed bool            `json:"button_pressed"`
	LastAction    *LastActionJSON `json:"last_action,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Intents       IntentsJSON     `json:"intent_counts"`
	Decoder       DecoderJSON     `json:"decoder_counts"`
	Dispatch      DispatchJSON    `json:"dispatch"`
	Config        ConfigJSON      `json:"config"`
}

// PlayerJSON reports the mirrored player state.
type PlayerJSON struct {
	Backend string `json:"backend"`
	Volume  int    `json:"volume"`
	Muted   bool   `json:"muted"`
	Synced  bool   `json:"synced"`
}

// LastActionJSON is the most recent dispatch outcome.
type LastActionJSON struct {
	Timestamp string `json:"timestamp"`
	Intent    string `json:"intent"`
	Action    string `json:"action"`
	Error     string `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// IntentsJSON counts intents by kind.
type IntentsJSON struct {
	VolumeUp    int `json:"volume_up"`
	VolumeDown  int `json:"volume_down"`
	ToggleMute  int `json:"toggle_mute"`
	TogglePause int `json:"toggle_pause"`
}

// DecoderJSON counts encoder edges by fate.
type DecoderJSON struct {
	Accepted int `json:"accepted"`
	Bounced  int `json:"bounced"`
	Invalid  int `json:"invalid"`
	Ticks    int `json:"ticks"`
}

// DispatchJSON counts player calls.
type DispatchJSON struct {
	Calls      int `json:"calls"`
	Failures   int `json:"failures"`
	Suppressed int `json:"suppressed"`
	Coalesced  int `json:"coalesced"`
	Resyncs    int `json:"resyncs"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend           string `json:"backend"`
	PlayerURL         string `json:"player_url"`
	PinA              int    `json:"pin_a"`
	PinB              int    `json:"pin_b"`
	PinButton         int    `json:"pin_button"`
	Step              int    `json:"step"`
	StepsPerDetent    int    `json:"steps_per_detent"`
	RateLimitMs       int64  `json:"rate_limit_ms"`
	EncoderDebounceMs int64  `json:"encoder_debounce_ms"`
	LongPressMs       int64  `json:"long_press_ms"`
	ButtonDebounceMs  int64  `json:"button_debounce_ms"`
	TimeoutMs         int64  `json:"timeout_ms"`
	ResyncMs          int64  `json:"resync_ms"`
	HeartbeatMs       int64  `json:"heartbeat_ms"`
	Broker            string `json:"broker"`
	HTTPAddr          string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Config
	inner := StatusInner{
		Player: PlayerJSON{
			Backend: c.Backend,
			Volume:  snap.Player.Volume,
			Muted:   snap.Player.Muted,
			Synced:  snap.Synced,
		},
		ButtonPressed: snap.ButtonPressed,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: c.Broker},
		Intents: IntentsJSON{
			VolumeUp:    snap.Intents.VolumeUp,
			VolumeDown:  snap.Intents.VolumeDown,
			ToggleMute:  snap.Intents.ToggleMute,
			TogglePause: snap.Intents.TogglePause,
		},
		Decoder: DecoderJSON{
			Accepted: snap.Decoder.Accepted,
			Bounced:  snap.Decoder.Bounced,
			Invalid:  snap.Decoder.Invalid,
			Ticks:    snap.Decoder.Ticks,
		},
		Dispatch: DispatchJSON{
			Calls:      snap.Dispatch.Calls,
			Failures:   snap.Dispatch.Failures,
			Suppressed: snap.Dispatch.Suppressed,
			Coalesced:  snap.Dispatch.Coalesced,
			Resyncs:    snap.Dispatch.Resyncs,
		},
		Config: ConfigJSON{
			Backend:           c.Backend,
			PlayerURL:         c.PlayerURL,
			PinA:              c.PinA,
			PinB:              c.PinB,
			PinButton:         c.PinButton,
			Step:              c.Step,
			StepsPerDetent:    c.StepsPerDetent,
			RateLimitMs:       c.RateLimitMs,
			EncoderDebounceMs: c.EncoderDebounceMs,
			LongPressMs:       c.LongPressMs,
			ButtonDebounceMs:  c.ButtonDebounceMs,
			TimeoutMs:         c.TimeoutMs,
			ResyncMs:          c.ResyncMs,
			HeartbeatMs:       c.HeartbeatMs,
			Broker:            c.Broker,
			HTTPAddr:          c.HTTPAddr,
		},
	}
	if snap.Last != nil {
		inner.LastAction = &LastActionJSON{
			Timestamp: snap.Last.Time.UTC().Format(time.RFC3339Nano),
			Intent:    string(snap.Last.Intent),
			Action:    string(snap.Last.Action),
			Error:     snap.Last.Error,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
