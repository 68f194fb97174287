// Package dispatch turns Intents into player calls. It owns the local
// mirror of the player's volume and mute state and is driven from a single
// goroutine; none of its methods are safe for concurrent use.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sweeney/volume-knob/internal/logic"
	"github.com/sweeney/volume-knob/internal/player"
)

// Action is what the dispatcher did for one or more intents.
type Action string

const (
	ActionSetVolume   Action = "SET_VOLUME"
	ActionSetMute     Action = "SET_MUTE"
	ActionTogglePause Action = "TOGGLE_PAUSE"
	ActionSuppressed  Action = "SUPPRESSED" // target equals the mirror; no call made
)

// Outcome reports a completed dispatch. Coalesced volume intents produce a
// single Outcome whose Intents field counts them.
type Outcome struct {
	Time     time.Time
	Intent   logic.IntentKind // last intent that contributed
	Intents  int
	Action   Action
	Previous int // mirror volume before the action
	Volume   int // mirror volume after the action
	Muted    bool
	Err      error
}

// Config holds the dispatcher tunables.
type Config struct {
	Step          int           // volume percent per tick
	RateLimit     time.Duration // minimum spacing of volume calls; 0 disables coalescing
	CallTimeout   time.Duration // bound on every player call; 0 means ctx only
	InitialVolume int           // mirror volume until the first successful resync
}

// Stats counts dispatcher activity since startup.
type Stats struct {
	Calls      int // player calls issued (excluding resync)
	Failures   int // player calls that failed
	Suppressed int // volume targets dropped because they matched the mirror
	Coalesced  int // volume intents merged into an earlier pending call
	Resyncs    int // successful resyncs
}

type pendingVolume struct {
	target   int
	last     logic.IntentKind
	count    int
	deadline time.Time
}

// Dispatcher applies Intents to a player.Controller.
type Dispatcher struct {
	player player.Controller
	cfg    Config
	log    *slog.Logger

	state   player.State
	synced  bool
	pending *pendingVolume
	stats   Stats
}

// New creates a dispatcher whose mirror starts at cfg.InitialVolume, unmuted.
func New(p player.Controller, cfg Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		player: p,
		cfg:    cfg,
		log:    log,
		state:  player.State{Volume: player.ClampVolume(cfg.InitialVolume)},
	}
}

// Resync replaces the mirror with the player's reported state. On error
// the mirror is left untouched. A pending volume target is kept and will
// be compared against the refreshed mirror when flushed.
func (d *Dispatcher) Resync(ctx context.Context) error {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	st, err := d.player.State(callCtx)
	if err != nil {
		d.log.Warn("resync failed", "err", err)
		return err
	}
	st.Volume = player.ClampVolume(st.Volume)
	if st != d.state {
		d.log.Info("resynced player state", "volume", st.Volume, "muted", st.Muted,
			"was_volume", d.state.Volume, "was_muted", d.state.Muted)
	}
	d.state = st
	d.synced = true
	d.stats.Resyncs++
	return nil
}

// Handle processes one intent and returns the outcomes of any calls it
// completed. Volume intents may be held back for coalescing; call Flush
// once Deadline has passed. A mute or pause intent first flushes any
// pending volume so calls reach the player in intent order.
func (d *Dispatcher) Handle(ctx context.Context, in logic.Intent) []Outcome {
	if in.IsVolume() {
		delta := d.cfg.Step
		if in.Kind == logic.VolumeDown {
			delta = -delta
		}
		if d.pending == nil {
			d.pending = &pendingVolume{
				target:   player.ClampVolume(d.state.Volume + delta),
				deadline: in.Time.Add(d.cfg.RateLimit),
			}
		} else {
			d.pending.target = player.ClampVolume(d.pending.target + delta)
			d.stats.Coalesced++
		}
		d.pending.last = in.Kind
		d.pending.count++

		if d.cfg.RateLimit <= 0 {
			return d.FlushAll(ctx)
		}
		return nil
	}

	out := d.FlushAll(ctx)
	switch in.Kind {
	case logic.ToggleMute:
		out = append(out, d.toggleMute(ctx, in))
	case logic.TogglePause:
		out = append(out, d.togglePause(ctx, in))
	default:
		d.log.Warn("unknown intent", "intent", in.Kind)
	}
	return out
}

// Deadline reports when the pending volume call is due.
func (d *Dispatcher) Deadline() (time.Time, bool) {
	if d.pending == nil {
		return time.Time{}, false
	}
	return d.pending.deadline, true
}

// Flush issues the pending volume call if its deadline is at or before now.
func (d *Dispatcher) Flush(ctx context.Context, now time.Time) []Outcome {
	if d.pending == nil || now.Before(d.pending.deadline) {
		return nil
	}
	return d.FlushAll(ctx)
}

// FlushAll issues the pending volume call regardless of its deadline.
func (d *Dispatcher) FlushAll(ctx context.Context) []Outcome {
	p := d.pending
	if p == nil {
		return nil
	}
	d.pending = nil

	o := Outcome{
		Time:     p.deadline,
		Intent:   p.last,
		Intents:  p.count,
		Previous: d.state.Volume,
		Volume:   d.state.Volume,
		Muted:    d.state.Muted,
	}
	if p.target == d.state.Volume {
		o.Action = ActionSuppressed
		d.stats.Suppressed++
		d.log.Debug("volume unchanged, call suppressed", "volume", p.target, "intents", p.count)
		return []Outcome{o}
	}

	o.Action = ActionSetVolume
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	d.stats.Calls++
	if err := d.player.SetVolume(callCtx, p.target); err != nil {
		d.stats.Failures++
		o.Err = err
		d.log.Error("set volume failed", "intent", p.last, "target", p.target, "volume", d.state.Volume, "err", err)
		return []Outcome{o}
	}
	d.state.Volume = p.target
	o.Volume = p.target
	d.log.Debug("volume set", "volume", p.target, "previous", o.Previous, "intents", p.count)
	return []Outcome{o}
}

func (d *Dispatcher) toggleMute(ctx context.Context, in logic.Intent) Outcome {
	prev := d.state.Muted
	d.state.Muted = !prev

	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	d.stats.Calls++
	err := d.player.SetMute(callCtx, d.state.Muted)
	if err != nil {
		d.stats.Failures++
		d.state.Muted = prev
		d.log.Error("set mute failed", "intent", in.Kind, "muted", !prev, "err", err)
	} else {
		d.log.Debug("mute set", "muted", d.state.Muted)
	}
	return Outcome{
		Time:     in.Time,
		Intent:   in.Kind,
		Intents:  1,
		Action:   ActionSetMute,
		Previous: d.state.Volume,
		Volume:   d.state.Volume,
		Muted:    d.state.Muted,
		Err:      err,
	}
}

func (d *Dispatcher) togglePause(ctx context.Context, in logic.Intent) Outcome {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	err := d.player.TogglePause(callCtx)
	switch {
	case errors.Is(err, player.ErrUnsupported):
		// The backend has no transport control, so nothing was called.
		d.log.Warn("toggle pause not supported by player", "intent", in.Kind)
	case err != nil:
		d.stats.Calls++
		d.stats.Failures++
		d.log.Error("toggle pause failed", "intent", in.Kind, "err", err)
	default:
		d.stats.Calls++
	}
	return Outcome{
		Time:     in.Time,
		Intent:   in.Kind,
		Intents:  1,
		Action:   ActionTogglePause,
		Previous: d.state.Volume,
		Volume:   d.state.Volume,
		Muted:    d.state.Muted,
		Err:      err,
	}
}

func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.CallTimeout)
}

// State returns the mirror.
func (d *Dispatcher) State() player.State {
	return d.state
}

// Synced reports whether the mirror has been read from the player at least once.
func (d *Dispatcher) Synced() bool {
	return d.synced
}

// Pending reports whether a volume call is waiting for its deadline.
func (d *Dispatcher) Pending() bool {
	return d.pending != nil
}

// Stats returns a copy of the activity counters.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}
