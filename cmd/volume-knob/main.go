// Command volume-knob turns a rotary encoder with a push switch into volume,
// mute and play/pause commands for a network audio player.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/volume-knob/internal/config"
	"github.com/sweeney/volume-knob/internal/dispatch"
	"github.com/sweeney/volume-knob/internal/gpio"
	"github.com/sweeney/volume-knob/internal/logic"
	"github.com/sweeney/volume-knob/internal/mqtt"
	"github.com/sweeney/volume-knob/internal/player"
	"github.com/sweeney/volume-knob/internal/status"
	"github.com/sweeney/volume-knob/internal/web"
)

type options struct {
	configPath string
	printState bool
	overrides  config.Overrides
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg := config.Default()
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}
	opts.overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger := setupLogger(level, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, opts.printState, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. Only flags given explicitly end up in
// the overrides, so a config file value is never replaced by a flag default.
func parseFlags(args []string, output io.Writer) (options, error) {
	def := config.Default()
	fs := flag.NewFlagSet("volume-knob", flag.ContinueOnError)
	fs.SetOutput(output)

	configPath := fs.String("config", "", "YAML config file (defaults are used if empty)")
	printState := fs.Bool("print-state", false, "Print input levels and player state, then exit")
	pinA := fs.Int("pin-a", def.GPIO.PinA, "BCM pin for encoder channel A (CLK)")
	pinB := fs.Int("pin-b", def.GPIO.PinB, "BCM pin for encoder channel B (DT)")
	pinButton := fs.Int("pin-button", def.GPIO.PinButton, "BCM pin for the push switch")
	debounce := fs.Duration("debounce", def.Encoder.Debounce, "Encoder debounce interval")
	longPress := fs.Duration("long-press", def.Button.LongPress, "Hold time that turns a press into mute")
	step := fs.Int("step", def.Volume.Step, "Volume percent per detent")
	rateLimit := fs.Duration("rate-limit", def.Volume.RateLimit, "Coalescing window for volume calls (0 to disable)")
	backend := fs.String("player", def.Player.Backend, "Player backend (volumio or camilladsp)")
	playerURL := fs.String("player-url", def.Player.URL, "Player endpoint URL")
	timeout := fs.Duration("timeout", def.Player.Timeout, "Bound on each player call")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	logLevel := fs.String("log-level", def.Logging.Level, "Log level (error, warn, info, debug)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{configPath: *configPath, printState: *printState}
	o := &opts.overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pin-a":
			o.PinA = pinA
		case "pin-b":
			o.PinB = pinB
		case "pin-button":
			o.PinButton = pinButton
		case "debounce":
			o.EncoderDebounce = debounce
		case "long-press":
			o.LongPress = longPress
		case "step":
			o.Step = step
		case "rate-limit":
			o.RateLimit = rateLimit
		case "player":
			o.PlayerBackend = backend
		case "player-url":
			o.PlayerURL = playerURL
		case "timeout":
			o.PlayerTimeout = timeout
		case "broker":
			o.Broker = broker
		case "heartbeat":
			o.Heartbeat = heartbeat
		case "http":
			o.HTTPAddr = httpAddr
		case "log-level":
			o.LogLevel = logLevel
		}
	})
	return opts, nil
}

func run(cfg config.Config, printState bool, log *slog.Logger) error {
	watcher, err := gpio.NewRealWatcher(cfg.WatcherConfig())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer watcher.Close()

	ctrl, err := cfg.NewController()
	if err != nil {
		return fmt.Errorf("init player: %w", err)
	}
	defer ctrl.Close()

	if printState {
		return printLevels(os.Stdout, watcher, ctrl, cfg.Player.Timeout)
	}

	disp := dispatch.New(ctrl, cfg.DispatchConfig(), log.With("component", "dispatch"))
	if err := disp.Resync(context.Background()); err != nil {
		log.Warn("player state unknown, assuming initial state",
			"volume", disp.State().Volume, "muted", disp.State().Muted, "err", err)
	}

	decoder := logic.NewDecoder(cfg.Encoder.Debounce, cfg.Encoder.StepsPerDetent)
	if lv, err := watcher.Read(); err != nil {
		log.Warn("initial encoder read failed, priming from first edge", "err", err)
	} else {
		decoder.Reset(lv.A, lv.B)
	}
	agg := logic.NewAggregator(decoder, cfg.Button.LongPress, cfg.Button.Debounce)

	var publisher mqtt.Publisher = nopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, log.With("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = rp, rp
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	tracker.Update(disp.State(), disp.Synced(), false, agg.Counts(), agg.DecoderCounts(), disp.Stats())

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Warn("failed to publish startup event", "err", err)
	}

	log.Info("started",
		"backend", cfg.Player.Backend, "url", cfg.Player.URL,
		"pins", fmt.Sprintf("%d/%d/%d", cfg.GPIO.PinA, cfg.GPIO.PinB, cfg.GPIO.PinButton),
		"step", cfg.Volume.Step, "rate_limit", cfg.Volume.RateLimit,
		"broker", cfg.MQTT.Broker, "http", cfg.HTTP.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var heartbeat, resync <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		t := time.NewTicker(cfg.MQTT.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}
	if cfg.Player.ResyncInterval > 0 {
		t := time.NewTicker(cfg.Player.ResyncInterval)
		defer t.Stop()
		resync = t.C
	}

	g, ctx := errgroup.WithContext(context.Background())
	loopDone := make(chan struct{})

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-loopDone:
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		log.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	g.Go(func() error {
		defer close(loopDone)
		return runLoop(ctx, loop{
			events:     watcher.Events(),
			agg:        agg,
			disp:       disp,
			publisher:  publisher,
			mqttStatus: mqttStatus,
			tracker:    tracker,
			now:        time.Now,
			heartbeat:  heartbeat,
			resync:     resync,
			sig:        sigCh,
			log:        log,
		})
	})
	return g.Wait()
}

// loop holds everything runLoop reads from. Channels left nil never fire.
type loop struct {
	events     <-chan gpio.Event
	agg        *logic.Aggregator
	disp       *dispatch.Dispatcher
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // may be nil
	tracker    *status.Tracker       // may be nil
	now        func() time.Time
	heartbeat  <-chan time.Time
	resync     <-chan time.Time
	sig        <-chan os.Signal
	log        *slog.Logger
}

// runLoop is the single consumer of the edge queue. The aggregator and the
// dispatcher are only touched from here.
func runLoop(ctx context.Context, l loop) error {
	flush := time.NewTimer(time.Hour)
	flush.Stop()
	defer flush.Stop()
	armed := false

	arm := func() {
		if armed {
			return
		}
		if deadline, ok := l.disp.Deadline(); ok {
			flush.Reset(max(deadline.Sub(l.now()), 0))
			armed = true
		}
	}

	for {
		select {
		case s := <-l.sig:
			l.log.Info("shutting down", "signal", s)
			l.drain()
			l.shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			l.log.Warn("shutting down", "err", context.Cause(ctx))
			l.shutdown("ERROR")
			return nil

		case ev, ok := <-l.events:
			if !ok {
				l.shutdown("GPIO_CLOSED")
				return errors.New("gpio event queue closed")
			}
			l.handleEdge(ctx, ev)
			arm()

		case <-flush.C:
			armed = false
			l.report(l.disp.Flush(ctx, l.now()))
			arm()

		case <-l.resync:
			if l.disp.Pending() {
				l.log.Debug("resync skipped, volume call pending")
				continue
			}
			l.disp.Resync(ctx)
			l.updateTracker()

		case <-l.heartbeat:
			l.updateTracker()
			c := l.agg.Counts()
			st := l.disp.Stats()
			l.log.Info("heartbeat",
				"volume_up", c.VolumeUp, "volume_down", c.VolumeDown,
				"toggle_mute", c.ToggleMute, "toggle_pause", c.TogglePause,
				"calls", st.Calls, "failures", st.Failures)
			hb := mqtt.SystemEvent{Timestamp: l.now(), Event: "HEARTBEAT"}
			if l.tracker != nil {
				hb.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
			}
			if err := l.publisher.PublishSystem(hb); err != nil {
				l.log.Warn("heartbeat publish error", "err", err)
			}
		}
	}
}

func (l *loop) handleEdge(ctx context.Context, ev gpio.Event) {
	before, bounces := l.agg.DecoderCounts(), l.agg.ButtonBounces()
	in, ok := l.agg.Process(toEdge(ev))
	after := l.agg.DecoderCounts()
	switch {
	case after.Invalid > before.Invalid:
		l.log.Debug("invalid quadrature transition dropped", "line", ev.Line, "a", ev.A, "b", ev.B)
	case after.Bounced > before.Bounced:
		l.log.Debug("encoder edge inside debounce dropped", "line", ev.Line)
	case l.agg.ButtonBounces() > bounces:
		l.log.Debug("button bounce dropped")
	}
	if ok {
		l.log.Debug("intent", "intent", in.Kind)
		l.report(l.disp.Handle(ctx, in))
	}
	l.updateTracker()
}

// drain processes edges already queued when a signal arrives.
func (l *loop) drain() {
	for {
		select {
		case ev, ok := <-l.events:
			if !ok {
				return
			}
			l.handleEdge(context.Background(), ev)
		default:
			return
		}
	}
}

// shutdown sends any pending volume call and publishes SHUTDOWN. It uses
// a fresh context; each call is still bounded by the dispatcher timeout.
func (l *loop) shutdown(reason string) {
	l.report(l.disp.FlushAll(context.Background()))
	l.updateTracker()

	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.Warn("failed to publish shutdown event", "err", err)
	} else {
		l.log.Info("published shutdown event", "reason", reason)
	}
}

func (l *loop) report(outcomes []dispatch.Outcome) {
	for _, o := range outcomes {
		if o.Err == nil {
			l.log.Info("dispatched", "intent", o.Intent, "intents", o.Intents, "action", o.Action,
				"volume", o.Volume, "muted", o.Muted)
		}
		if l.tracker != nil {
			l.tracker.RecordOutcome(o)
		}
		if err := l.publisher.Publish(o); err != nil {
			l.log.Warn("publish error", "err", err)
		}
	}
	if len(outcomes) > 0 {
		l.updateTracker()
	}
}

func (l *loop) updateTracker() {
	if l.tracker == nil {
		return
	}
	l.tracker.Update(l.disp.State(), l.disp.Synced(), l.agg.ButtonState().Pressed,
		l.agg.Counts(), l.agg.DecoderCounts(), l.disp.Stats())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func toEdge(ev gpio.Event) logic.Edge {
	e := logic.Edge{
		Type:    logic.EdgeFalling,
		A:       ev.A,
		B:       ev.B,
		Pressed: ev.Pressed,
		Time:    ev.Time,
	}
	if ev.Rising {
		e.Type = logic.EdgeRising
	}
	switch ev.Line {
	case gpio.LineA:
		e.Line = logic.LineA
	case gpio.LineB:
		e.Line = logic.LineB
	default:
		e.Line = logic.LineButton
	}
	return e
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func printLevels(w io.Writer, watcher gpio.Watcher, ctrl player.Controller, timeout time.Duration) error {
	lv, err := watcher.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	button := "released"
	if lv.Pressed {
		button = "pressed"
	}
	fmt.Fprintf(w, "A: %s, B: %s, Button: %s\n", levelString(lv.A), levelString(lv.B), button)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	st, err := ctrl.State(ctx)
	if err != nil {
		fmt.Fprintf(w, "Player: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "Volume: %d, Muted: %v\n", st.Volume, st.Muted)
	return nil
}

func levelString(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Backend:           cfg.Player.Backend,
		PlayerURL:         cfg.Player.URL,
		PinA:              cfg.GPIO.PinA,
		PinB:              cfg.GPIO.PinB,
		PinButton:         cfg.GPIO.PinButton,
		Step:              cfg.Volume.Step,
		StepsPerDetent:    cfg.Encoder.StepsPerDetent,
		RateLimitMs:       cfg.Volume.RateLimit.Milliseconds(),
		EncoderDebounceMs: cfg.Encoder.Debounce.Milliseconds(),
		LongPressMs:       cfg.Button.LongPress.Milliseconds(),
		ButtonDebounceMs:  cfg.Button.Debounce.Milliseconds(),
		TimeoutMs:         cfg.Player.Timeout.Milliseconds(),
		ResyncMs:          cfg.Player.ResyncInterval.Milliseconds(),
		HeartbeatMs:       cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:            cfg.MQTT.Broker,
		HTTPAddr:          cfg.HTTP.Addr,
	}
}

// nopPublisher is used when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(dispatch.Outcome) error      { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }
