// Package config loads and validates the volume knob configuration.
//
// Sources are layered: Default, then an optional YAML file, then flag
// overrides. Validate is called last; a failure is a startup error and the
// process must not run half-configured.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/volume-knob/internal/dispatch"
	"github.com/sweeney/volume-knob/internal/gpio"
	"github.com/sweeney/volume-knob/internal/player"
)

// Config is the top-level YAML configuration.
type Config struct {
	GPIO    GPIOConfig    `yaml:"gpio"`
	Encoder EncoderConfig `yaml:"encoder"`
	Button  ButtonConfig  `yaml:"button"`
	Volume  VolumeConfig  `yaml:"volume"`
	Player  PlayerConfig  `yaml:"player"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

type GPIOConfig struct {
	Chip            string `yaml:"chip"`
	PinA            int    `yaml:"pin_a"`
	PinB            int    `yaml:"pin_b"`
	PinButton       int    `yaml:"pin_button"`
	Pull            string `yaml:"pull"` // up, down or none
	ButtonActiveLow bool   `yaml:"button_active_low"`
}

type EncoderConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	StepsPerDetent int           `yaml:"steps_per_detent"`
}

type ButtonConfig struct {
	LongPress time.Duration `yaml:"long_press"`
	Debounce  time.Duration `yaml:"debounce"`
}

type VolumeConfig struct {
	Step      int           `yaml:"step"`
	RateLimit time.Duration `yaml:"rate_limit"`
	Initial   int           `yaml:"initial"`
}

type PlayerConfig struct {
	Backend        string        `yaml:"backend"`
	URL            string        `yaml:"url"`
	Username       string        `yaml:"username,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	ResyncInterval time.Duration `yaml:"resync_interval"`

	// CamillaDSP only
	MinDB float64 `yaml:"min_db"`
	MaxDB float64 `yaml:"max_db"`
}

type MQTTConfig struct {
	Broker    string        `yaml:"broker"` // empty disables publishing
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Error is a configuration error. It is always fatal at startup.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Default returns a fully-populated Config for a KY-040 style encoder on a
// Raspberry Pi controlling a local Volumio.
func Default() Config {
	return Config{
		GPIO: GPIOConfig{
			Chip:            "gpiochip0",
			PinA:            gpio.DefaultPinA,
			PinB:            gpio.DefaultPinB,
			PinButton:       gpio.DefaultPinButton,
			Pull:            gpio.PullUp,
			ButtonActiveLow: true,
		},
		Encoder: EncoderConfig{
			Debounce:       time.Millisecond,
			StepsPerDetent: 4,
		},
		Button: ButtonConfig{
			LongPress: 600 * time.Millisecond,
			Debounce:  20 * time.Millisecond,
		},
		Volume: VolumeConfig{
			Step:      5,
			RateLimit: 50 * time.Millisecond,
			Initial:   50,
		},
		Player: PlayerConfig{
			Backend:        player.BackendVolumio,
			URL:            "http://localhost:3000",
			Timeout:        300 * time.Millisecond,
			ResyncInterval: time.Minute,
			MinDB:          -65,
			MaxDB:          0,
		},
		MQTT: MQTTConfig{
			ClientID:  "volume-knob",
			Heartbeat: 15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of Default.
func Parse(b []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// An empty document leaves the defaults in place.
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}
	return cfg, nil
}

// Overrides holds values from command-line flags. A nil pointer means the
// flag was not given; a non-nil pointer is applied even if it holds the
// zero value.
type Overrides struct {
	PinA      *int
	PinB      *int
	PinButton *int

	EncoderDebounce *time.Duration
	LongPress       *time.Duration

	Step      *int
	RateLimit *time.Duration

	PlayerBackend *string
	PlayerURL     *string
	PlayerTimeout *time.Duration

	Broker    *string
	Heartbeat *time.Duration

	HTTPAddr *string
	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o Overrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	setInt(&cfg.GPIO.PinA, o.PinA)
	setInt(&cfg.GPIO.PinB, o.PinB)
	setInt(&cfg.GPIO.PinButton, o.PinButton)
	setDuration(&cfg.Encoder.Debounce, o.EncoderDebounce)
	setDuration(&cfg.Button.LongPress, o.LongPress)
	setInt(&cfg.Volume.Step, o.Step)
	setDuration(&cfg.Volume.RateLimit, o.RateLimit)
	setString(&cfg.Player.Backend, o.PlayerBackend)
	setString(&cfg.Player.URL, o.PlayerURL)
	setDuration(&cfg.Player.Timeout, o.PlayerTimeout)
	setString(&cfg.MQTT.Broker, o.Broker)
	setDuration(&cfg.MQTT.Heartbeat, o.Heartbeat)
	setString(&cfg.HTTP.Addr, o.HTTPAddr)
	setString(&cfg.Logging.Level, o.LogLevel)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks every invariant the rest of the program relies on.
// The returned error is a *Error.
func (c *Config) Validate() error {
	// GPIO
	if c.GPIO.Chip == "" {
		return invalid("gpio.chip", "must not be empty")
	}
	pins := map[string]int{
		"gpio.pin_a":      c.GPIO.PinA,
		"gpio.pin_b":      c.GPIO.PinB,
		"gpio.pin_button": c.GPIO.PinButton,
	}
	for _, name := range []string{"gpio.pin_a", "gpio.pin_b", "gpio.pin_button"} {
		if pins[name] < 0 {
			return invalid(name, "must be >= 0, got %d", pins[name])
		}
	}
	if c.GPIO.PinA == c.GPIO.PinB || c.GPIO.PinA == c.GPIO.PinButton || c.GPIO.PinB == c.GPIO.PinButton {
		return invalid("gpio", "pins must be distinct, got a=%d b=%d button=%d",
			c.GPIO.PinA, c.GPIO.PinB, c.GPIO.PinButton)
	}
	switch c.GPIO.Pull {
	case gpio.PullUp, gpio.PullDown, gpio.PullNone:
	default:
		return invalid("gpio.pull", "must be %q, %q or %q, got %q", gpio.PullUp, gpio.PullDown, gpio.PullNone, c.GPIO.Pull)
	}

	// Encoder
	if c.Encoder.Debounce < 0 {
		return invalid("encoder.debounce", "must be >= 0")
	}
	switch c.Encoder.StepsPerDetent {
	case 1, 2, 4:
	default:
		return invalid("encoder.steps_per_detent", "must be 1, 2 or 4, got %d", c.Encoder.StepsPerDetent)
	}

	// Button
	if c.Button.Debounce < 0 {
		return invalid("button.debounce", "must be >= 0")
	}
	if c.Button.LongPress <= c.Button.Debounce {
		return invalid("button.long_press", "must be greater than button.debounce (%v)", c.Button.Debounce)
	}

	// Volume
	if c.Volume.Step < 1 || c.Volume.Step > 100 {
		return invalid("volume.step", "must be between 1 and 100, got %d", c.Volume.Step)
	}
	if c.Volume.RateLimit < 0 {
		return invalid("volume.rate_limit", "must be >= 0")
	}
	if c.Volume.Initial < 0 || c.Volume.Initial > 100 {
		return invalid("volume.initial", "must be between 0 and 100, got %d", c.Volume.Initial)
	}

	// Player
	switch c.Player.Backend {
	case player.BackendVolumio:
		if err := validURL(c.Player.URL, "http", "https"); err != nil {
			return invalid("player.url", "%v", err)
		}
	case player.BackendCamillaDSP:
		if err := validURL(c.Player.URL, "ws", "wss"); err != nil {
			return invalid("player.url", "%v", err)
		}
		if c.Player.MinDB >= c.Player.MaxDB {
			return invalid("player.min_db", "must be below player.max_db")
		}
	default:
		return invalid("player.backend", "must be %q or %q, got %q", player.BackendVolumio, player.BackendCamillaDSP, c.Player.Backend)
	}
	if c.Player.Timeout <= 0 {
		return invalid("player.timeout", "must be > 0")
	}
	if c.Player.ResyncInterval < 0 {
		return invalid("player.resync_interval", "must be >= 0")
	}

	// MQTT
	if c.MQTT.Broker != "" {
		if err := validURL(c.MQTT.Broker, "tcp", "ssl", "ws", "wss", "mqtt", "mqtts"); err != nil {
			return invalid("mqtt.broker", "%v", err)
		}
		if c.MQTT.ClientID == "" {
			return invalid("mqtt.client_id", "must not be empty when mqtt.broker is set")
		}
	}
	if c.MQTT.Heartbeat < 0 {
		return invalid("mqtt.heartbeat", "must be >= 0")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "error", "warn", "warning", "info", "debug":
	default:
		return invalid("logging.level", "must be error, warn, info or debug, got %q", c.Logging.Level)
	}

	return nil
}

func validURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%q: scheme must be one of %s", raw, strings.Join(schemes, ", "))
}

// WatcherConfig converts to the GPIO watcher configuration.
func (c *Config) WatcherConfig() gpio.Config {
	g := gpio.DefaultConfig()
	g.Chip = c.GPIO.Chip
	g.PinA = c.GPIO.PinA
	g.PinB = c.GPIO.PinB
	g.PinButton = c.GPIO.PinButton
	g.Pull = c.GPIO.Pull
	g.ButtonActiveLow = c.GPIO.ButtonActiveLow
	return g
}

// DispatchConfig converts to the dispatcher tunables.
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		Step:          c.Volume.Step,
		RateLimit:     c.Volume.RateLimit,
		CallTimeout:   c.Player.Timeout,
		InitialVolume: c.Volume.Initial,
	}
}

// NewController builds the configured player backend.
func (c *Config) NewController() (player.Controller, error) {
	switch c.Player.Backend {
	case player.BackendCamillaDSP:
		p, err := player.NewCamillaDSP(c.Player.URL, c.Player.MinDB, c.Player.MaxDB)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		var opts []player.VolumioOption
		if c.Player.Username != "" {
			opts = append(opts, player.WithBasicAuth(c.Player.Username, c.Player.Password))
		}
		p, err := player.NewVolumio(c.Player.URL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
