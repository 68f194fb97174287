package player

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Volumio controls a Volumio player through its REST API
// (/api/v1/commands and /api/v1/getState).
type Volumio struct {
	base     *url.URL
	client   *http.Client
	username string
	password string
}

// VolumioOption configures a Volumio controller.
type VolumioOption func(*Volumio)

// WithBasicAuth sends HTTP basic credentials with every request.
func WithBasicAuth(username, password string) VolumioOption {
	return func(v *Volumio) {
		v.username = username
		v.password = password
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) VolumioOption {
	return func(v *Volumio) {
		v.client = c
	}
}

// NewVolumio creates a controller for the Volumio instance at baseURL,
// e.g. "http://localhost:3000".
func NewVolumio(baseURL string, opts ...VolumioOption) (*Volumio, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse volumio url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("volumio url %q: missing scheme or host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	v := &Volumio{base: u, client: &http.Client{}}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// SetVolume sets the absolute volume.
func (v *Volumio) SetVolume(ctx context.Context, percent int) error {
	_, err := v.command(ctx, url.Values{
		"cmd":    {"volume"},
		"volume": {strconv.Itoa(ClampVolume(percent))},
	})
	if err != nil {
		return fmt.Errorf("set volume %d: %w", percent, err)
	}
	return nil
}

// SetMute mutes or unmutes the player.
func (v *Volumio) SetMute(ctx context.Context, muted bool) error {
	arg := "unmute"
	if muted {
		arg = "mute"
	}
	if _, err := v.command(ctx, url.Values{"cmd": {"volume"}, "volume": {arg}}); err != nil {
		return fmt.Errorf("set mute %v: %w", muted, err)
	}
	return nil
}

// TogglePause toggles play/pause.
func (v *Volumio) TogglePause(ctx context.Context) error {
	if _, err := v.command(ctx, url.Values{"cmd": {"toggle"}}); err != nil {
		return fmt.Errorf("toggle pause: %w", err)
	}
	return nil
}

// volumioState is the subset of /api/v1/getState we use.
type volumioState struct {
	Volume int  `json:"volume"`
	Mute   bool `json:"mute"`
}

// State reads the player's volume and mute flag.
func (v *Volumio) State(ctx context.Context) (State, error) {
	body, err := v.get(ctx, "/api/v1/getState", nil)
	if err != nil {
		return State{}, fmt.Errorf("get state: %w", err)
	}
	var s volumioState
	if err := json.Unmarshal(body, &s); err != nil {
		return State{}, fmt.Errorf("get state: decode: %w: %w", ErrUnavailable, err)
	}
	return State{Volume: ClampVolume(s.Volume), Muted: s.Mute}, nil
}

// Close drops idle keep-alive connections.
func (v *Volumio) Close() error {
	v.client.CloseIdleConnections()
	return nil
}

func (v *Volumio) command(ctx context.Context, q url.Values) ([]byte, error) {
	return v.get(ctx, "/api/v1/commands/", q)
}

func (v *Volumio) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := *v.base
	u.Path += path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if v.username != "" {
		req.SetBasicAuth(v.username, v.password)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	}
	return body, nil
}
