package player

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CamillaDSP controls the main fader of a CamillaDSP instance over its
// websocket API. Volume percent is mapped linearly onto [MinDB, MaxDB].
// CamillaDSP has no transport control, so TogglePause returns ErrUnsupported.
type CamillaDSP struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	url   string
	minDB float64
	maxDB float64
}

// NewCamillaDSP creates a controller for the websocket at wsURL
// (CamillaDSP must be started with -pPORT). The connection is dialed on
// first use and re-dialed after any I/O error.
func NewCamillaDSP(wsURL string, minDB, maxDB float64) (*CamillaDSP, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse camilladsp url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("camilladsp url %q: scheme must be ws or wss", wsURL)
	}
	if minDB >= maxDB {
		return nil, fmt.Errorf("camilladsp: min_db %.1f must be below max_db %.1f", minDB, maxDB)
	}
	return &CamillaDSP{url: wsURL, minDB: minDB, maxDB: maxDB}, nil
}

// percentToDB maps 0-100 onto the configured dB range.
func (c *CamillaDSP) percentToDB(percent int) float64 {
	return c.minDB + (c.maxDB-c.minDB)*float64(ClampVolume(percent))/100
}

// dbToPercent is the inverse of percentToDB, rounded and clamped.
func (c *CamillaDSP) dbToPercent(db float64) int {
	p := (db - c.minDB) / (c.maxDB - c.minDB) * 100
	return ClampVolume(int(math.Round(p)))
}

// SetVolume sets the main fader.
func (c *CamillaDSP) SetVolume(ctx context.Context, percent int) error {
	var resp struct {
		SetVolume camillaResult `json:"SetVolume"`
	}
	if err := c.call(ctx, map[string]any{"SetVolume": c.percentToDB(percent)}, &resp); err != nil {
		return fmt.Errorf("set volume %d: %w", percent, err)
	}
	return resp.SetVolume.check("SetVolume")
}

// SetMute sets the main fader mute flag.
func (c *CamillaDSP) SetMute(ctx context.Context, muted bool) error {
	var resp struct {
		SetMute camillaResult `json:"SetMute"`
	}
	if err := c.call(ctx, map[string]any{"SetMute": muted}, &resp); err != nil {
		return fmt.Errorf("set mute %v: %w", muted, err)
	}
	return resp.SetMute.check("SetMute")
}

// TogglePause is not available on CamillaDSP.
func (c *CamillaDSP) TogglePause(ctx context.Context) error {
	return fmt.Errorf("toggle pause: %w", ErrUnsupported)
}

// State reads volume and mute from the main fader.
func (c *CamillaDSP) State(ctx context.Context) (State, error) {
	var vol struct {
		GetVolume struct {
			camillaResult
			Value float64 `json:"value"`
		} `json:"GetVolume"`
	}
	if err := c.call(ctx, "GetVolume", &vol); err != nil {
		return State{}, fmt.Errorf("get volume: %w", err)
	}
	if err := vol.GetVolume.check("GetVolume"); err != nil {
		return State{}, err
	}

	var mute struct {
		GetMute struct {
			camillaResult
			Value bool `json:"value"`
		} `json:"GetMute"`
	}
	if err := c.call(ctx, "GetMute", &mute); err != nil {
		return State{}, fmt.Errorf("get mute: %w", err)
	}
	if err := mute.GetMute.check("GetMute"); err != nil {
		return State{}, err
	}

	return State{Volume: c.dbToPercent(vol.GetVolume.Value), Muted: mute.GetMute.Value}, nil
}

// Close closes the websocket connection.
func (c *CamillaDSP) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

type camillaResult struct {
	Result string `json:"result"`
}

func (r camillaResult) check(cmd string) error {
	if r.Result != "Ok" {
		return fmt.Errorf("%s: %w: result %q", cmd, ErrUnavailable, r.Result)
	}
	return nil
}

// call sends one command and decodes its reply into out.
// The deadline of ctx bounds both the dial and the round trip.
func (c *CamillaDSP) call(ctx context.Context, cmd any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
		conn, _, err := d.DialContext(ctx, c.url, nil)
		if err != nil {
			return fmt.Errorf("%w: dial: %w", ErrUnavailable, err)
		}
		c.conn = conn
	}

	// Zero deadline (no ctx deadline) clears any previous one.
	deadline, _ := ctx.Deadline()
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteJSON(cmd); err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: write: %w", ErrUnavailable, err)
	}
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: read: %w", ErrUnavailable, err)
	}
	if err := json.Unmarshal(msg, out); err != nil {
		return fmt.Errorf("%w: decode reply: %w", ErrUnavailable, err)
	}
	return nil
}

// dropLocked discards a broken connection so the next call re-dials.
func (c *CamillaDSP) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
