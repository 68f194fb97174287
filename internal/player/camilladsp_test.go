package player

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// camillaServer is a minimal CamillaDSP websocket endpoint.
type camillaServer struct {
	mu       sync.Mutex
	volumeDB float64
	muted    bool
	received []string
	result   string
}

func (s *camillaServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, strings.TrimSpace(string(msg)))
		result := s.result
		if result == "" {
			result = "Ok"
		}

		var reply any
		var str string
		if json.Unmarshal(msg, &str) == nil {
			switch str {
			case "GetVolume":
				reply = map[string]any{"GetVolume": map[string]any{"result": result, "value": s.volumeDB}}
			case "GetMute":
				reply = map[string]any{"GetMute": map[string]any{"result": result, "value": s.muted}}
			}
		} else {
			var obj map[string]json.RawMessage
			json.Unmarshal(msg, &obj)
			if v, ok := obj["SetVolume"]; ok {
				json.Unmarshal(v, &s.volumeDB)
				reply = map[string]any{"SetVolume": map[string]any{"result": result}}
			}
			if v, ok := obj["SetMute"]; ok {
				json.Unmarshal(v, &s.muted)
				reply = map[string]any{"SetMute": map[string]any{"result": result}}
			}
		}
		s.mu.Unlock()

		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func newCamillaTest(t *testing.T, srv *camillaServer) *CamillaDSP {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	c, err := NewCamillaDSP("ws"+strings.TrimPrefix(ts.URL, "http"), -60, 0)
	if err != nil {
		t.Fatalf("NewCamillaDSP: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCamillaSetVolumeMapsPercentToDB(t *testing.T) {
	srv := &camillaServer{}
	c := newCamillaTest(t, srv)

	if err := c.SetVolume(context.Background(), 50); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.volumeDB != -30 {
		t.Errorf("expected -30 dB, got %v", srv.volumeDB)
	}
}

func TestCamillaState(t *testing.T) {
	srv := &camillaServer{volumeDB: -15, muted: true}
	c := newCamillaTest(t, srv)

	st, err := c.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Volume != 75 || !st.Muted {
		t.Errorf("got %+v, want {75 true}", st)
	}
}

func TestCamillaSetMute(t *testing.T) {
	srv := &camillaServer{}
	c := newCamillaTest(t, srv)

	if err := c.SetMute(context.Background(), true); err != nil {
		t.Fatalf("SetMute: %v", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.muted {
		t.Error("server should be muted")
	}
	if got := srv.received[len(srv.received)-1]; got != `{"SetMute":true}` {
		t.Errorf("unexpected command: %s", got)
	}
}

func TestCamillaErrorResult(t *testing.T) {
	srv := &camillaServer{result: "Error"}
	c := newCamillaTest(t, srv)

	if err := c.SetVolume(context.Background(), 10); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCamillaTogglePauseUnsupported(t *testing.T) {
	c, err := NewCamillaDSP("ws://127.0.0.1:1234", -60, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.TogglePause(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestCamillaDialFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	c, err := NewCamillaDSP(addr, -60, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetVolume(context.Background(), 10); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewCamillaDSPValidation(t *testing.T) {
	if _, err := NewCamillaDSP("http://127.0.0.1:1234", -60, 0); err == nil {
		t.Error("expected error for http scheme")
	}
	if _, err := NewCamillaDSP("ws://127.0.0.1:1234", 0, -60); err == nil {
		t.Error("expected error for inverted dB range")
	}
}

func TestCamillaPercentDBRoundTrip(t *testing.T) {
	c, _ := NewCamillaDSP("ws://127.0.0.1:1234", -65, 0)
	for p := 0; p <= 100; p += 5 {
		if got := c.dbToPercent(c.percentToDB(p)); got != p {
			t.Errorf("%d%% -> %.2f dB -> %d%%", p, c.percentToDB(p), got)
		}
	}
}
