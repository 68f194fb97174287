package mqtt

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/volume-knob/internal/dispatch"
	"github.com/sweeney/volume-knob/internal/logic"
)

// stalledBroker accepts MQTT connections, answers CONNECT with an accepted
// CONNACK and then reads everything without ever acknowledging a PUBLISH.
func stalledBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
	})

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			go func() {
				buf := make([]byte, 4096)
				if _, err := c.Read(buf); err != nil {
					return
				}
				c.Write([]byte{0x20, 0x02, 0x00, 0x00})
				io.Copy(io.Discard, c)
			}()
		}
	}()
	return "tcp://" + ln.Addr().String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRealPublisherDoesNotWaitOnSlowBroker(t *testing.T) {
	p, err := NewRealPublisher(stalledBroker(t), "knob-test", quietLogger())
	if err != nil {
		t.Fatalf("NewRealPublisher: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	waitUntil(t, "connection", p.IsConnected)

	start := time.Now()
	if err := p.PublishSystem(SystemEvent{Timestamp: start, Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}
	for i := 0; i < 10; i++ {
		o := dispatch.Outcome{Time: start, Intent: logic.VolumeUp, Intents: 1, Action: dispatch.ActionSetVolume, Volume: 50 + i}
		if err := p.Publish(o); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("publishing to an unacknowledging broker took %v", elapsed)
	}
}

func TestRealPublisherQueueOverflowGoesToBacklog(t *testing.T) {
	p, err := NewRealPublisher(stalledBroker(t), "knob-test", quietLogger())
	if err != nil {
		t.Fatalf("NewRealPublisher: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	waitUntil(t, "connection", p.IsConnected)

	// The worker is stuck on the first QoS 1 message; everything beyond the
	// queue spills into the backlog instead of blocking.
	for i := 0; i < queueSize+10; i++ {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"}); err != nil {
			t.Fatalf("PublishSystem %d: %v", i, err)
		}
	}
	if p.Backlog() == 0 {
		t.Error("expected overflow to be held in the backlog")
	}
}

func TestRealPublisherBacklogsWhileDisconnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listens here any more

	p, err := NewRealPublisher("tcp://"+addr, "knob-test", quietLogger())
	if err != nil {
		t.Fatalf("NewRealPublisher: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	for i := 0; i < 3; i++ {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"}); err != nil {
			t.Fatalf("PublishSystem: %v", err)
		}
	}
	waitUntil(t, "backlog", func() bool { return p.Backlog() == 3 })
}

func TestRealPublisherClosed(t *testing.T) {
	p, err := NewRealPublisher(stalledBroker(t), "knob-test", quietLogger())
	if err != nil {
		t.Fatalf("NewRealPublisher: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Publish(dispatch.Outcome{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close: got %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
