package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/volume-knob/internal/dispatch"
)

const (
	backlogSize    = 256
	queueSize      = 64
	publishTimeout = 5 * time.Second
	drainTimeout   = 2 * time.Second
)

// ErrClosed is returned by Publish and PublishSystem after Close.
var ErrClosed = errors.New("mqtt publisher closed")

// RealPublisher publishes to an actual MQTT broker. Publish and
// PublishSystem only enqueue; a single worker goroutine waits on the
// broker. While the broker is unreachable or slow, messages are kept in a
// backlog and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    *slog.Logger

	queue  chan pendingMsg
	worker chan struct{} // closed when the worker exits

	mu      sync.Mutex
	pending *backlog
	closed  bool
}

// NewRealPublisher starts connecting to broker in the background and
// returns immediately; the connection is retried until Close.
// The broker publishes a retained SHUTDOWN/MQTT_DISCONNECT event on
// TopicSystem if the connection drops uncleanly.
func NewRealPublisher(broker, clientID string, log *slog.Logger) (*RealPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &RealPublisher{
		log:     log,
		queue:   make(chan pendingMsg, queueSize),
		worker:  make(chan struct{}),
		pending: newBacklog(backlogSize, log),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("mqtt connected", "broker", broker)
			// Replay off the paho callback goroutine; publishing waits on tokens.
			go p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", "err", err)
		})

	p.client = paho.NewClient(opts)
	go p.run()
	// With ConnectRetry the token only completes once connected; don't wait.
	p.client.Connect()
	return p, nil
}

// Publish queues a dispatch outcome (QoS 0, not retained). It never
// waits on the broker.
func (p *RealPublisher) Publish(o dispatch.Outcome) error {
	payload, err := FormatPayload(o)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.enqueue(pendingMsg{topic: Topic, payload: payload})
}

// PublishSystem queues a lifecycle event (QoS 1). It never waits on the
// broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.enqueue(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// enqueue hands m to the worker. If the worker is behind and the queue is
// full, m goes straight to the backlog.
func (p *RealPublisher) enqueue(m pendingMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- m:
	default:
		p.pending.push(m)
	}
	return nil
}

func (p *RealPublisher) run() {
	defer close(p.worker)
	for m := range p.queue {
		if err := p.send(m); err != nil {
			p.log.Warn("mqtt publish failed, holding for reconnect", "topic", m.topic, "err", err)
			p.mu.Lock()
			p.pending.push(m)
			p.mu.Unlock()
		}
	}
}

// send publishes m, waiting at most publishTimeout. Runs on the worker.
func (p *RealPublisher) send(m pendingMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.pending.push(m)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// replay publishes backlogged messages in order. Messages that fail are
// returned to the backlog for the next reconnect.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.pending.takeAll()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	p.log.Info("mqtt replaying backlog", "messages", len(msgs))
	for i, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if token.WaitTimeout(publishTimeout) && token.Error() == nil {
			continue
		}
		p.log.Warn("mqtt replay interrupted", "remaining", len(msgs)-i)
		p.mu.Lock()
		for _, rest := range msgs[i:] {
			p.pending.push(rest)
		}
		p.mu.Unlock()
		return
	}
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Backlog returns the number of messages waiting for a connection.
func (p *RealPublisher) Backlog() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.len()
}

// Close stops accepting messages, gives the worker up to drainTimeout to
// deliver what is queued (typically the SHUTDOWN event), then disconnects.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.worker:
	case <-time.After(drainTimeout):
		p.log.Warn("mqtt queue not drained before disconnect")
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
