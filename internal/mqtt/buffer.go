package mqtt

import "log/slog"

// pendingMsg is a serialized message held for replay after reconnection.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a fixed-capacity FIFO of messages published while the broker
// was unreachable. When full, the oldest message is overwritten.
// Not safe for concurrent use; RealPublisher guards it with its mutex.
type backlog struct {
	msgs    []pendingMsg
	next    int // next write position
	count   int
	dropped int // messages overwritten since the last takeAll
	log     *slog.Logger
}

func newBacklog(capacity int, log *slog.Logger) *backlog {
	if log == nil {
		log = slog.Default()
	}
	return &backlog{msgs: make([]pendingMsg, capacity), log: log}
}

func (b *backlog) push(m pendingMsg) {
	size := len(b.msgs)
	if b.count == size {
		if b.dropped == 0 {
			b.log.Warn("mqtt backlog full, dropping oldest", "capacity", size)
		}
		b.dropped++
	} else {
		b.count++
	}
	b.msgs[b.next] = m
	b.next = (b.next + 1) % size
}

// takeAll empties the backlog, oldest first.
func (b *backlog) takeAll() []pendingMsg {
	if b.count == 0 {
		return nil
	}
	size := len(b.msgs)
	out := make([]pendingMsg, 0, b.count)
	for i := b.next - b.count + size; len(out) < b.count; i++ {
		out = append(out, b.msgs[i%size])
	}
	if b.dropped > 0 {
		b.log.Warn("mqtt backlog overflowed while disconnected", "dropped", b.dropped)
	}
	b.count, b.next, b.dropped = 0, 0, 0
	return out
}

func (b *backlog) len() int {
	return b.count
}
