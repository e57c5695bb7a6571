package ws

import (
	"errors"
	"sync"

	"github.com/horoquiz/horoquiz-backend/internal/protocol"
)

// outboxCapacity bounds the per-connection outbound queue. A client that
// cannot keep up loses coalescable frames first.
const outboxCapacity = 64

var (
	errOutboxClosed = errors.New("outbox closed")
	// errBackpressure means a critical frame could not be queued because
	// the queue is full of other critical frames. The connection is no
	// longer coherent and must be torn down.
	errBackpressure = errors.New("outbound queue full of critical frames")
)

// outbox is the bounded outbound queue between the room actor and the
// writer pump. Push never blocks: on overflow the oldest non-critical
// frame is dropped to make room.
type outbox struct {
	mu     sync.Mutex
	queue  []protocol.Envelope
	closed bool

	// wake is buffered; the writer drains the whole queue per wakeup.
	wake chan struct{}
}

func newOutbox() *outbox {
	return &outbox{
		queue: make([]protocol.Envelope, 0, outboxCapacity),
		wake:  make(chan struct{}, 1),
	}
}

func (o *outbox) push(env protocol.Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errOutboxClosed
	}

	if len(o.queue) >= outboxCapacity {
		dropped := false
		for i, queued := range o.queue {
			if !protocol.IsCritical(queued.Event) {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			if protocol.IsCritical(env.Event) {
				return errBackpressure
			}
			// Non-critical frame against a queue of critical ones: a newer
			// snapshot of the same kind will follow, drop this one.
			return nil
		}
	}

	o.queue = append(o.queue, env)
	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// pop removes the head frame. ok is false when the queue is empty.
func (o *outbox) pop() (protocol.Envelope, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.queue) == 0 {
		return protocol.Envelope{}, false
	}
	env := o.queue[0]
	o.queue = o.queue[1:]
	return env, true
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
