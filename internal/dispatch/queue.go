// Package dispatch implements the dispatcher queue (D) and the
// async-command registry (A) from the channel/dispatch fabric: a typed,
// FIFO, single-producer-single-consumer message channel between a
// submitter goroutine (the guest device side) and a worker goroutine
// (the render/device side), plus the bookkeeping that matches a worker's
// eventual completion back to the submitter's cookie.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/spice-project/channeld/internal/interfaces"
)

// DefaultQueueDepth bounds how many in-flight messages a submitter may
// have queued before Send blocks. Queue-full back-pressures the
// submitter; it never fails the send.
const DefaultQueueDepth = 256

// Message is one entry on the queue: a tag plus its value-copied payload.
// The tag determines the payload's expected shape; callers are trusted to
// pass the right type for the tag, matching the C original's untyped
// union-by-convention (there is no way to statically enforce this across
// an arbitrary guest-device vtable without heavy generics machinery that
// the rest of this codebase does not use elsewhere).
type Message struct {
	Tag     Tag
	Payload any
	reply   chan struct{}
}

// Queue is the dispatcher queue (D): a bounded Go channel standing in for
// a single-producer-single-consumer transport. Sync sends block
// on reply to establish a happens-before with the reader; async sends
// return once the message is enqueued.
type Queue struct {
	ch     chan Message
	logger interfaces.Logger
	obs    interfaces.Observer

	mu       sync.Mutex
	depth    int
	stopOnce sync.Once
}

// NewQueue creates a Queue with the given capacity (0 uses
// DefaultQueueDepth).
func NewQueue(capacity int, logger interfaces.Logger, obs interfaces.Observer) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueDepth
	}
	return &Queue{
		ch:     make(chan Message, capacity),
		logger: logger,
		obs:    obs,
	}
}

// Send enqueues a message. For sync tags it blocks until the worker has
// drained and processed the message (Run signals completion by closing
// reply); for async tags it returns as soon as the message is queued.
// Send never fails under normal operation; a full queue simply blocks the
// submitter (back-pressure).
func (q *Queue) Send(tag Tag, payload any) {
	m := Message{Tag: tag, Payload: payload}
	sync := IsSync(tag)
	if sync {
		m.reply = make(chan struct{})
	}
	q.noteDepth(1)
	if q.logger != nil {
		q.logger.Debug("dispatch: send", "tag", tag.String(), "async", IsAsync(tag))
	}
	if q.obs != nil {
		q.obs.ObserveDispatch(tag.String(), IsAsync(tag))
	}
	q.ch <- m
	if sync {
		<-m.reply
	}
}

func (q *Queue) noteDepth(delta int) {
	q.mu.Lock()
	q.depth += delta
	d := q.depth
	q.mu.Unlock()
	if q.obs != nil {
		q.obs.ObserveQueueDepth(d)
	}
}

// Handler processes one dequeued message on the worker goroutine.
type Handler func(Message)

// Run is the worker-side consume loop: it drains the queue strictly in
// FIFO order until ctx is cancelled or a TagStopWorker
// message arrives, whichever comes first. Each sync message's reply
// channel is closed only after handler returns, establishing the
// happens-before the submitter's blocking Send relies on.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-q.ch:
			q.noteDepth(-1)
			func() {
				defer func() {
					if m.reply != nil {
						close(m.reply)
					}
				}()
				handler(m)
			}()
			if m.Tag == TagStopWorker {
				return
			}
		}
	}
}

// Stop enqueues a TagStopWorker message, the only tag permitted to
// terminate the worker loop.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.noteDepth(1)
		q.ch <- Message{Tag: TagStopWorker}
	})
}

// Depth returns the current number of messages queued but not yet
// dequeued by the worker. Intended for diagnostics/metrics only.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// PayloadAs type-asserts a dequeued message's payload, returning an error
// instead of panicking on mismatch - a malformed payload is a programmer
// error, but the worker loop should still be able to
// log and move on rather than crash the whole process on a bad send from
// a misbehaving caller.
func PayloadAs[T any](m Message) (T, error) {
	v, ok := m.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("dispatch: tag %s: payload type mismatch", m.Tag)
	}
	return v, nil
}
