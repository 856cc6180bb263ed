// Package worker runs the worker-side consume loop over a dispatch.Queue:
// one goroutine per graphics instance, draining commands strictly in FIFO
// order and applying them to a pluggable Backend (the render/device
// pipeline, an out-of-scope external collaborator - this core only needs
// to drive it, not implement it).
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/spice-project/channeld/internal/dispatch"
	"github.com/spice-project/channeld/internal/interfaces"
)

// Backend is the render/device pipeline the worker drives. It is the
// external collaborator this package explicitly leaves out of scope; only
// its shape (one call per dequeued message) lives here.
type Backend interface {
	// Process applies msg's effect. Implementations must not block
	// indefinitely - the worker loop is single-threaded per instance and a
	// stuck Process call stalls every message behind it.
	Process(msg dispatch.Message) error
}

// Worker owns the goroutine that drains a Queue and feeds a Backend.
type Worker struct {
	queue   *dispatch.Queue
	backend Backend
	logger  interfaces.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a Worker bound to queue and backend. It does not start the
// goroutine; call Start.
func New(parent context.Context, queue *dispatch.Queue, backend Backend, logger interfaces.Logger) *Worker {
	ctx, cancel := context.WithCancel(parent)
	return &Worker{
		queue:   queue,
		backend: backend,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the consume loop in its own goroutine.
func (w *Worker) Start() {
	go func() {
		defer close(w.done)
		w.queue.Run(w.ctx, w.handle)
	}()
}

// Stop pushes TagStopWorker behind any messages already queued, waits for
// the goroutine to drain them and exit, then cancels the worker's context.
func (w *Worker) Stop() {
	w.once.Do(func() {
		w.queue.Stop()
	})
	<-w.done
	w.cancel()
}

// handle wraps Backend.Process with panic recovery: a panic inside the
// render pipeline must not escape as a cross-goroutine panic
// and take down the whole process
// - "no exceptions cross thread boundaries"). It is converted to a
// wrapped error and logged instead. TagStopWorker only ends the loop and
// is not passed to the Backend.
func (w *Worker) handle(m dispatch.Message) {
	if m.Tag == dispatch.TagStopWorker {
		return
	}
	err := w.safeProcess(m)
	if err != nil && w.logger != nil {
		w.logger.Error("worker: backend process failed", "tag", m.Tag.String(), "error", err)
	}
}

func (w *Worker) safeProcess(m dispatch.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(fmt.Errorf("panic: %v", r), "processing tag %s", m.Tag)
		}
	}()
	return w.backend.Process(m)
}
