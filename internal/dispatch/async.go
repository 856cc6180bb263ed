package dispatch

import (
	"sync"
	"time"

	"github.com/spice-project/channeld/internal/interfaces"
)

// AsyncCommand is allocated by the submitter at the moment it issues any
// message whose tag is in the async set, and freed once the worker's
// completion has been delivered to the guest device.
type AsyncCommand struct {
	Tag    Tag
	Cookie uint64

	allocated time.Time
}

// CompleteFunc performs tag-specific post-actions against the owning
// dispatcher (e.g. committing a staged primary-surface create) before the
// cookie is handed back to the guest. It runs once per command, on the
// worker goroutine that calls AsyncRegistry.Complete.
type CompleteFunc func(cmd *AsyncCommand)

// DeliverFunc is the guest device's async_complete callback. The registry
// guarantees exactly one call per allocated cookie.
type DeliverFunc func(cookie uint64)

// AsyncRegistry tracks in-flight async commands keyed by cookie. One
// registry is owned by each Dispatcher; it outlives no command past its
// single Complete call.
type AsyncRegistry struct {
	mu      sync.Mutex
	pending map[uint64]*AsyncCommand
	logger  interfaces.Logger
	obs     interfaces.Observer
}

// NewAsyncRegistry creates an empty registry.
func NewAsyncRegistry(logger interfaces.Logger, obs interfaces.Observer) *AsyncRegistry {
	return &AsyncRegistry{
		pending: make(map[uint64]*AsyncCommand),
		logger:  logger,
		obs:     obs,
	}
}

// Alloc records a new in-flight command. Called by the submitter before
// the corresponding Send, mirroring async_command_alloc in
// red-dispatcher.c.
func (r *AsyncRegistry) Alloc(tag Tag, cookie uint64) *AsyncCommand {
	cmd := &AsyncCommand{Tag: tag, Cookie: cookie, allocated: time.Now()}
	r.mu.Lock()
	r.pending[cookie] = cmd
	r.mu.Unlock()
	return cmd
}

// Complete runs the worker-side completion for cookie: it looks up the
// AsyncCommand, invokes post (tag-specific dispatcher mutation, may be
// nil), invokes deliver exactly once, then frees the record. Unknown
// cookies are logged and otherwise ignored - they cannot be delivered to
// a device, but this must never stall the worker (forward
// progress guarantee applies to unknown *tags*; an unknown *cookie* is a
// stricter program bug, logged rather than silently dropped).
func (r *AsyncRegistry) Complete(cookie uint64, post CompleteFunc, deliver DeliverFunc) {
	r.mu.Lock()
	cmd, ok := r.pending[cookie]
	if ok {
		delete(r.pending, cookie)
	}
	r.mu.Unlock()

	if !ok {
		if r.logger != nil {
			r.logger.Error("dispatch: async_complete for unknown cookie", "cookie", cookie)
		}
		return
	}

	if post != nil {
		post(cmd)
	}
	if deliver != nil {
		deliver(cmd.Cookie)
	}
	if r.obs != nil {
		r.obs.ObserveAsyncComplete(cmd.Tag.String(), uint64(time.Since(cmd.allocated)))
	}
}

// Len reports the number of commands currently in flight. Diagnostics
// only.
func (r *AsyncRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
