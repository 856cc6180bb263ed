package channeld

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/spice-project/channeld/internal/dispatch"
	"github.com/spice-project/channeld/internal/interfaces"
)

// Pending bits for Dispatcher.pending, set by trySetPending/clearPending.
// Mirrors RED_DISPATCHER_PENDING_WAKEUP/RED_DISPATCHER_PENDING_OOM.
const (
	pendingWakeup uint32 = 1 << iota
	pendingOOM
)

// Rect is the minimal rectangle shape UpdateArea/GLDraw deal in; the
// fabric treats it as an opaque payload field, not a geometry type to
// operate on.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// MemSlot mirrors QXLDevMemSlot: a guest memory region the worker maps
// for command/surface addressing.
type MemSlot struct {
	SlotGroupID, SlotID uint32
	VirtStart, VirtEnd  uint64
	AddrDelta           int64
	Generation          uint32
}

// SurfaceCreate mirrors QXLDevSurfaceCreate: the parameters staged by a
// CreatePrimarySurface[Async] call and consumed by the matching complete
// step.
type SurfaceCreate struct {
	Width, Height uint32
	Format        uint32
	Stride        int32
	MouseMode     bool
	Flags         uint32
}

// GLScanoutConfig mirrors SpiceMsgDisplayGlScanoutUnix: the last scanout
// buffer description registered via GLScanout, guarded by scanoutMu.
type GLScanoutConfig struct {
	FD            int
	Width, Height uint32
	Stride        uint32
	Format        uint32
	Y0Top         bool
}

// Dispatcher is the device dispatcher (DD): one per guest graphics
// instance. It owns the dispatch queue and async registry that connect
// the guest-facing Sync/Async methods below to a worker goroutine, plus
// the primary-surface lifecycle fields that needs a
// two-phase commit.
type Dispatcher struct {
	Queue *dispatch.Queue
	Async *dispatch.AsyncRegistry

	device GuestDevice
	logger interfaces.Logger
	obs    interfaces.Observer

	// mu guards the primary-surface lifecycle fields. They are written
	// by the submitter (staging, and the sync create/destroy commits)
	// and by the worker goroutine (async completion), and read by
	// Registry's scan-and-report pass from whichever goroutine triggers
	// it.
	mu                    sync.Mutex
	primaryActive         bool
	xRes, yRes            uint32
	useHWCursor           bool
	stagedSurfaceCreate   SurfaceCreate
	maxMonitors           uint32

	// pending is deliberately not an atomic: a lost update here only
	// means an extra WAKEUP/OOM send on the next call, never a missed
	// one forever, so no atomic is needed here.
	pending uint32

	scanoutMu    sync.Mutex
	scanout      GLScanoutConfig
	hasScanout   bool
	drawInFlight bool
}

// NewDispatcher creates a Dispatcher wired to device for async-complete
// callbacks and compression notifications. The caller is responsible for
// starting a worker (internal/worker.Worker) that drains Queue.
func NewDispatcher(device GuestDevice, logger interfaces.Logger, obs interfaces.Observer) *Dispatcher {
	return &Dispatcher{
		Queue:       dispatch.NewQueue(0, logger, obs),
		Async:       dispatch.NewAsyncRegistry(logger, obs),
		device:      device,
		logger:      logger,
		obs:         obs,
		maxMonitors: 1,
	}
}

// --- pending bitmask (Wakeup/OOM collapsing) ---

// trySetPending reports whether bit was already set, setting it if not.
// Mirrors red_dispatcher_set_pending.
func (d *Dispatcher) trySetPending(bit uint32) bool {
	if d.pending&bit != 0 {
		return true
	}
	d.pending |= bit
	return false
}

// clearPending is called by the worker once it has drained the
// corresponding message, allowing a future Wakeup/OOM to send again.
func (d *Dispatcher) clearPending(bit uint32) {
	d.pending &^= bit
}

// Wakeup sends WAKEUP unless one is already pending, collapsing repeated
// guest wakeups into a single in-flight message.
func (d *Dispatcher) Wakeup() {
	if d.trySetPending(pendingWakeup) {
		if d.obs != nil {
			d.obs.ObservePendingCollapse(dispatch.TagWakeup.String())
		}
		return
	}
	d.Queue.Send(dispatch.TagWakeup, nil)
}

// OOM sends OOM unless one is already pending, the same collapsing
// behavior as Wakeup but on the independent OOM bit.
func (d *Dispatcher) OOM() {
	if d.trySetPending(pendingOOM) {
		if d.obs != nil {
			d.obs.ObservePendingCollapse(dispatch.TagOOM.String())
		}
		return
	}
	d.Queue.Send(dispatch.TagOOM, nil)
}

// AckWakeup clears the WAKEUP pending bit. Called by the worker backend
// once it has processed a WAKEUP message, so the next Wakeup() call is
// free to send again.
func (d *Dispatcher) AckWakeup() { d.clearPending(pendingWakeup) }

// AckOOM clears the OOM pending bit, the OOM counterpart to AckWakeup.
func (d *Dispatcher) AckOOM() { d.clearPending(pendingOOM) }

// --- lifecycle ---

// Start sends START.
func (d *Dispatcher) Start() { d.Queue.Send(dispatch.TagStart, nil) }

// Stop sends STOP.
func (d *Dispatcher) Stop() { d.Queue.Send(dispatch.TagStop, nil) }

// DriverUnload sends DRIVER_UNLOAD.
func (d *Dispatcher) DriverUnload() { d.Queue.Send(dispatch.TagDriverUnload, nil) }

// SetMaxMonitors records the per-dispatcher monitor cap consulted by
// MonitorsConfigAsync, mirroring RedDispatcher.max_monitors.
func (d *Dispatcher) SetMaxMonitors(max uint32) {
	d.mu.Lock()
	d.maxMonitors = max
	d.mu.Unlock()
}

// --- memslots / surfaces (sync) ---

// AddMemslotPayload is the UPDATE/ADD_MEMSLOT payload shape.
type AddMemslotPayload struct {
	Slot MemSlot
}

func (d *Dispatcher) AddMemslot(slot MemSlot) {
	d.Queue.Send(dispatch.TagAddMemslot, AddMemslotPayload{Slot: slot})
}

type AddMemslotAsyncPayload struct {
	Slot   MemSlot
	Cookie uint64
}

func (d *Dispatcher) AddMemslotAsync(slot MemSlot, cookie uint64) {
	d.Async.Alloc(dispatch.TagAddMemslotAsync, cookie)
	d.Queue.Send(dispatch.TagAddMemslotAsync, AddMemslotAsyncPayload{Slot: slot, Cookie: cookie})
}

type DelMemslotPayload struct {
	SlotGroupID, SlotID uint32
}

func (d *Dispatcher) DelMemslot(slotGroupID, slotID uint32) {
	d.Queue.Send(dispatch.TagDelMemslot, DelMemslotPayload{SlotGroupID: slotGroupID, SlotID: slotID})
}

func (d *Dispatcher) ResetMemslots() { d.Queue.Send(dispatch.TagResetMemslots, nil) }

func (d *Dispatcher) ResetImageCache() { d.Queue.Send(dispatch.TagResetImageCache, nil) }

func (d *Dispatcher) ResetCursor() { d.Queue.Send(dispatch.TagResetCursor, nil) }

func (d *Dispatcher) DestroySurfaces() { d.Queue.Send(dispatch.TagDestroySurfaces, nil) }

type DestroySurfacesAsyncPayload struct {
	Cookie uint64
}

func (d *Dispatcher) DestroySurfacesAsync(cookie uint64) {
	d.Async.Alloc(dispatch.TagDestroySurfacesAsync, cookie)
	d.Queue.Send(dispatch.TagDestroySurfacesAsync, DestroySurfacesAsyncPayload{Cookie: cookie})
}

type UpdateAreaPayload struct {
	SurfaceID        uint32
	Area             Rect
	DirtyRects       []Rect
	ClearDirtyRegion uint32
}

// UpdateArea is a sync tag: Send blocks until the worker has applied the
// area update directly, with no async command involved.
func (d *Dispatcher) UpdateArea(p UpdateAreaPayload) {
	d.Queue.Send(dispatch.TagUpdateArea, p)
}

type UpdateAreaAsyncPayload struct {
	SurfaceID        uint32
	Area             Rect
	ClearDirtyRegion uint32
	Cookie           uint64
}

func (d *Dispatcher) UpdateAreaAsync(p UpdateAreaAsyncPayload) {
	d.Async.Alloc(dispatch.TagUpdateAreaAsync, p.Cookie)
	d.Queue.Send(dispatch.TagUpdateAreaAsync, p)
}

type DestroySurfaceWaitPayload struct {
	SurfaceID uint32
}

func (d *Dispatcher) DestroySurfaceWait(surfaceID uint32) {
	d.Queue.Send(dispatch.TagDestroySurfaceWait, DestroySurfaceWaitPayload{SurfaceID: surfaceID})
}

type DestroySurfaceWaitAsyncPayload struct {
	SurfaceID uint32
	Cookie    uint64
}

func (d *Dispatcher) DestroySurfaceWaitAsync(surfaceID uint32, cookie uint64) {
	d.Async.Alloc(dispatch.TagDestroySurfaceWaitAsync, cookie)
	d.Queue.Send(dispatch.TagDestroySurfaceWaitAsync, DestroySurfaceWaitAsyncPayload{SurfaceID: surfaceID, Cookie: cookie})
}

// --- primary surface (two-phase: stage, send, complete) ---

type CreatePrimarySurfacePayload struct {
	SurfaceID uint32
	Surface   SurfaceCreate
}

// CreatePrimarySurface stages surface into the Dispatcher, sends the sync
// message, then commits it immediately - mirroring
// red_dispatcher_create_primary_surface_sync, which calls
// red_dispatcher_create_primary_surface_complete right after the send
// returns rather than waiting for an async callback.
func (d *Dispatcher) CreatePrimarySurface(surfaceID uint32, surface SurfaceCreate, mouseAllowed *Registry) {
	d.mu.Lock()
	d.stagedSurfaceCreate = surface
	d.mu.Unlock()

	d.Queue.Send(dispatch.TagCreatePrimarySurface, CreatePrimarySurfacePayload{SurfaceID: surfaceID, Surface: surface})
	d.completeCreatePrimarySurface(mouseAllowed)
}

type CreatePrimarySurfaceAsyncPayload struct {
	SurfaceID uint32
	Surface   SurfaceCreate
	Cookie    uint64
}

// CreatePrimarySurfaceAsync stages surface and sends the async message;
// the commit happens later, from completeAsync, once the worker's
// completion arrives.
func (d *Dispatcher) CreatePrimarySurfaceAsync(surfaceID uint32, surface SurfaceCreate, cookie uint64) {
	d.mu.Lock()
	d.stagedSurfaceCreate = surface
	d.mu.Unlock()

	d.Async.Alloc(dispatch.TagCreatePrimarySurfaceAsync, cookie)
	d.Queue.Send(dispatch.TagCreatePrimarySurfaceAsync, CreatePrimarySurfaceAsyncPayload{
		SurfaceID: surfaceID, Surface: surface, Cookie: cookie,
	})
}

// completeCreatePrimarySurface commits the staged SurfaceCreate into the
// primary-surface fields and clears the staging area, mirroring
// red_dispatcher_create_primary_surface_complete.
func (d *Dispatcher) completeCreatePrimarySurface(mouseAllowed *Registry) {
	d.mu.Lock()
	s := d.stagedSurfaceCreate
	d.xRes = s.Width
	d.yRes = s.Height
	d.useHWCursor = s.MouseMode
	d.primaryActive = true
	d.stagedSurfaceCreate = SurfaceCreate{}
	d.mu.Unlock()

	if mouseAllowed != nil {
		mouseAllowed.updateClientMouseAllowed()
	}
}

type DestroyPrimarySurfacePayload struct {
	SurfaceID uint32
}

func (d *Dispatcher) DestroyPrimarySurface(surfaceID uint32, mouseAllowed *Registry) {
	d.Queue.Send(dispatch.TagDestroyPrimarySurface, DestroyPrimarySurfacePayload{SurfaceID: surfaceID})
	d.completeDestroyPrimarySurface(mouseAllowed)
}

type DestroyPrimarySurfaceAsyncPayload struct {
	SurfaceID uint32
	Cookie    uint64
}

func (d *Dispatcher) DestroyPrimarySurfaceAsync(surfaceID uint32, cookie uint64) {
	d.Async.Alloc(dispatch.TagDestroyPrimarySurfaceAsync, cookie)
	d.Queue.Send(dispatch.TagDestroyPrimarySurfaceAsync, DestroyPrimarySurfaceAsyncPayload{
		SurfaceID: surfaceID, Cookie: cookie,
	})
}

// completeDestroyPrimarySurface resets the primary-surface fields,
// mirroring red_dispatcher_destroy_primary_surface_complete.
func (d *Dispatcher) completeDestroyPrimarySurface(mouseAllowed *Registry) {
	d.mu.Lock()
	d.xRes = 0
	d.yRes = 0
	d.useHWCursor = false
	d.primaryActive = false
	d.mu.Unlock()

	if mouseAllowed != nil {
		mouseAllowed.updateClientMouseAllowed()
	}
}

// primarySurfaceSnapshot returns the fields Registry.updateClientMouseAllowed
// needs, taken under Dispatcher's own mutex.
func (d *Dispatcher) primarySurfaceSnapshot() (active, useHWCursor bool, xRes, yRes uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.primaryActive, d.useHWCursor, d.xRes, d.yRes
}

// --- loadvm / flush / monitors / gl ---

type LoadvmCommandsPayload struct {
	Commands []any
}

func (d *Dispatcher) LoadvmCommands(commands []any) {
	d.Queue.Send(dispatch.TagLoadvmCommands, LoadvmCommandsPayload{Commands: commands})
}

type FlushSurfacesAsyncPayload struct {
	Cookie uint64
}

func (d *Dispatcher) FlushSurfacesAsync(cookie uint64) {
	d.Async.Alloc(dispatch.TagFlushSurfacesAsync, cookie)
	d.Queue.Send(dispatch.TagFlushSurfacesAsync, FlushSurfacesAsyncPayload{Cookie: cookie})
}

type MonitorsConfigAsyncPayload struct {
	MonitorsConfig uint64
	GroupID        int
	MaxMonitors    uint32
	Cookie         uint64
}

func (d *Dispatcher) MonitorsConfigAsync(monitorsConfig uint64, groupID int, cookie uint64) {
	d.mu.Lock()
	max := d.maxMonitors
	d.mu.Unlock()

	d.Async.Alloc(dispatch.TagMonitorsConfigAsync, cookie)
	d.Queue.Send(dispatch.TagMonitorsConfigAsync, MonitorsConfigAsyncPayload{
		MonitorsConfig: monitorsConfig, GroupID: groupID, MaxMonitors: max, Cookie: cookie,
	})
}

// GLScanout records the latest scanout buffer description under
// scanoutMu, closing whatever DMA-buf fd was previously cached there,
// and sends GL_SCANOUT - coalescing is left as a FIXME in the original
// and is not implemented here either.
func (d *Dispatcher) GLScanout(cfg GLScanoutConfig) {
	d.scanoutMu.Lock()
	if d.hasScanout {
		if err := unix.Close(d.scanout.FD); err != nil && d.logger != nil {
			d.logger.Error("dispatcher: gl_scanout: close of previous fd failed", "error", err)
		}
	}
	d.scanout = cfg
	d.hasScanout = true
	d.scanoutMu.Unlock()

	d.Queue.Send(dispatch.TagGLScanout, nil)
}

type GLDrawAsyncPayload struct {
	Area   Rect
	Cookie uint64
}

// GLDrawAsync refuses to start a second draw while one is already in
// flight, and refuses any draw before a scanout has been registered.
func (d *Dispatcher) GLDrawAsync(area Rect, cookie uint64) bool {
	d.scanoutMu.Lock()
	if !d.hasScanout || d.drawInFlight {
		d.scanoutMu.Unlock()
		return false
	}
	d.drawInFlight = true
	d.scanoutMu.Unlock()

	d.Async.Alloc(dispatch.TagGLDrawAsync, cookie)
	d.Queue.Send(dispatch.TagGLDrawAsync, GLDrawAsyncPayload{Area: area, Cookie: cookie})
	return true
}

// ackGLDraw clears drawInFlight once the completion for a GLDrawAsync
// cookie has been delivered.
func (d *Dispatcher) ackGLDraw() {
	d.scanoutMu.Lock()
	d.drawInFlight = false
	d.scanoutMu.Unlock()
}

// --- async completion wiring ---

// HandleAsyncComplete runs the tag-specific post-action for cookie (if
// any) and forwards the completion to the guest device, mirroring the
// tag switch in red_dispatcher_async_complete. mouseAllowed may be nil in
// tests that don't exercise the mouse-allowed broadcast.
func (d *Dispatcher) HandleAsyncComplete(cookie uint64, mouseAllowed *Registry) {
	d.Async.Complete(cookie, func(cmd *dispatch.AsyncCommand) {
		switch cmd.Tag {
		case dispatch.TagCreatePrimarySurfaceAsync:
			d.completeCreatePrimarySurface(mouseAllowed)
		case dispatch.TagDestroyPrimarySurfaceAsync:
			d.completeDestroyPrimarySurface(mouseAllowed)
		case dispatch.TagGLDrawAsync:
			d.ackGLDraw()
		case dispatch.TagUpdateAreaAsync,
			dispatch.TagAddMemslotAsync,
			dispatch.TagDestroySurfacesAsync,
			dispatch.TagDestroySurfaceWaitAsync,
			dispatch.TagFlushSurfacesAsync,
			dispatch.TagMonitorsConfigAsync:
			// no dispatcher-side post-action
		default:
			if d.logger != nil {
				d.logger.Warn("dispatcher: async_complete for unexpected tag", "tag", cmd.Tag.String())
			}
		}
	}, func(cookie uint64) {
		if d.device != nil {
			d.device.AsyncComplete(cookie)
		}
	})
}
