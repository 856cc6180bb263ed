package channeld

import (
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/spice-project/channeld/internal/dispatch"
	"github.com/spice-project/channeld/internal/interfaces"
)

// SetCompressionPayload is the SET_COMPRESSION message payload.
type SetCompressionPayload struct {
	ImageCompression ImageCompression
}

// SetStreamingVideoPayload is the SET_STREAMING_VIDEO message payload.
type SetStreamingVideoPayload struct {
	StreamingVideo StreamingVideoMode
}

// SetMouseModePayload is the SET_MOUSE_MODE message payload.
type SetMouseModePayload struct {
	Mode MouseMode
}

// StreamingVideoMode mirrors SpiceStreamingVideo (off/all/filter), the
// input calcCompressionLevel consults alongside image compression.
type StreamingVideoMode int

const (
	StreamingVideoOff StreamingVideoMode = iota
	StreamingVideoAll
	StreamingVideoFilter
)

// ImageCompression mirrors SPICE_IMAGE_COMPRESSION_*; only the
// distinction between Quic and everything else matters to
// calcCompressionLevel.
type ImageCompression int

const (
	ImageCompressionAuto ImageCompression = iota
	ImageCompressionOff
	ImageCompressionQuic
	ImageCompressionGlz
	ImageCompressionLZ
	ImageCompressionLZ4
)

// MouseMode mirrors the SPICE_MOUSE_MODE_* constants broadcast via
// SetMouseMode.
type MouseMode int

const (
	MouseModeServer MouseMode = iota
	MouseModeClient
)

// Registry is the global fan-out controller (G): the process-wide list
// of active dispatchers, the compression/streaming-video knobs, VM
// running state and mouse mode, and the client-mouse-allowed broadcast.
// One Registry exists per process, holding what used to be a handful of
// file-static globals.
type Registry struct {
	mu          sync.Mutex
	dispatchers []*Dispatcher

	streamingVideo   StreamingVideoMode
	imageCompression ImageCompression

	mouseAllowed bool

	logger interfaces.Logger
	obs    interfaces.Observer

	// onMouseAllowedChange, if set, receives the broadcast that the
	// original sends to reds_set_client_mouse_allowed. Nil is a valid
	// no-op default for tests that don't care about the transport
	// side of the notification.
	onMouseAllowedChange func(allowed bool, xRes, yRes uint32)
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger interfaces.Logger, obs interfaces.Observer) *Registry {
	return &Registry{
		logger:           logger,
		obs:              obs,
		streamingVideo:   StreamingVideoOff,
		imageCompression: ImageCompressionAuto,
	}
}

// SetMouseAllowedCallback installs the sink for mouse-allowed change
// notifications, replacing reds_set_client_mouse_allowed.
func (r *Registry) SetMouseAllowedCallback(fn func(allowed bool, xRes, yRes uint32)) {
	r.mu.Lock()
	r.onMouseAllowedChange = fn
	r.mu.Unlock()
}

// Add registers d at the head of the list, making it visible to fan-out
// broadcasts.
func (r *Registry) Add(d *Dispatcher) {
	r.mu.Lock()
	r.dispatchers = append([]*Dispatcher{d}, r.dispatchers...)
	r.mu.Unlock()
}

// Remove unregisters d. Dispatchers are never individually removed in
// the reference server (only the whole process exits); this is added so
// tests can exercise a Registry's lifetime without leaking across cases.
func (r *Registry) Remove(d *Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.dispatchers {
		if cur == d {
			r.dispatchers = append(r.dispatchers[:i], r.dispatchers[i+1:]...)
			return
		}
	}
}

// Count reports the number of registered dispatchers, mirroring
// red_dispatcher_count.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dispatchers)
}

func (r *Registry) snapshot() []*Dispatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Dispatcher, len(r.dispatchers))
	copy(out, r.dispatchers)
	return out
}

// calcCompressionLevel ports calc_compression_level verbatim: quic
// compression is disabled (falls back to raw) whenever streaming video
// is active or image compression isn't explicitly quic.
func (r *Registry) calcCompressionLevel() int {
	if r.streamingVideo != StreamingVideoOff || r.imageCompression != ImageCompressionQuic {
		return 0
	}
	return 1
}

// SetImageCompression updates the knob and fans out SET_COMPRESSION plus
// a SetCompressionLevel callback to every dispatcher, mirroring
// red_dispatcher_on_ic_change.
func (r *Registry) SetImageCompression(mode ImageCompression) {
	r.mu.Lock()
	r.imageCompression = mode
	level := r.calcCompressionLevel()
	r.mu.Unlock()

	for _, d := range r.snapshot() {
		if d.device != nil {
			d.device.SetCompressionLevel(level)
		}
		d.Queue.Send(dispatch.TagSetCompression, SetCompressionPayload{ImageCompression: mode})
	}
}

// SetStreamingVideo updates the knob and fans out SET_STREAMING_VIDEO
// plus a SetCompressionLevel callback, mirroring
// red_dispatcher_on_sv_change.
func (r *Registry) SetStreamingVideo(mode StreamingVideoMode) {
	r.mu.Lock()
	r.streamingVideo = mode
	level := r.calcCompressionLevel()
	r.mu.Unlock()

	for _, d := range r.snapshot() {
		if d.device != nil {
			d.device.SetCompressionLevel(level)
		}
		d.Queue.Send(dispatch.TagSetStreamingVideo, SetStreamingVideoPayload{StreamingVideo: mode})
	}
}

// SetMouseMode broadcasts SET_MOUSE_MODE to every dispatcher, mirroring
// red_dispatcher_set_mouse_mode.
func (r *Registry) SetMouseMode(mode MouseMode) {
	for _, d := range r.snapshot() {
		d.Queue.Send(dispatch.TagSetMouseMode, SetMouseModePayload{Mode: mode})
	}
}

// StartVM sends START to every dispatcher, mirroring red_dispatcher_on_vm_start.
func (r *Registry) StartVM() {
	for _, d := range r.snapshot() {
		d.Start()
	}
}

// StopVM sends STOP to every dispatcher, mirroring red_dispatcher_on_vm_stop.
func (r *Registry) StopVM() {
	for _, d := range r.snapshot() {
		d.Stop()
	}
}

// DriverUnload broadcasts DRIVER_UNLOAD to every dispatcher.
func (r *Registry) DriverUnload() {
	for _, d := range r.snapshot() {
		d.DriverUnload()
	}
}

// updateClientMouseAllowed implements the corrected scan-and-report logic,
// fixing a bug present in the reference server's
//
//	if (allow_now || allow_now != allowed)
//
// notifies on every call where allow_now is true, even when nothing
// changed since the last call. That's the bug the redesign flag calls
// out; here the guard is edge-triggered (allowNow != allowed) only.
//
// allowNow itself follows spec.md §4.3's literal invariant rather than
// the reference server's num_active_workers shortcut (see DESIGN.md's
// Open Questions): mouse input is allowed iff at least one dispatcher
// has an active primary surface, and every active primary surface
// advertises a hardware cursor. Zero dispatchers, or dispatchers with
// no active primary surface at all, means not allowed - rather than
// allowed by default, as the reference's "any worker registered" check
// would have it.
func (r *Registry) updateClientMouseAllowed() {
	r.mu.Lock()
	dispatchers := make([]*Dispatcher, len(r.dispatchers))
	copy(dispatchers, r.dispatchers)
	prevAllowed := r.mouseAllowed
	cb := r.onMouseAllowedChange
	r.mu.Unlock()

	allowNow := false
	foundActive := false
	var xRes, yRes uint32
	for _, d := range dispatchers {
		active, useHWCursor, dx, dy := d.primarySurfaceSnapshot()
		if !active {
			continue
		}
		if !foundActive {
			foundActive = true
			allowNow = true
		}
		if !useHWCursor {
			allowNow = false
			continue
		}
		xRes, yRes = dx, dy
	}
	if !foundActive {
		allowNow = false
	}

	if allowNow == prevAllowed {
		return
	}

	r.mu.Lock()
	r.mouseAllowed = allowNow
	r.mu.Unlock()

	if cb != nil {
		cb(allowNow, xRes, yRes)
	}
}

// DispatcherState is one entry of Registry.DumpState's snapshot.
type DispatcherState struct {
	PrimaryActive bool   `json:"primary_active"`
	XRes          uint32 `json:"x_res"`
	YRes          uint32 `json:"y_res"`
	Pending       uint32 `json:"pending"`
}

// RegistryState is the full Registry.DumpState payload.
type RegistryState struct {
	ImageCompression ImageCompression   `json:"image_compression"`
	StreamingVideo   StreamingVideoMode `json:"streaming_video"`
	MouseAllowed     bool               `json:"mouse_allowed"`
	Dispatchers      []DispatcherState  `json:"dispatchers"`
}

// DumpState returns a jsoniter-marshaled operational snapshot of the
// registry, purely a debugging aid - not part of the wire protocol.
func (r *Registry) DumpState() ([]byte, error) {
	r.mu.Lock()
	state := RegistryState{
		ImageCompression: r.imageCompression,
		StreamingVideo:   r.streamingVideo,
		MouseAllowed:     r.mouseAllowed,
	}
	dispatchers := make([]*Dispatcher, len(r.dispatchers))
	copy(dispatchers, r.dispatchers)
	r.mu.Unlock()

	for _, d := range dispatchers {
		active, _, xRes, yRes := d.primarySurfaceSnapshot()
		state.Dispatchers = append(state.Dispatchers, DispatcherState{
			PrimaryActive: active,
			XRes:          xRes,
			YRes:          yRes,
			Pending:       d.pending,
		})
	}

	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(state)
}
