package channeld

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CalcCompressionLevel(t *testing.T) {
	r := NewRegistry(nil, nil)

	// Default: auto compression, streaming off -> not quic -> level 0.
	assert.Equal(t, 0, r.calcCompressionLevel())

	r.imageCompression = ImageCompressionQuic
	assert.Equal(t, 1, r.calcCompressionLevel(), "quic compression with streaming off enables level 1")

	r.streamingVideo = StreamingVideoAll
	assert.Equal(t, 0, r.calcCompressionLevel(), "active streaming video always forces level 0")
}

func TestRegistry_SetImageCompressionNotifiesDevicesAndDispatchers(t *testing.T) {
	r := NewRegistry(nil, nil)
	deviceA, deviceB := NewMockGuestDevice(), NewMockGuestDevice()
	dA, dB := NewDispatcher(deviceA, nil, nil), NewDispatcher(deviceB, nil, nil)
	r.Add(dA)
	r.Add(dB)

	r.SetImageCompression(ImageCompressionQuic)

	assert.Equal(t, []int{1}, deviceA.CompressionLevels())
	assert.Equal(t, []int{1}, deviceB.CompressionLevels())
}

func TestRegistry_UpdateClientMouseAllowed_EdgeTriggeredOnly(t *testing.T) {
	r := NewRegistry(nil, nil)
	calls := 0
	var lastAllowed bool
	r.SetMouseAllowedCallback(func(allowed bool, xRes, yRes uint32) {
		calls++
		lastAllowed = allowed
	})

	device := NewMockGuestDevice()
	d := NewDispatcher(device, nil, nil)
	r.Add(d)

	// First primary-surface commit: not-allowed -> allowed is a change,
	// must notify exactly once.
	d.CreatePrimarySurface(1, SurfaceCreate{Width: 640, Height: 480, MouseMode: true}, r)
	require.Equal(t, 1, calls)
	assert.True(t, lastAllowed)

	// A second commit with the same effective allowed state must NOT
	// notify again - this is the fix for the source's
	// `allow_now || allow_now != allowed` bug, which would notify here.
	d.CreatePrimarySurface(1, SurfaceCreate{Width: 640, Height: 480, MouseMode: true}, r)
	assert.Equal(t, 1, calls, "unchanged mouse-allowed state must not re-notify")

	// Re-creating the primary surface with a software cursor flips
	// allowed to false: a real change, must notify again.
	d.CreatePrimarySurface(1, SurfaceCreate{Width: 640, Height: 480, MouseMode: false}, r)
	assert.Equal(t, 2, calls)
	assert.False(t, lastAllowed)

	// With no active primary surface at all, mouse allowed goes back to
	// false per spec.md §4.3's literal invariant (at least one active
	// primary surface required) - a no-op here since it was already
	// false from the software-cursor commit above.
	d.DestroyPrimarySurface(1, r)
	assert.Equal(t, 2, calls, "already-false mouse-allowed state must not re-notify")
	assert.False(t, lastAllowed)
}

func TestRegistry_UpdateClientMouseAllowed_NotAllowedWithNoActivePrimarySurface(t *testing.T) {
	r := NewRegistry(nil, nil)
	calls := 0
	var lastAllowed bool
	r.SetMouseAllowedCallback(func(allowed bool, xRes, yRes uint32) {
		calls++
		lastAllowed = allowed
	})

	// A dispatcher with no primary surface at all must not allow mouse
	// input - the reference server's num_active_workers > 0 shortcut
	// would allow it here; spec.md §4.3 requires an active primary
	// surface. No primary surface ever got created, so mouseAllowed's
	// zero value (false) is correct and no notification fires.
	d := NewDispatcher(NewMockGuestDevice(), nil, nil)
	r.Add(d)
	r.updateClientMouseAllowed()

	assert.Equal(t, 0, calls)
	assert.False(t, lastAllowed)
}

func TestRegistry_UpdateClientMouseAllowed_ReportsResolutionForSingleDispatcher(t *testing.T) {
	r := NewRegistry(nil, nil)
	var gotX, gotY uint32
	r.SetMouseAllowedCallback(func(allowed bool, xRes, yRes uint32) {
		gotX, gotY = xRes, yRes
	})

	d := NewDispatcher(NewMockGuestDevice(), nil, nil)
	r.Add(d)

	d.CreatePrimarySurface(1, SurfaceCreate{Width: 1920, Height: 1080, MouseMode: true}, r)

	assert.Equal(t, uint32(1920), gotX)
	assert.Equal(t, uint32(1080), gotY)
}

func TestRegistry_StartVMAndStopVMBroadcastToAllDispatchers(t *testing.T) {
	r := NewRegistry(nil, nil)
	d1 := NewDispatcher(NewMockGuestDevice(), nil, nil)
	d2 := NewDispatcher(NewMockGuestDevice(), nil, nil)
	r.Add(d1)
	r.Add(d2)

	// Start/Stop just enqueue onto each dispatcher's queue (capacity
	// 256, nothing draining it here): one START and one STOP land on
	// every registered dispatcher's queue.
	r.StartVM()
	r.StopVM()

	assert.Equal(t, 2, d1.Queue.Depth())
	assert.Equal(t, 2, d2.Queue.Depth())
}

func TestRegistry_DumpStateMarshalsDispatcherSnapshot(t *testing.T) {
	r := NewRegistry(nil, nil)
	d := NewDispatcher(NewMockGuestDevice(), nil, nil)
	r.Add(d)
	d.CreatePrimarySurface(1, SurfaceCreate{Width: 100, Height: 200}, r)

	raw, err := r.DumpState()
	require.NoError(t, err)

	var state RegistryState
	require.NoError(t, json.Unmarshal(raw, &state))
	require.Len(t, state.Dispatchers, 1)
	assert.True(t, state.Dispatchers[0].PrimaryActive)
	assert.Equal(t, uint32(100), state.Dispatchers[0].XRes)
	assert.Equal(t, uint32(200), state.Dispatchers[0].YRes)
}

func TestRegistry_RemoveStopsFurtherBroadcasts(t *testing.T) {
	r := NewRegistry(nil, nil)
	device := NewMockGuestDevice()
	d := NewDispatcher(device, nil, nil)
	r.Add(d)
	r.Remove(d)

	assert.Zero(t, r.Count())
	r.SetImageCompression(ImageCompressionQuic)
	assert.Empty(t, device.CompressionLevels())
}
