package channeld

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_WakeupCollapsesWhilePending(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)

	assert.False(t, d.trySetPending(pendingWakeup))
	assert.True(t, d.pending&pendingWakeup != 0)

	// A second Wakeup before AckWakeup must collapse rather than send
	// again; trySetPending itself reports "already set".
	assert.True(t, d.trySetPending(pendingWakeup))

	d.AckWakeup()
	assert.False(t, d.trySetPending(pendingWakeup))
}

func TestDispatcher_WakeupAndOOMBitsAreIndependent(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)

	assert.False(t, d.trySetPending(pendingWakeup))
	assert.False(t, d.trySetPending(pendingOOM))
	assert.True(t, d.trySetPending(pendingWakeup))
	assert.True(t, d.trySetPending(pendingOOM))

	d.AckOOM()
	assert.True(t, d.trySetPending(pendingWakeup))
	assert.False(t, d.trySetPending(pendingOOM))
}

func TestDispatcher_CreatePrimarySurfaceSyncCommitsImmediately(t *testing.T) {
	device := NewMockGuestDevice()
	d := NewDispatcher(device, nil, nil)
	registry := NewRegistry(nil, nil)
	registry.Add(d)

	d.CreatePrimarySurface(1, SurfaceCreate{Width: 800, Height: 600, MouseMode: true}, registry)

	active, useHW, xRes, yRes := d.primarySurfaceSnapshot()
	assert.True(t, active)
	assert.True(t, useHW)
	assert.Equal(t, uint32(800), xRes)
	assert.Equal(t, uint32(600), yRes)
}

func TestDispatcher_CreatePrimarySurfaceAsyncCommitsOnlyAfterComplete(t *testing.T) {
	device := NewMockGuestDevice()
	d := NewDispatcher(device, nil, nil)
	registry := NewRegistry(nil, nil)
	registry.Add(d)

	d.CreatePrimarySurfaceAsync(1, SurfaceCreate{Width: 1024, Height: 768}, 42)

	active, _, _, _ := d.primarySurfaceSnapshot()
	assert.False(t, active, "async create must not commit before HandleAsyncComplete")

	d.HandleAsyncComplete(42, registry)

	active, _, xRes, yRes := d.primarySurfaceSnapshot()
	assert.True(t, active)
	assert.Equal(t, uint32(1024), xRes)
	assert.Equal(t, uint32(768), yRes)
	require.Equal(t, 1, device.AsyncCompleteCalls())
	assert.Equal(t, []uint64{42}, device.CompletedCookies())
}

func TestDispatcher_HandleAsyncComplete_UnknownCookieStillForwardsNothing(t *testing.T) {
	device := NewMockGuestDevice()
	d := NewDispatcher(device, nil, nil)

	// No Alloc call was ever made for this cookie; Complete must not
	// panic and must not call AsyncComplete (an unknown cookie is a
	// stricter case than an unrecognized tag).
	d.HandleAsyncComplete(999, nil)
	assert.Zero(t, device.AsyncCompleteCalls())
}

func TestDispatcher_GLDrawAsyncRefusesWithoutPriorScanout(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)

	assert.False(t, d.GLDrawAsync(Rect{}, 1), "draw must be refused before any GLScanout has been registered")
}

func TestDispatcher_GLDrawAsyncRefusesSecondDrawWhileInFlight(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	d.GLScanout(GLScanoutConfig{FD: -1})

	assert.True(t, d.GLDrawAsync(Rect{}, 1))
	assert.False(t, d.GLDrawAsync(Rect{}, 2), "second draw must be refused while one is in flight")

	d.HandleAsyncComplete(1, nil)
	assert.True(t, d.GLDrawAsync(Rect{}, 3), "draw must be allowed again once the in-flight one completes")
}

func TestDispatcher_GLScanoutClosesPreviousFD(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)

	r1, w1, err := os.Pipe()
	require.NoError(t, err)
	defer w1.Close()
	r2, w2, err := os.Pipe()
	require.NoError(t, err)
	defer r2.Close()
	defer w2.Close()

	fd1 := int(r1.Fd())
	d.GLScanout(GLScanoutConfig{FD: fd1})

	fd2 := int(r2.Fd())
	d.GLScanout(GLScanoutConfig{FD: fd2})

	// fd1 was closed by the second GLScanout call; reading or closing it
	// again now must fail with "bad file descriptor" rather than
	// succeed, proving the dispatcher - not the test - closed it.
	assert.Error(t, r1.Close())
}
