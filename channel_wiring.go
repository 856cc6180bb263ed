package channeld

import (
	"github.com/spice-project/channeld/internal/channel"
	"github.com/spice-project/channeld/internal/dispatch"
)

// Channel type numbers, matching the SPICE_CHANNEL_* wire enum: the
// graphics channels this package wires up directly. The smartcard
// channel's number (internal/smartcard.ChannelType) lives in that
// package instead, next to the rest of its channel wiring.
const (
	ChannelTypeMain    uint16 = 1
	ChannelTypeDisplay uint16 = 2
	ChannelTypeInputs  uint16 = 3
	ChannelTypeCursor  uint16 = 4
)

// GraphicsConnectPayload is the DISPLAY_CONNECT/CURSOR_CONNECT message
// payload: enough for the worker to attach its render-side per-client
// state to the newly connected channel.Client.
type GraphicsConnectPayload struct {
	ClientID     uint32
	Migration    bool
	Capabilities map[uint32]struct{}
}

// GraphicsDisconnectPayload is the DISPLAY_DISCONNECT/CURSOR_DISCONNECT
// message payload.
type GraphicsDisconnectPayload struct {
	ClientID uint32
}

// GraphicsMigratePayload is the DISPLAY_MIGRATE/CURSOR_MIGRATE message
// payload, carrying the raw migration handoff blob for the worker to
// restore per-client render state from.
type GraphicsMigratePayload struct {
	ClientID uint32
	Data     []byte
}

// DisplayChannelCallbacks builds the channel.Callbacks for the display
// channel backed by d, mirroring red_dispatcher_set_display_peer's
// enqueue of DISPLAY_CONNECT (and the disconnect/migrate counterparts) -
// the one place this package touches internal/channel, and it does so
// only by closing over d.Queue, never by handing the channel package a
// Dispatcher reference.
func DisplayChannelCallbacks(d *Dispatcher) channel.Callbacks {
	return graphicsChannelCallbacks(d, dispatch.TagDisplayConnect, dispatch.TagDisplayDisconnect, dispatch.TagDisplayMigrate)
}

// CursorChannelCallbacks is the cursor-channel counterpart to
// DisplayChannelCallbacks, mirroring red_dispatcher_set_cursor_peer.
func CursorChannelCallbacks(d *Dispatcher) channel.Callbacks {
	return graphicsChannelCallbacks(d, dispatch.TagCursorConnect, dispatch.TagCursorDisconnect, dispatch.TagCursorMigrate)
}

func graphicsChannelCallbacks(d *Dispatcher, connect, disconnect, migrate dispatch.Tag) channel.Callbacks {
	return channel.Callbacks{
		OnConnect: func(c *channel.Client, migration bool, caps map[uint32]struct{}) error {
			d.Queue.Send(connect, GraphicsConnectPayload{
				ClientID:     uint32(c.ID),
				Migration:    migration,
				Capabilities: caps,
			})
			return nil
		},
		OnDisconnect: func(c *channel.Client) {
			d.Queue.Send(disconnect, GraphicsDisconnectPayload{ClientID: uint32(c.ID)})
		},
		OnMigrate: func(c *channel.Client, data []byte) error {
			d.Queue.Send(migrate, GraphicsMigratePayload{ClientID: uint32(c.ID), Data: data})
			return nil
		},
	}
}
