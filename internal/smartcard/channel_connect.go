package smartcard

import (
	"fmt"

	"github.com/spice-project/channeld/internal/channel"
)

// ChannelType is the SPICE_CHANNEL_SMARTCARD wire channel-type number
// this package's channels register under.
const ChannelType uint16 = 8

// ChannelCallbacks builds the smartcard channel's channel.Callbacks:
// OnConnect attaches the new client to the first unattached reader in
// bridges, if any - a zero-message initial ACK window falls out for free
// since a freshly constructed Client's pipe starts empty, nothing is
// pushed to it before Attach's reader-add notification goes to the
// device, not the client. OnDisconnect detaches whichever bridge the
// client claimed (tracked via channel.Client.AttachedBridge, the P7
// bookkeeping Bridge.Attach/Detach maintain). OnMigrate decodes the
// migration envelope and restores it into that same bridge.
//
// Mirrors smartcard_channel_client_new / smartcard_char_device_attach_client
// (connect), smartcard_char_device_detach_client (disconnect), and
// smartcard_channel_handle_migrate_data (migrate).
func ChannelCallbacks(bridges *BridgeSet) channel.Callbacks {
	return channel.Callbacks{
		OnConnect: func(c *channel.Client, migration bool, caps map[uint32]struct{}) error {
			c.SetWaitingForMigrateData(migration)
			bridge, ok := bridges.FirstUnattached()
			if !ok {
				return nil
			}
			return bridge.Attach(c)
		},
		OnDisconnect: func(c *channel.Client) {
			if b, ok := c.AttachedBridge().(*Bridge); ok && b != nil {
				b.Detach()
			}
		},
		OnMigrate: func(c *channel.Client, data []byte) error {
			b, ok := c.AttachedBridge().(*Bridge)
			if !ok || b == nil {
				return fmt.Errorf("smartcard: migrate: client has no attached bridge")
			}
			mig, err := unmarshalMigrateEnvelope(data)
			if err != nil {
				return err
			}
			b.Restore(mig)
			c.SetWaitingForMigrateData(false)
			return nil
		},
	}
}
