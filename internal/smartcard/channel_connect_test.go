package smartcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spice-project/channeld/internal/channel"
)

func TestChannelCallbacks_OnConnectAttachesFirstUnattachedReader(t *testing.T) {
	readers := NewReaders()
	bridges := NewBridgeSet()
	br1 := NewBridge(NewFakeDevice(), readers, nil, nil)
	br2 := NewBridge(NewFakeDevice(), readers, nil, nil)
	bridges.Add(br1)
	bridges.Add(br2)

	ch := channel.New(ChannelType, 0, ChannelCallbacks(bridges), nil)
	c1, err := ch.Connect(1, noopSender{}, false, nil)
	require.NoError(t, err)

	got, ok := br1.Client()
	require.True(t, ok)
	assert.Same(t, c1, got)

	// Second connection must skip br1 (now attached) and land on br2.
	c2, err := ch.Connect(2, noopSender{}, false, nil)
	require.NoError(t, err)
	got2, ok := br2.Client()
	require.True(t, ok)
	assert.Same(t, c2, got2)
}

func TestChannelCallbacks_OnDisconnectDetachesClaimedBridge(t *testing.T) {
	readers := NewReaders()
	bridges := NewBridgeSet()
	br := NewBridge(NewFakeDevice(), readers, nil, nil)
	bridges.Add(br)

	ch := channel.New(ChannelType, 1, ChannelCallbacks(bridges), nil)
	_, err := ch.Connect(1, noopSender{}, false, nil)
	require.NoError(t, err)
	_, attached := br.Client()
	require.True(t, attached)

	ch.Disconnect(1)
	_, attached = br.Client()
	assert.False(t, attached)
}

func TestChannelCallbacks_OnMigrateRestoresAttachedBridge(t *testing.T) {
	readers := NewReaders()
	bridges := NewBridgeSet()
	br := NewBridge(NewFakeDevice(), readers, nil, nil)
	bridges.Add(br)

	ch := channel.New(ChannelType, 2, ChannelCallbacks(bridges), nil)
	c, err := ch.Connect(1, noopSender{}, true, nil)
	require.NoError(t, err)
	assert.True(t, c.WaitingForMigrateData())

	data := MigrateData{ReaderAdded: true, ReadSize: 3, Partial: []byte("abc")}
	require.NoError(t, ch.Migrate(1, marshalMigrateEnvelope(data)))

	assert.False(t, c.WaitingForMigrateData())
	br.mu.Lock()
	assert.Equal(t, 3, br.bufUsed)
	assert.Equal(t, []byte("abc"), br.buf[:br.bufUsed])
	br.mu.Unlock()
}
