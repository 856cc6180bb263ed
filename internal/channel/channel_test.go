package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	items []ItemTag
}

func (s *recordingSender) SendItem(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item.Tag())
	return nil
}

func (s *recordingSender) seen() []ItemTag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ItemTag, len(s.items))
	copy(out, s.items)
	return out
}

func TestRegistry_AtMostOneChannelPerKey(t *testing.T) {
	r := NewRegistry()
	ch1 := New(1, 0, Callbacks{}, nil)
	ch2 := New(1, 0, Callbacks{}, nil)

	require.NoError(t, r.Add(ch1))
	assert.Error(t, r.Add(ch2))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup(Key{Type: 1, ID: 0})
	assert.True(t, ok)
	assert.Same(t, ch1, got)
}

func TestChannel_ConnectInvokesCallbackBeforeRegistering(t *testing.T) {
	var connectedMigration bool
	ch := New(2, 0, Callbacks{
		OnConnect: func(c *Client, migration bool, caps map[uint32]struct{}) error {
			connectedMigration = migration
			return nil
		},
	}, nil)

	sender := &recordingSender{}
	c, err := ch.Connect(1, sender, true, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, connectedMigration)
	assert.Equal(t, 1, ch.ClientCount())

	_, ok := ch.Client(1)
	assert.True(t, ok)
}

func TestChannel_ConnectErrorDoesNotRegisterClient(t *testing.T) {
	ch := New(2, 0, Callbacks{
		OnConnect: func(c *Client, migration bool, caps map[uint32]struct{}) error {
			return assert.AnError
		},
	}, nil)

	_, err := ch.Connect(1, &recordingSender{}, false, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, ch.ClientCount())
}

func TestChannel_BroadcastDeliversToEveryClient(t *testing.T) {
	ch := New(3, 0, Callbacks{}, nil)
	s1, s2 := &recordingSender{}, &recordingSender{}
	_, err := ch.Connect(1, s1, false, nil)
	require.NoError(t, err)
	_, err = ch.Connect(2, s2, false, nil)
	require.NoError(t, err)

	ch.Broadcast(NewErrorItem(7, "boom"))

	require.Eventually(t, func() bool {
		return len(s1.seen()) == 1 && len(s2.seen()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, ItemTagError, s1.seen()[0])
}

func TestChannel_DisconnectStopsSendLoopAndCallsCallback(t *testing.T) {
	disconnected := false
	ch := New(4, 0, Callbacks{
		OnDisconnect: func(c *Client) { disconnected = true },
	}, nil)
	_, err := ch.Connect(1, &recordingSender{}, false, nil)
	require.NoError(t, err)

	ch.Disconnect(1)
	assert.True(t, disconnected)
	assert.Equal(t, 0, ch.ClientCount())

	assert.NotPanics(t, func() { ch.Disconnect(1) })
}
