package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderSender struct {
	mu  sync.Mutex
	got []int
}

func (s *orderSender) SendItem(item Item) error {
	e := item.(*taggedTestItem)
	s.mu.Lock()
	s.got = append(s.got, e.n)
	s.mu.Unlock()
	return nil
}

type taggedTestItem struct {
	RefCounted
	n int
}

func (*taggedTestItem) Tag() ItemTag { return ItemTagUnknown }

func TestClient_PipeDeliversItemsInOrder(t *testing.T) {
	ch := New(5, 0, Callbacks{}, nil)
	sender := &orderSender{}
	c, err := ch.Connect(1, sender, false, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		c.PipeAddPush(&taggedTestItem{RefCounted: NewRefCounted(), n: i})
	}

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.got) == 20
	}, time.Second, time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, v := range sender.got {
		assert.Equal(t, i, v)
	}
}

func TestClient_UnrefAfterSendReleasesLastReference(t *testing.T) {
	ch := New(6, 0, Callbacks{}, nil)
	sender := &orderSender{}
	c, err := ch.Connect(1, sender, false, nil)
	require.NoError(t, err)

	item := &taggedTestItem{RefCounted: NewRefCounted()}
	c.PipeAddPush(item)

	require.Eventually(t, func() bool {
		return item.Refs() == 0
	}, time.Second, time.Millisecond)
}

func TestClient_WaitingForMigrateDataGate(t *testing.T) {
	ch := New(7, 0, Callbacks{}, nil)
	c, err := ch.Connect(1, &orderSender{}, false, nil)
	require.NoError(t, err)

	assert.False(t, c.WaitingForMigrateData())
	c.SetWaitingForMigrateData(true)
	assert.True(t, c.WaitingForMigrateData())
}

func TestClient_AttachBridgeIsExclusive(t *testing.T) {
	ch := New(8, 0, Callbacks{}, nil)
	c, err := ch.Connect(1, &orderSender{}, false, nil)
	require.NoError(t, err)

	bridgeA, bridgeB := "bridge-a", "bridge-b"

	assert.Nil(t, c.AttachedBridge())
	assert.True(t, c.AttachBridge(&bridgeA))
	assert.Same(t, &bridgeA, c.AttachedBridge())

	assert.False(t, c.AttachBridge(&bridgeB), "a client already attached to one bridge must refuse a second")
	assert.Same(t, &bridgeA, c.AttachedBridge())

	c.DetachBridge()
	assert.Nil(t, c.AttachedBridge())
	assert.True(t, c.AttachBridge(&bridgeB), "once detached, the client may attach to a different bridge")
}
