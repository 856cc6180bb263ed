package channel

import (
	"sync"

	"github.com/spice-project/channeld/internal/interfaces"
)

// DefaultPipeDepth bounds how many outbound items may be queued on a
// client's pipe before PipeAddPush blocks its caller.
const DefaultPipeDepth = 64

// SendState tracks a client's outbound flow-control window: enough of
// RedChannelClient's blocked/ready bookkeeping to drive a send loop,
// without the ack-window arithmetic that belongs to a transport layer
// this package does not implement.
type SendState int

const (
	SendStateReady SendState = iota
	SendStateBlocked
)

// ItemSender marshals one Item onto the wire for a specific client. Each
// channel subtype (display, cursor, smartcard, ...) supplies its own
// implementation; this package only ever calls it through the interface.
type ItemSender interface {
	SendItem(item Item) error
}

// Client is one side of a connected client on a Channel (the
// ChannelClient / CC). It owns the outbound pipe and the goroutine that
// drains it.
type Client struct {
	ID      ID
	channel *Channel
	sender  ItemSender
	logger  interfaces.Logger

	pipe chan Item

	mu                    sync.Mutex
	sendState             SendState
	waitingForMigrateData bool
	attachedBridge        any

	stopOnce sync.Once
	done     chan struct{}
}

func newClient(ch *Channel, id ID, sender ItemSender, pipeDepth int, logger interfaces.Logger) *Client {
	if pipeDepth <= 0 {
		pipeDepth = DefaultPipeDepth
	}
	c := &Client{
		ID:      id,
		channel: ch,
		sender:  sender,
		logger:  logger,
		pipe:    make(chan Item, pipeDepth),
		done:    make(chan struct{}),
	}
	go c.sendLoop()
	return c
}

// PipeAddPush references item and enqueues it on this client's pipe,
// mirroring pipe_add_push. Blocks if the pipe is full - a slow client
// back-pressures its own sender, it never drops or reorders items
//.
func (c *Client) PipeAddPush(item Item) {
	item.Ref()
	select {
	case c.pipe <- item:
	case <-c.done:
		item.Unref()
	}
}

// WaitingForMigrateData reports whether this client is paused awaiting
// migration handoff data before resuming its normal send loop.
func (c *Client) WaitingForMigrateData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitingForMigrateData
}

// SetWaitingForMigrateData toggles the migrate-data gate.
func (c *Client) SetWaitingForMigrateData(waiting bool) {
	c.mu.Lock()
	c.waitingForMigrateData = waiting
	c.mu.Unlock()
}

// AttachBridge claims this client for bridge, the client-side half of
// the attach-uniqueness invariant (P7): a client may be attached to at
// most one bridge-like object (e.g. a smartcard Bridge) at a time.
// Reports whether the claim succeeded; it fails if the client is
// already attached to a different bridge.
func (c *Client) AttachBridge(bridge any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attachedBridge != nil {
		return false
	}
	c.attachedBridge = bridge
	return true
}

// DetachBridge releases this client's bridge claim, the symmetric
// counterpart to AttachBridge.
func (c *Client) DetachBridge() {
	c.mu.Lock()
	c.attachedBridge = nil
	c.mu.Unlock()
}

// AttachedBridge returns whatever bridge-like object currently claims
// this client, or nil.
func (c *Client) AttachedBridge() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachedBridge
}

func (c *Client) setSendState(s SendState) {
	c.mu.Lock()
	c.sendState = s
	c.mu.Unlock()
}

// SendState reports the client's current flow-control state.
func (c *Client) SendState() SendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendState
}

// sendLoop dequeues items in order and dispatches them through the
// channel-specific ItemSender, unreffing each item exactly once it has
// been handed to the sender. An unref that frees the item happens inside
// Item.Unref's caller contract, not here - this loop only owns the single
// reference it took in PipeAddPush.
func (c *Client) sendLoop() {
	for {
		select {
		case <-c.done:
			return
		case item := <-c.pipe:
			c.setSendState(SendStateBlocked)
			if err := c.sender.SendItem(item); err != nil && c.logger != nil {
				c.logger.Error("channel: send_item failed", "client", c.ID, "tag", item.Tag(), "error", err)
			}
			item.Unref()
			c.setSendState(SendStateReady)
		}
	}
}

func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
