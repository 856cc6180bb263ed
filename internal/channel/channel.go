// Package channel implements the channel / channel-client fabric (Ch/CC):
// per-(type,id) channel registration, per-client connect/disconnect/migrate
// callbacks, and the reference-counted outbound pipe each connected client
// drains on its own send loop.
//
package channel

import (
	"fmt"
	"sync"

	"github.com/spice-project/channeld/internal/interfaces"
)

// ID identifies one connected client across every channel it is attached
// to. Assigned by whatever owns the transport layer; this package only
// ever compares IDs for equality.
type ID uint32

// Key identifies a channel process-wide.
type Key struct {
	Type uint16
	ID   uint32
}

func (k Key) String() string { return fmt.Sprintf("%d:%d", k.Type, k.ID) }

// Callbacks is the capability table of function pointers for a channel
// type: per-channel-type behavior supplied by the owner rather than
// subclassed, small injected interfaces over inheritance.
type Callbacks struct {
	// OnConnect is invoked once a Client has been created for a new
	// connection. Graphics channels use it to enqueue a DISPLAY_CONNECT /
	// CURSOR_CONNECT message onto the owning dispatcher's queue; this is
	// the one place this package touches internal/dispatch, and it does
	// so only through this closure, never a direct import.
	OnConnect func(c *Client, migration bool, caps map[uint32]struct{}) error
	// OnDisconnect runs after the client has been removed from the
	// channel's client set.
	OnDisconnect func(c *Client)
	// OnMigrate is invoked when migration handoff data arrives for a
	// client already attached to this channel.
	OnMigrate func(c *Client, data []byte) error
}

// Channel is one process-wide (Type, ID) endpoint: display channel 0,
// cursor channel 0, smartcard channel 0, etc. At most one Channel exists
//, enforced by Registry: at most one channel per Key.
type Channel struct {
	Type         uint16
	ID           uint32
	Capabilities map[uint32]struct{}
	MigrateMode  bool

	callbacks Callbacks
	logger    interfaces.Logger

	mu      sync.Mutex
	clients map[ID]*Client
}

// New creates a Channel; it is not registered anywhere until passed to a
// Registry's Add.
func New(typ uint16, id uint32, cb Callbacks, logger interfaces.Logger) *Channel {
	return &Channel{
		Type:         typ,
		ID:           id,
		Capabilities: make(map[uint32]struct{}),
		callbacks:    cb,
		logger:       logger,
		clients:      make(map[ID]*Client),
	}
}

func (ch *Channel) Key() Key { return Key{Type: ch.Type, ID: ch.ID} }

// Connect admits a new client connection, invoking Callbacks.OnConnect if
// set. On error the client is not added to the channel's client set.
func (ch *Channel) Connect(id ID, sender ItemSender, migration bool, caps map[uint32]struct{}) (*Client, error) {
	c := newClient(ch, id, sender, DefaultPipeDepth, ch.logger)

	if ch.callbacks.OnConnect != nil {
		if err := ch.callbacks.OnConnect(c, migration, caps); err != nil {
			return nil, fmt.Errorf("channel %s: on_connect: %w", ch.Key(), err)
		}
	}

	ch.mu.Lock()
	ch.clients[id] = c
	ch.mu.Unlock()

	if ch.logger != nil {
		ch.logger.Info("channel: client connected", "channel", ch.Key().String(), "client", id, "migration", migration)
	}
	return c, nil
}

// Disconnect removes a client and stops its send loop. Safe to call more
// than once; the second call is a no-op.
func (ch *Channel) Disconnect(id ID) {
	ch.mu.Lock()
	c, ok := ch.clients[id]
	if ok {
		delete(ch.clients, id)
	}
	ch.mu.Unlock()
	if !ok {
		return
	}

	c.stop()
	if ch.callbacks.OnDisconnect != nil {
		ch.callbacks.OnDisconnect(c)
	}
	if ch.logger != nil {
		ch.logger.Info("channel: client disconnected", "channel", ch.Key().String(), "client", id)
	}
}

// Migrate delivers migration handoff data to an already-connected client.
func (ch *Channel) Migrate(id ID, data []byte) error {
	ch.mu.Lock()
	_, ok := ch.clients[id]
	ch.mu.Unlock()
	if !ok {
		return fmt.Errorf("channel %s: migrate: no such client %d", ch.Key(), id)
	}
	if ch.callbacks.OnMigrate == nil {
		return nil
	}
	return ch.callbacks.OnMigrate(ch.clients[id], data)
}

// Broadcast pushes item onto every currently connected client's pipe.
func (ch *Channel) Broadcast(item Item) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, c := range ch.clients {
		c.PipeAddPush(item)
	}
}

// ClientCount reports how many clients are currently connected.
func (ch *Channel) ClientCount() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.clients)
}

// Client looks up a connected client by ID.
func (ch *Channel) Client(id ID) (*Client, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	c, ok := ch.clients[id]
	return c, ok
}

// Registry is the process-wide (Type, ID) -> *Channel table. Not to be
// confused with the root package's Registry, the global fan-out
// controller - this one is purely a lookup table, kept in its own package
// to avoid a name that would otherwise collide across import boundaries.
type Registry struct {
	mu       sync.Mutex
	channels map[Key]*Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[Key]*Channel)}
}

// Add registers ch under its Key. Returns an error if a channel is
// already registered for that Key (at most one channel per
// (type,id)).
func (r *Registry) Add(ch *Channel) error {
	key := ch.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[key]; exists {
		return fmt.Errorf("channel registry: %s already registered", key)
	}
	r.channels[key] = ch
	return nil
}

// Remove unregisters the channel at key, if any.
func (r *Registry) Remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, key)
}

// Lookup returns the channel registered at key, if any.
func (r *Registry) Lookup(key Key) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[key]
	return ch, ok
}

// Len reports how many channels are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
