package smartcard

import (
	"sync"

	"github.com/spice-project/channeld/internal/channel"
	"github.com/spice-project/channeld/internal/interfaces"
)

// Pipe item tags this package contributes to the channel fabric's tagged
// union, continuing the numbering channel.ItemTag reserves above its own
// built-in tags.
const (
	ItemTagData channel.ItemTag = iota + 100
	ItemTagMigrate
)

// DataItem carries one complete device message (header plus payload,
// reader_id already patched) to a client's send loop, implementing the
// original's RedMsgItem.
type DataItem struct {
	channel.RefCounted
	Header  Header
	Payload []byte
}

func (*DataItem) Tag() channel.ItemTag { return ItemTagData }

// MigrateItem carries a Bridge's migration snapshot to a client's send
// loop.
type MigrateItem struct {
	channel.RefCounted
	Data MigrateData
}

func (*MigrateItem) Tag() channel.ItemTag { return ItemTagMigrate }

const defaultBufSize = HeaderSize + 256

// Bridge is the character-device bridge (CD) for one smartcard reader: it
// owns the growable read buffer, the attached client, and the reader-add
// state machine from smartcard.cpp's RedCharDeviceSmartcard.
type Bridge struct {
	logger  interfaces.Logger
	obs     interfaces.Observer
	readers *Readers
	dev     Device

	mu           sync.Mutex
	buf          []byte
	bufUsed      int
	readerAdded  bool
	client       *channel.Client
	attachedOnce bool
}

// NewBridge creates a Bridge for dev, registering it with readers on
// first use (reader_id assignment happens lazily the same way
// smartcard_char_device_add_to_readers is called once per device during
// smartcard_device_new, here deferred to the caller's first Attach so
// that construction never fails on table-full).
func NewBridge(dev Device, readers *Readers, logger interfaces.Logger, obs interfaces.Observer) *Bridge {
	return &Bridge{
		logger:  logger,
		obs:     obs,
		readers: readers,
		dev:     dev,
		buf:     make([]byte, defaultBufSize),
	}
}

// growLocked implements smartcard_read_buf_prepare: grow to
// max(2*size, needed), called with mu held.
func (b *Bridge) growLocked(needed uint32) {
	newSize := uint32(len(b.buf)) * 2
	if needed > newSize {
		newSize = needed
	}
	grown := make([]byte, newSize)
	copy(grown, b.buf[:b.bufUsed])
	b.buf = grown
}

// ReadOneMessage drains dev until either a complete message has been
// assembled or the device has nothing more to offer right now,
// implementing smartcard_read_msg_from_device's loop: non-blocking reads
// accumulate into buf, the header is reparsed as soon as HeaderSize bytes
// are available (buffer growth happens right there, before the body is
// known to be complete), and any bytes past the current message are
// shifted down to the front of buf for the next call (P4/P6).
//
// Returns (nil, nil) when no complete message is available yet - this is
// the expected, common case under arbitrary chunking, not an error.
func (b *Bridge) ReadOneMessage() (*DataItem, error) {
	for {
		b.mu.Lock()
		haveHeader := b.bufUsed >= HeaderSize
		var hdr Header
		if haveHeader {
			hdr = ParseHeader(b.buf)
		}
		needMore := !haveHeader || uint32(b.bufUsed-HeaderSize) < hdr.Length
		b.mu.Unlock()

		if needMore {
			n, err := b.dev.Read(b.readTarget())
			if err != nil {
				return nil, err
			}
			if n <= 0 {
				return nil, nil
			}
			b.mu.Lock()
			b.bufUsed += n
			b.mu.Unlock()
			if b.bufUsed < HeaderSize {
				continue
			}
			b.mu.Lock()
			hdr = ParseHeader(b.buf)
			if uint32(len(b.buf)) < hdr.Length+HeaderSize {
				b.growLocked(hdr.Length + HeaderSize)
			}
			b.mu.Unlock()
			continue
		}

		return b.completeMessageLocked(hdr), nil
	}
}

// readTarget returns the slice Read should fill next: whatever capacity
// remains past bufUsed, growing first if there is none.
func (b *Bridge) readTarget() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bufUsed >= len(b.buf) {
		b.growLocked(uint32(len(b.buf)) + 1)
	}
	return b.buf[b.bufUsed:]
}

// completeMessageLocked extracts the now-complete message at the front of
// buf, shifts any trailing bytes down (the start of the next message,
// possibly partial), and returns the client-facing item - or nil if the
// message was suppressed (VSC_Init) or the device has no assigned
// reader_id yet, implementing smartcard_char_device_on_message_from_device.
func (b *Bridge) completeMessageLocked(hdr Header) *DataItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := int(HeaderSize + hdr.Length)
	payload := make([]byte, hdr.Length)
	copy(payload, b.buf[HeaderSize:total])

	remaining := b.bufUsed - total
	if remaining > 0 {
		copy(b.buf, b.buf[total:b.bufUsed])
	}
	b.bufUsed = remaining

	if hdr.Type == MsgInit {
		if b.logger != nil {
			b.logger.Debug("smartcard: suppressing VSC_Init from device")
		}
		return nil
	}

	readerID := b.dev.ReaderID()
	if readerID == UndefinedReaderID {
		if b.logger != nil {
			b.logger.Error("smartcard: message from device with no reader_id assigned", "type", hdr.Type)
		}
		return nil
	}
	hdr.ReaderID = readerID

	if b.obs != nil {
		b.obs.ObserveBridgeRead(total, 1)
	}
	return &DataItem{RefCounted: channel.NewRefCounted(), Header: hdr, Payload: payload}
}

// WriteToReader implements smartcard_channel_write_to_reader: finalizes
// the header in network byte order and pushes it to the device, reporting
// success or failure via Observer rather than asserting, since an
// unreliable byte stream's write side can legitimately fail or partially
// succeed. A write error is logged and returned; a short write is
// reported to the Observer as a failure but is neither retried nor
// returned as an error.
func (b *Bridge) WriteToReader(header Header, payload []byte) error {
	wb := NewWriteBuffer(len(payload))
	wb.SetPayload(payload)
	wire := wb.ToWire(header)

	n, err := b.dev.Write(wire)
	wb.Release()

	success := err == nil && n == len(wire)
	if b.obs != nil {
		b.obs.ObserveBridgeWrite(n, success)
	}
	if err != nil {
		if b.logger != nil {
			b.logger.Error("smartcard: write_to_reader failed", "error", err)
		}
		return err
	}
	return nil
}

// notifyReaderAdd implements smartcard_char_device_notify_reader_add.
func (b *Bridge) notifyReaderAdd() error {
	b.mu.Lock()
	readerID := b.dev.ReaderID()
	b.mu.Unlock()

	if err := b.WriteToReader(Header{Type: MsgReaderAdd, ReaderID: readerID}, nil); err != nil {
		return err
	}
	b.mu.Lock()
	b.readerAdded = true
	b.mu.Unlock()
	return nil
}

// notifyReaderRemove implements smartcard_char_device_notify_reader_remove:
// a no-op, not an error, if reader_add was never successfully sent.
func (b *Bridge) notifyReaderRemove() error {
	b.mu.Lock()
	if !b.readerAdded {
		b.mu.Unlock()
		if b.logger != nil {
			b.logger.Debug("smartcard: reader add was never sent to the device")
		}
		return nil
	}
	readerID := b.dev.ReaderID()
	b.mu.Unlock()

	if err := b.WriteToReader(Header{Type: MsgReaderRemove, ReaderID: readerID}, nil); err != nil {
		return err
	}
	b.mu.Lock()
	b.readerAdded = false
	b.mu.Unlock()
	return nil
}

// Attach implements smartcard_char_device_attach_client's uniqueness
// rule, enforced symmetrically (P7): at most one client may be attached
// to a Bridge at a time, and a Client may not be attached to more than
// one Bridge at a time either. Registers the device in the reader table
// on first attach (the reader_id, once assigned, never changes), then
// sends reader-add on every successful attach.
func (b *Bridge) Attach(c *channel.Client) error {
	b.mu.Lock()
	if b.client != nil {
		b.mu.Unlock()
		return errAlreadyAttached
	}
	b.mu.Unlock()

	if !c.AttachBridge(b) {
		return errClientAlreadyAttached
	}

	b.mu.Lock()
	if b.client != nil {
		b.mu.Unlock()
		c.DetachBridge()
		return errAlreadyAttached
	}
	if !b.attachedOnce {
		b.mu.Unlock()
		if _, err := b.readers.Add(b.dev); err != nil {
			c.DetachBridge()
			return err
		}
		b.mu.Lock()
		b.attachedOnce = true
	}
	b.client = c
	b.mu.Unlock()

	if err := b.notifyReaderAdd(); err != nil {
		// A failed reader-add notification does not
		// undo the attach - the bridge stays attached, the device simply
		// never learns a reader exists yet.
		if b.logger != nil {
			b.logger.Error("smartcard: attach: notify_reader_add failed", "error", err)
		}
	}
	return nil
}

// Detach implements smartcard_char_device_detach_client, releasing both
// halves of the P7 claim.
func (b *Bridge) Detach() {
	b.mu.Lock()
	c := b.client
	b.client = nil
	b.mu.Unlock()

	if c != nil {
		c.DetachBridge()
	}

	if err := b.notifyReaderRemove(); err != nil && b.logger != nil {
		b.logger.Error("smartcard: detach: notify_reader_remove failed", "error", err)
	}
}

// Client returns the currently attached client, if any.
func (b *Bridge) Client() (*channel.Client, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client, b.client != nil
}
