package smartcard

import (
	"fmt"
	"sync"
)

// MaxReaders bounds the process-wide reader table.
const MaxReaders = 10

// Readers is the process-wide {num, sin[MAX_READERS]} table from
// smartcard.cpp's g_smartcard_readers: an append-only list assigning each
// attached device instance a monotonically increasing reader_id the
// moment it is first registered, never reused even after the device goes
// away.
type Readers struct {
	mu  sync.Mutex
	sin []Device
}

// NewReaders creates an empty reader table.
func NewReaders() *Readers {
	return &Readers{sin: make([]Device, 0, MaxReaders)}
}

// Add assigns the next reader_id to dev and records it, implementing
// smartcard_char_device_add_to_readers. Returns an error once the table
// is full; the device is left without a reader_id (UndefinedReaderID) in
// that case.
func (r *Readers) Add(dev Device) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sin) >= MaxReaders {
		return UndefinedReaderID, fmt.Errorf("smartcard: reader table full (max %d)", MaxReaders)
	}
	id := uint32(len(r.sin))
	r.sin = append(r.sin, dev)
	dev.SetReaderID(id)
	return id, nil
}

// Get returns the device registered at readerID, if any.
func (r *Readers) Get(readerID uint32) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if readerID >= uint32(len(r.sin)) {
		return nil, false
	}
	return r.sin[readerID], true
}

// Count reports how many readers have been registered.
func (r *Readers) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sin)
}
