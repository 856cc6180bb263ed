package smartcard

import "sync"

// FakeDevice is an in-memory Device double driven by tests: Feed appends
// bytes as if the reader had produced them (in arbitrary chunks, to
// exercise the bridge's partial-read handling), and Written captures
// everything the bridge has written back to the reader.
//
// Grounded on backend/mem.go's mutex-guarded in-memory stand-in for a
// real backend, simplified to a single mutex since a test device sees
// nowhere near the concurrency a sharded RAM disk does.
type FakeDevice struct {
	mu       sync.Mutex
	inbound  []byte
	outbound []byte
	readerID uint32
}

// NewFakeDevice creates an empty fake device.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{readerID: UndefinedReaderID}
}

// Feed appends chunk to the device's inbound buffer, available to the
// next Read call(s).
func (d *FakeDevice) Feed(chunk []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inbound = append(d.inbound, chunk...)
}

// Read implements Device: returns up to len(p) bytes currently buffered,
// or (0, nil) if none are available, matching the non-blocking contract.
func (d *FakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.inbound) == 0 {
		return 0, nil
	}
	n := copy(p, d.inbound)
	d.inbound = d.inbound[n:]
	return n, nil
}

// Write implements Device: appends to the outbound log for test
// assertions.
func (d *FakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outbound = append(d.outbound, p...)
	return len(p), nil
}

// Written returns a copy of everything written to this device so far.
func (d *FakeDevice) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.outbound))
	copy(out, d.outbound)
	return out
}

func (d *FakeDevice) ReaderID() uint32      { return d.readerID }
func (d *FakeDevice) SetReaderID(id uint32) { d.readerID = id }
