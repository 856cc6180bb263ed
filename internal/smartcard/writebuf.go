package smartcard

// WriteBuffer stages one outbound message before it is handed to a
// Device. Grounded on red_char_device_write_buffer_get_server's
// allocate-then-fill-then-push shape, adapted to the pooled []byte this
// package uses in place of the original's glib allocator.
type WriteBuffer struct {
	buf        []byte
	payloadLen int
}

// NewWriteBuffer allocates a buffer sized for a header plus payloadLen
// bytes of message body.
func NewWriteBuffer(payloadLen int) *WriteBuffer {
	return &WriteBuffer{
		buf:        getPooledBuffer(HeaderSize + payloadLen),
		payloadLen: payloadLen,
	}
}

// SetPayload copies p into the buffer's body. len(p) must equal the
// payloadLen passed to NewWriteBuffer.
func (wb *WriteBuffer) SetPayload(p []byte) {
	copy(wb.buf[HeaderSize:], p)
}

// ToWire finalizes h (with Length set from the buffer's payload size) into
// the buffer's header region in network byte order and returns the full
// wire-ready slice, implementing the htonl conversion from
// smartcard_channel_write_to_reader. The header's logical (host-order)
// values are passed in; PutHeader performs the big-endian encode.
func (wb *WriteBuffer) ToWire(h Header) []byte {
	h.Length = uint32(wb.payloadLen)
	PutHeader(wb.buf, h)
	return wb.buf[:HeaderSize+wb.payloadLen]
}

// Release returns the buffer to the pool. Must not be called again after
// the buffer has been handed to a Device's Write.
func (wb *WriteBuffer) Release() {
	putPooledBuffer(wb.buf)
}
