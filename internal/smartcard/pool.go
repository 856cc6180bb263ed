package smartcard

import "sync"

// writeBufferSize is the pooled allocation size for outbound write
// buffers. Smartcard control messages (ReaderAdd/ReaderRemove, APDU
// responses) are small and bounded, unlike the multi-hundred-KB I/O the
// ublk queue pool sizes for - a single size class is enough here.
const writeBufferSize = 4096

// writeBufferPool uses the *[]byte sync.Pool pattern: pointer-to-slice
// to avoid the extra
// allocation sync.Pool's interface boxing would otherwise cost on every
// Get.
var writeBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, writeBufferSize)
		return &b
	},
}

// getPooledBuffer returns a buffer with at least size bytes of capacity,
// pulling from the pool when size fits and allocating fresh otherwise
// (large APDU payloads are rare but must not be truncated).
func getPooledBuffer(size int) []byte {
	if size <= writeBufferSize {
		buf := *(writeBufferPool.Get().(*[]byte))
		return buf[:size]
	}
	return make([]byte, size)
}

// putPooledBuffer returns buf to the pool if it was allocated from it.
func putPooledBuffer(buf []byte) {
	if cap(buf) != writeBufferSize {
		return
	}
	buf = buf[:writeBufferSize]
	writeBufferPool.Put(&buf)
}
