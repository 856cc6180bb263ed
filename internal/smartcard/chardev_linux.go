//go:build linux

package smartcard

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice wraps an already-open, non-blocking character device node
// (e.g. a pcscd virtual reader's /dev entry) as a Device. The file must
// have been opened with O_NONBLOCK - this type takes ownership of an fd
// the caller has already prepared rather than reaching into open(2)
// flags itself.
type FileDevice struct {
	f        *os.File
	readerID uint32
}

// NewFileDevice wraps f as a Device.
func NewFileDevice(f *os.File) *FileDevice {
	return &FileDevice{f: f, readerID: UndefinedReaderID}
}

// Read implements Device. EAGAIN/EWOULDBLOCK is translated to (0, nil) -
// "nothing available" is not an error at this layer.
func (d *FileDevice) Read(p []byte) (int, error) {
	n, err := d.f.Read(p)
	if err != nil {
		if isWouldBlock(err) {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

// Write implements Device.
func (d *FileDevice) Write(p []byte) (int, error) {
	n, err := d.f.Write(p)
	if err != nil && isWouldBlock(err) {
		return n, nil
	}
	return n, err
}

func (d *FileDevice) ReaderID() uint32        { return d.readerID }
func (d *FileDevice) SetReaderID(id uint32)   { d.readerID = id }

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Close releases the underlying file descriptor.
func (d *FileDevice) Close() error { return d.f.Close() }
