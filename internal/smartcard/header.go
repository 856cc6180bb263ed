// Package smartcard implements the character-device bridge (CD) for the
// smartcard reader: a length-prefixed binary protocol read off an
// unreliable byte stream that may deliver any number of bytes per call,
// plus the reader table and migration handoff that let a guest VM's
// smartcard state survive a live migration.
//
// Grounded on original_source/server/smartcard.cpp's
// smartcard_read_msg_from_device / smartcard_read_buf_prepare /
// smartcard_char_device_on_message_from_device /
// smartcard_channel_write_to_reader, adapted from a single realloc'd
// []byte plus raw pointer arithmetic to a Go slice with explicit used/pos
// bookkeeping - mirroring the growable-buffer comments in
// transport/pdu.go's roff/woff/done fields, which document the same
// partial-frame bookkeeping for a different wire protocol.
package smartcard

import "encoding/binary"

// HeaderSize is the wire size of a VSCMsgHeader: three big-endian uint32
// fields (type, reader_id, length), matching the C struct with no padding.
const HeaderSize = 12

// Message types recognized at this layer. VSC_Init is suppressed before
// ever reaching a client - the device's own handshake
// message, never forwarded.
const (
	MsgInit         uint32 = 0
	MsgError        uint32 = 1
	MsgReaderAdd    uint32 = 3
	MsgReaderRemove uint32 = 4
)

// UndefinedReaderID marks a device that has not yet been assigned a slot
// in the global Readers table.
const UndefinedReaderID uint32 = 0xFFFFFFFF

// Header is the VSCMsgHeader in host order. All three fields travel in
// network byte order on the wire; ReaderID is patched by this package
// before a message is handed to a client (the device itself knows nothing
// about reader numbering - only this layer does, per
// smartcard_new_vsc_msg_item).
type Header struct {
	Type     uint32
	Length   uint32
	ReaderID uint32
}

// ParseHeader decodes a HeaderSize-byte big-endian header from buf.
// Callers must ensure len(buf) >= HeaderSize.
func ParseHeader(buf []byte) Header {
	return Header{
		Type:     binary.BigEndian.Uint32(buf[0:4]),
		ReaderID: binary.BigEndian.Uint32(buf[4:8]),
		Length:   binary.BigEndian.Uint32(buf[8:12]),
	}
}

// PutHeader encodes h into buf's first HeaderSize bytes in network byte
// order, implementing the htonl-in-place conversion from
// smartcard_channel_write_to_reader.
func PutHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Type)
	binary.BigEndian.PutUint32(buf[4:8], h.ReaderID)
	binary.BigEndian.PutUint32(buf[8:12], h.Length)
}
