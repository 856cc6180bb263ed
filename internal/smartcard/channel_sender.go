package smartcard

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spice-project/channeld/internal/channel"
)

// MigrateMagic and MigrateVersion prefix every migration handoff blob
// this channel emits, ahead of the smartcard-specific payload -
// smartcard_channel_send_migrate_data's generic envelope, implemented
// here since no other package in this fabric owns it.
const (
	MigrateMagic   uint32 = 0x53435343 // "SCSC"
	MigrateVersion uint32 = 1
)

// Stream is the per-client wire connection a ChannelSender writes
// marshaled items to - the transport this package consumes through an
// interface rather than owning a socket itself, the same split
// Device keeps between the framing logic and the character device it
// reads from.
type Stream interface {
	Write(p []byte) (int, error)
}

// ChannelSender implements channel.ItemSender for the smartcard channel:
// send_item's tag switch over {Error, Data, MigrateData}, marshaling each
// to wire bytes and writing them to Stream. An unrecognized item tag is a
// programmer error: it means an Item meant for another channel was queued
// on this channel's client.
type ChannelSender struct {
	Stream   Stream
	ReaderID uint32
}

// NewChannelSender builds a ChannelSender writing to stream on behalf of
// readerID (patched into any Error item this sender emits, the same way
// Bridge patches it into every DataItem's header).
func NewChannelSender(stream Stream, readerID uint32) *ChannelSender {
	return &ChannelSender{Stream: stream, ReaderID: readerID}
}

// SendItem implements channel.ItemSender.
func (s *ChannelSender) SendItem(item channel.Item) error {
	switch it := item.(type) {
	case *channel.ErrorItem:
		return s.sendError(it)
	case *DataItem:
		return s.sendData(it)
	case *MigrateItem:
		return s.sendMigrate(it)
	default:
		panic(fmt.Sprintf("smartcard: send_item: unknown pipe item tag %d", item.Tag()))
	}
}

func (s *ChannelSender) sendData(it *DataItem) error {
	wb := NewWriteBuffer(len(it.Payload))
	wb.SetPayload(it.Payload)
	wire := wb.ToWire(it.Header)
	_, err := s.Stream.Write(wire)
	wb.Release()
	return err
}

func (s *ChannelSender) sendError(it *channel.ErrorItem) error {
	payload := []byte(it.Message)
	wb := NewWriteBuffer(len(payload))
	wb.SetPayload(payload)
	wire := wb.ToWire(Header{Type: MsgError, ReaderID: s.ReaderID})
	_, err := s.Stream.Write(wire)
	wb.Release()
	return err
}

func (s *ChannelSender) sendMigrate(it *MigrateItem) error {
	_, err := s.Stream.Write(marshalMigrateEnvelope(it.Data))
	return err
}

// marshalMigrateEnvelope encodes magic, version, and the smartcard
// migration blob - {reader_added:u8, buf_used:u32, buf:buf_used bytes} -
// implementing the wire half of smartcard_channel_send_migrate_data.
func marshalMigrateEnvelope(data MigrateData) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(4 + 4 + 1 + 4 + len(data.Partial))
	_ = binary.Write(buf, binary.BigEndian, MigrateMagic)
	_ = binary.Write(buf, binary.BigEndian, MigrateVersion)
	readerAdded := byte(0)
	if data.ReaderAdded {
		readerAdded = 1
	}
	buf.WriteByte(readerAdded)
	_ = binary.Write(buf, binary.BigEndian, data.ReadSize)
	buf.Write(data.Partial)
	return buf.Bytes()
}

// unmarshalMigrateEnvelope decodes the wire format marshalMigrateEnvelope
// produces, implementing the receiving half of
// smartcard_channel_handle_migrate_data.
func unmarshalMigrateEnvelope(raw []byte) (MigrateData, error) {
	r := bytes.NewReader(raw)
	var magic, version uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return MigrateData{}, fmt.Errorf("smartcard: migrate data: %w", err)
	}
	if magic != MigrateMagic {
		return MigrateData{}, fmt.Errorf("smartcard: migrate data: bad magic %#x", magic)
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return MigrateData{}, fmt.Errorf("smartcard: migrate data: %w", err)
	}
	if version != MigrateVersion {
		return MigrateData{}, fmt.Errorf("smartcard: migrate data: unsupported version %d", version)
	}
	readerAdded, err := r.ReadByte()
	if err != nil {
		return MigrateData{}, fmt.Errorf("smartcard: migrate data: %w", err)
	}
	var readSize uint32
	if err := binary.Read(r, binary.BigEndian, &readSize); err != nil {
		return MigrateData{}, fmt.Errorf("smartcard: migrate data: %w", err)
	}
	partial := make([]byte, readSize)
	if _, err := io.ReadFull(r, partial); err != nil {
		return MigrateData{}, fmt.Errorf("smartcard: migrate data: %w", err)
	}
	return MigrateData{ReaderAdded: readerAdded != 0, ReadSize: readSize, Partial: partial}, nil
}
