package smartcard

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spice-project/channeld/internal/channel"
)

// P5: the wire bytes for a Data item carry the header fields in network
// byte order.
func TestChannelSender_SendItem_Data_RoundTripsByteOrder(t *testing.T) {
	stream := &bytes.Buffer{}
	s := NewChannelSender(stream, 3)

	item := &DataItem{
		RefCounted: channel.NewRefCounted(),
		Header:     Header{Type: 42, ReaderID: 3, Length: 5},
		Payload:    []byte("hello"),
	}
	require.NoError(t, s.SendItem(item))

	got := ParseHeader(stream.Bytes())
	assert.Equal(t, uint32(42), got.Type)
	assert.Equal(t, uint32(3), got.ReaderID)
	assert.Equal(t, uint32(5), got.Length)
	assert.Equal(t, []byte("hello"), stream.Bytes()[HeaderSize:])
}

func TestChannelSender_SendItem_Error(t *testing.T) {
	stream := &bytes.Buffer{}
	s := NewChannelSender(stream, 7)

	require.NoError(t, s.SendItem(channel.NewErrorItem(1, "nope")))

	got := ParseHeader(stream.Bytes())
	assert.Equal(t, MsgError, got.Type)
	assert.Equal(t, uint32(7), got.ReaderID)
	assert.Equal(t, "nope", string(stream.Bytes()[HeaderSize:]))
}

type foreignItem struct {
	channel.RefCounted
}

func (*foreignItem) Tag() channel.ItemTag { return channel.ItemTagUnknown }

func TestChannelSender_SendItem_UnknownTagPanics(t *testing.T) {
	stream := &bytes.Buffer{}
	s := NewChannelSender(stream, 0)

	assert.Panics(t, func() { s.SendItem(&foreignItem{RefCounted: channel.NewRefCounted()}) })
}

// P6: a migration envelope round-trips through marshal/unmarshal.
func TestMigrateEnvelope_RoundTrip(t *testing.T) {
	data := MigrateData{ReaderAdded: true, ReadSize: 4, Partial: []byte("abcd")}

	wire := marshalMigrateEnvelope(data)
	got, err := unmarshalMigrateEnvelope(wire)
	require.NoError(t, err)

	assert.Equal(t, data.ReaderAdded, got.ReaderAdded)
	assert.Equal(t, data.ReadSize, got.ReadSize)
	assert.Equal(t, data.Partial, got.Partial)
}

func TestUnmarshalMigrateEnvelope_RejectsBadMagic(t *testing.T) {
	_, err := unmarshalMigrateEnvelope([]byte{0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestChannelSender_SendItem_Migrate(t *testing.T) {
	stream := &bytes.Buffer{}
	s := NewChannelSender(stream, 0)

	data := MigrateData{ReaderAdded: true, ReadSize: 2, Partial: []byte("xy")}
	require.NoError(t, s.SendItem(&MigrateItem{RefCounted: channel.NewRefCounted(), Data: data}))

	got, err := unmarshalMigrateEnvelope(stream.Bytes())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
