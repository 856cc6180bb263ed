package channeld

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError_FormatsOpAndMessage(t *testing.T) {
	err := NewError("Dispatch", ErrCodeInvalidParams, "bad cookie")

	assert.Equal(t, "Dispatch", err.Op)
	assert.Equal(t, ErrCodeInvalidParams, err.Code)
	assert.Equal(t, "channeld: bad cookie (op=Dispatch)", err.Error())
}

func TestNewError_FallsBackToCodeWhenMessageEmpty(t *testing.T) {
	err := NewError("Attach", ErrCodeAttachConflict, "")
	assert.Equal(t, "channeld: reader already attached (op=Attach)", err.Error())
}

func TestNewChannelError_IncludesChannelScope(t *testing.T) {
	err := NewChannelError("Connect", 3, 7, ErrCodeUnknownChannel, "no such channel")
	assert.Equal(t, uint16(3), err.ChannelType)
	assert.Equal(t, uint32(7), err.ChannelID)
	assert.Equal(t, "channeld: no such channel (op=Connect, channel=3:7)", err.Error())
}

func TestError_IsMatchesOnCodeOnly(t *testing.T) {
	a := &Error{Op: "Foo", ChannelID: 1, Code: ErrCodeProtocol}
	b := &Error{Op: "Bar", ChannelID: 99, Code: ErrCodeProtocol}
	c := &Error{Op: "Foo", Code: ErrCodeOutOfOrder}

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWrapError_PreservesCodeOfWrappedStructuredError(t *testing.T) {
	inner := NewChannelError("Attach", 3, 7, ErrCodeAttachConflict, "already attached")
	wrapped := WrapError("Reconnect", inner)

	require.NotNil(t, wrapped)
	assert.Equal(t, "Reconnect", wrapped.Op)
	assert.Equal(t, ErrCodeAttachConflict, wrapped.Code)
	assert.Equal(t, uint16(3), wrapped.ChannelType)
	assert.True(t, IsCode(wrapped, ErrCodeAttachConflict))
}

func TestWrapError_WrapsPlainErrorAsProtocolViolation(t *testing.T) {
	plain := errors.New("short read")
	wrapped := WrapError("ReadOneMessage", plain)

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrCodeProtocol, wrapped.Code)
	assert.True(t, errors.Is(wrapped, plain))
}

func TestWrapError_NilInputReturnsNil(t *testing.T) {
	assert.Nil(t, WrapError("NoOp", nil))
}

func TestIsCode_FalseForUnstructuredError(t *testing.T) {
	assert.False(t, IsCode(errors.New("boom"), ErrCodeProtocol))
}

func TestIsCode_TrueForMatchingStructuredError(t *testing.T) {
	err := NewError("Step", ErrCodeOutOfOrder, "step before start")
	assert.True(t, IsCode(err, ErrCodeOutOfOrder))
	assert.False(t, IsCode(err, ErrCodeProtocol))
}
