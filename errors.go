package channeld

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a structured channeld error carrying enough context to log
// and to match against programmatically, mirroring the shape of a
// typical structured error type in this codebase's ambient style: an
// operation name, the scope the operation touched, a high-level code, a
// message, and an optional wrapped cause.
type Error struct {
	Op          string // operation that failed, e.g. "CreatePrimarySurfaceAsync"
	ChannelType uint16 // 0 if not applicable
	ChannelID   uint32
	ReaderID    uint32 // UndefinedReaderID (see internal/smartcard) if not applicable
	Code        ErrCode
	Msg         string
	Inner       error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.ChannelType != 0 || e.ChannelID != 0 {
		parts = append(parts, fmt.Sprintf("channel=%d:%d", e.ChannelType, e.ChannelID))
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("channeld: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("channeld: %s", msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparison purely on error code, ignoring the
// context fields - two Errors with the same Code are considered the
// "same" error for control-flow purposes.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrCode is a high-level error category, stable across Go versions and
// intended for programmatic matching via IsCode.
type ErrCode string

const (
	ErrCodeUnknownChannel   ErrCode = "unknown channel"
	ErrCodeUnknownReader    ErrCode = "unknown reader"
	ErrCodeAttachConflict   ErrCode = "reader already attached"
	ErrCodeProtocol         ErrCode = "protocol violation"
	ErrCodeUnknownCookie    ErrCode = "unknown async cookie"
	ErrCodeNotAuthenticated ErrCode = "not authenticated"
	ErrCodeOutOfOrder       ErrCode = "operation issued out of order"
	ErrCodeInvalidParams    ErrCode = "invalid parameters"
)

// NewError creates a bare structured error.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewChannelError creates an error scoped to a specific channel.
func NewChannelError(op string, channelType uint16, channelID uint32, code ErrCode, msg string) *Error {
	return &Error{Op: op, ChannelType: channelType, ChannelID: channelID, Code: code, Msg: msg}
}

// WrapError wraps inner with channeld context, preserving its code if it
// is already a structured Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ce *Error
	if errors.As(inner, &ce) {
		return &Error{
			Op:          op,
			ChannelType: ce.ChannelType,
			ChannelID:   ce.ChannelID,
			ReaderID:    ce.ReaderID,
			Code:        ce.Code,
			Msg:         ce.Msg,
			Inner:       ce.Inner,
		}
	}
	return &Error{Op: op, Code: ErrCodeProtocol, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a structured Error matching code.
func IsCode(err error, code ErrCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
