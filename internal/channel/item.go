package channel

import "sync/atomic"

// ItemTag identifies a pipe item's concrete kind so a channel's SendItem
// can type-switch on it without reflection. Each channel subtype (display,
// cursor, smartcard, ...) defines its own tag range.
type ItemTag int

const (
	ItemTagUnknown ItemTag = iota
	ItemTagError
)

// Item is the tagged-union pipe item: any payload queued
// on a Client's Pipe for eventual serialization onto the wire by the
// owning channel's SendItem. Reference-counted because the same item may
// be referenced by more than one client's pipe (e.g. a broadcast), freed
// only once every holder has released it.
type Item interface {
	Tag() ItemTag
	// Ref/Unref manage the item's lifetime across however many client
	// pipes currently hold it. Unref returning true means the caller was
	// the last holder and may release any backing resources.
	Ref()
	Unref() bool
}

// RefCounted gives concrete Item implementations (in this package or any
// package that defines its own pipe items, e.g. internal/smartcard) a
// ready-made refcount; embed it and implement Tag().
type RefCounted struct {
	refs atomic.Int32
}

// NewRefCounted returns a RefCounted with a single reference, ready to be
// embedded into a freshly constructed Item.
func NewRefCounted() RefCounted {
	rc := RefCounted{}
	rc.refs.Store(1)
	return rc
}

func (b *RefCounted) Ref() { b.refs.Add(1) }

func (b *RefCounted) Unref() bool {
	return b.refs.Add(-1) == 0
}

// Refs reports the current reference count. Diagnostics/tests only.
func (b *RefCounted) Refs() int32 { return b.refs.Load() }

// ErrorItem carries a protocol error to be sent to the client immediately
// before the channel disconnects it, mirroring SPICE_MSG_DISPLAY_... error
// replies sent ahead of a forced disconnect.
type ErrorItem struct {
	RefCounted
	Code    uint32
	Message string
}

// NewErrorItem returns a ready-to-queue ErrorItem with a single reference.
func NewErrorItem(code uint32, message string) *ErrorItem {
	return &ErrorItem{RefCounted: NewRefCounted(), Code: code, Message: message}
}

func (*ErrorItem) Tag() ItemTag { return ItemTagError }
