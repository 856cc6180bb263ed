// Package link drives the connection handshake and the SASL negotiation
// that may follow it: the strict call-ordering a client connection must
// observe before any channel traffic is trusted.
//
// Modeled on the handshake's documented call ordering (no single
// file in the filtered original source covers it - the real link
// negotiation lives in reds.c, which was not retrieved) and, for the
// capability-bit shape it rides on top of,
// original_source/server/inputs-channel.h's RedChannelCapabilities use.
package link

// Capability bits a client may advertise in its hello. Named after the
// three spice-common capabilities test-sasl.c's initial_message sets
// (SPICE_COMMON_CAP_PROTOCOL_AUTH_SELECTION / _AUTH_SASL / _MINI_HEADER).
const (
	CapProtocolAuthSelection uint32 = 1 << 0
	CapAuthSASL              uint32 = 1 << 1
	CapMiniHeader            uint32 = 1 << 2
)

// ClientHello is the inbound half of the link handshake: protocol
// version, the channel being requested, and the capability bits the
// client supports.
type ClientHello struct {
	Magic        uint32
	VersionMajor uint32
	VersionMinor uint32
	ChannelType  uint16
	ChannelID    uint32
	CommonCaps   uint32
	ChannelCaps  uint32
}

// HasCap reports whether the client advertised cap among its common
// capabilities.
func (h ClientHello) HasCap(cap uint32) bool {
	return h.CommonCaps&cap != 0
}

// ServerAck is the outbound half: the server's own capability set plus,
// when CapProtocolAuthSelection was negotiated, the auth method selected
// (AuthSpice or AuthSASL below).
type ServerAck struct {
	CommonCaps uint32
	AuthMethod AuthMethod
}

// AuthMethod is the authentication scheme selected for a connection.
type AuthMethod int

const (
	AuthSpice AuthMethod = iota
	AuthSASL
)

// SelectAuthMethod picks SASL when both ends support
// CapProtocolAuthSelection and CapAuthSASL, else falls back to the
// legacy ticket-based AuthSpice scheme.
func SelectAuthMethod(hello ClientHello, serverSupportsSASL bool) AuthMethod {
	if hello.HasCap(CapProtocolAuthSelection) && hello.HasCap(CapAuthSASL) && serverSupportsSASL {
		return AuthSASL
	}
	return AuthSpice
}
