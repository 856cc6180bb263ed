package link

import "errors"

// Mechanism is the pluggable SASL mechanism a negotiator drives. It
// stands in for libsasl2 the same way a reference test harness's fakes
// (sasl_server_start/sasl_server_step/sasl_encode/sasl_decode) stand in
// for a real library - this package implements only the ordering
// contract those fakes assert on, never a mechanism itself (no real SASL
// mechanisms implemented).
type Mechanism interface {
	Name() string
	// ServerStart begins authentication with the client's chosen
	// mechanism and initial response. complete reports whether no
	// further steps are needed.
	ServerStart(clientIn []byte) (serverOut []byte, complete bool, err error)
	// ServerStep continues a multi-round exchange. May be called zero or
	// more times after ServerStart until complete is true.
	ServerStep(clientIn []byte) (serverOut []byte, complete bool, err error)
	// Encode/Decode wrap a completed session's confidentiality/integrity
	// layer, if the negotiated mechanism has one.
	Encode(plaintext []byte) ([]byte, error)
	Decode(ciphertext []byte) ([]byte, error)
}

type stage int

const (
	stageInit stage = iota
	stageListed
	stageStarted
	stageAuthenticated
)

var (
	// ErrOutOfOrder is returned when a SASL call is made before its
	// required predecessor, mirroring test-sasl.c's
	// g_assert(mechlist_called) / g_assert(start_called) guards - here as
	// a returned error rather than a process-aborting assertion, since a
	// misbehaving client must not be able to crash the server.
	ErrOutOfOrder = errors.New("link: sasl call out of order")
	// ErrNotAuthenticated is returned by Encode/Decode before the
	// negotiation has completed.
	ErrNotAuthenticated = errors.New("link: sasl encode/decode before authentication completed")
)

// Negotiator drives one connection's SASL exchange end to end, enforcing
// the call order test-sasl.c's fakes assert on: ListMechs before Start,
// Start before Step, and no Encode/Decode before authentication succeeds.
type Negotiator struct {
	stage     stage
	mechanism Mechanism
}

// NewNegotiator creates a Negotiator in its initial, pre-listmech state.
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// ListMechs builds the mechanism list string the client chooses from,
// implementing sasl_listmech's prefix/sep/suffix join. May be called only
// once per connection.
func (n *Negotiator) ListMechs(prefix, sep, suffix string, mechs []string) (string, error) {
	if n.stage != stageInit {
		return "", ErrOutOfOrder
	}
	list := prefix
	for i, m := range mechs {
		if i > 0 {
			list += sep
		}
		list += m
	}
	list += suffix
	n.stage = stageListed
	return list, nil
}

// Start begins authentication via mechanism, mirroring sasl_server_start.
// Requires ListMechs to have already run and must not itself be called
// more than once.
func (n *Negotiator) Start(mechanism Mechanism, clientIn []byte) (serverOut []byte, complete bool, err error) {
	if n.stage != stageListed {
		return nil, false, ErrOutOfOrder
	}
	out, complete, err := mechanism.ServerStart(clientIn)
	if err != nil {
		return nil, false, err
	}
	n.mechanism = mechanism
	if complete {
		n.stage = stageAuthenticated
	} else {
		n.stage = stageStarted
	}
	return out, complete, nil
}

// Step continues a multi-round exchange, mirroring sasl_server_step.
// Requires Start to have already run.
func (n *Negotiator) Step(clientIn []byte) (serverOut []byte, complete bool, err error) {
	if n.stage != stageStarted {
		return nil, false, ErrOutOfOrder
	}
	out, complete, err := n.mechanism.ServerStep(clientIn)
	if err != nil {
		return nil, false, err
	}
	if complete {
		n.stage = stageAuthenticated
	}
	return out, complete, nil
}

// Authenticated reports whether the negotiation has completed
// successfully.
func (n *Negotiator) Authenticated() bool {
	return n.stage == stageAuthenticated
}

// Encode wraps plaintext for the wire. Only valid once Authenticated.
func (n *Negotiator) Encode(plaintext []byte) ([]byte, error) {
	if !n.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return n.mechanism.Encode(plaintext)
}

// Decode unwraps ciphertext from the wire. Only valid once Authenticated.
func (n *Negotiator) Decode(ciphertext []byte) ([]byte, error) {
	if !n.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return n.mechanism.Decode(ciphertext)
}
