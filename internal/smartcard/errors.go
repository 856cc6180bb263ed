package smartcard

import "errors"

// errAlreadyAttached is returned by Bridge.Attach when a client is
// already attached, enforcing the attach-uniqueness invariant (P7).
var errAlreadyAttached = errors.New("smartcard: bridge already has an attached client")

// errClientAlreadyAttached is returned by Bridge.Attach when the client
// is already attached to a different bridge, the symmetric half of P7.
var errClientAlreadyAttached = errors.New("smartcard: client already attached to a bridge")
