package smartcard

import "sync"

// BridgeSet is the server-wide pool of smartcard Bridges a newly
// connected channel client may be handed to, in registration order -
// the "attach to the first unattached reader if any" rule from
// smartcard_channel_client_new / smartcard_char_device_attach_client.
type BridgeSet struct {
	mu      sync.Mutex
	bridges []*Bridge
}

// NewBridgeSet creates an empty BridgeSet.
func NewBridgeSet() *BridgeSet {
	return &BridgeSet{}
}

// Add registers b, making it a candidate for future FirstUnattached calls.
func (s *BridgeSet) Add(b *Bridge) {
	s.mu.Lock()
	s.bridges = append(s.bridges, b)
	s.mu.Unlock()
}

// FirstUnattached returns the first registered Bridge with no currently
// attached client, in registration order.
func (s *BridgeSet) FirstUnattached() (*Bridge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bridges {
		if _, attached := b.Client(); !attached {
			return b, true
		}
	}
	return nil, false
}
