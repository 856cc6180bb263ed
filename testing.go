package channeld

import "sync"

// MockGuestDevice is a test double implementing GuestDevice and
// MonitorsConfigNotifier, tracking every callback invocation for
// verification. Intended for driving a Dispatcher/Registry in tests
// without a real guest graphics instance behind them.
type MockGuestDevice struct {
	mu sync.Mutex

	completedCookies  []uint64
	compressionLevels []int
	monitorsConfigs   []monitorsConfigCall

	asyncCompleteCalls        int
	compressionLevelCalls     int
	clientMonitorsConfigCalls int
}

type monitorsConfigCall struct {
	groupID int
	config  uint64
}

// NewMockGuestDevice creates an empty MockGuestDevice.
func NewMockGuestDevice() *MockGuestDevice {
	return &MockGuestDevice{}
}

// AsyncComplete implements GuestDevice.
func (m *MockGuestDevice) AsyncComplete(cookie uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asyncCompleteCalls++
	m.completedCookies = append(m.completedCookies, cookie)
}

// SetCompressionLevel implements GuestDevice.
func (m *MockGuestDevice) SetCompressionLevel(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compressionLevelCalls++
	m.compressionLevels = append(m.compressionLevels, level)
}

// ClientMonitorsConfig implements MonitorsConfigNotifier.
func (m *MockGuestDevice) ClientMonitorsConfig(groupID int, monitorsConfig uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientMonitorsConfigCalls++
	m.monitorsConfigs = append(m.monitorsConfigs, monitorsConfigCall{groupID: groupID, config: monitorsConfig})
}

// CompletedCookies returns the cookies delivered via AsyncComplete, in
// delivery order.
func (m *MockGuestDevice) CompletedCookies() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.completedCookies))
	copy(out, m.completedCookies)
	return out
}

// CompressionLevels returns every level passed to SetCompressionLevel, in
// call order.
func (m *MockGuestDevice) CompressionLevels() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.compressionLevels))
	copy(out, m.compressionLevels)
	return out
}

// AsyncCompleteCalls reports how many times AsyncComplete has fired.
func (m *MockGuestDevice) AsyncCompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asyncCompleteCalls
}

// Reset clears all tracked calls.
func (m *MockGuestDevice) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedCookies = nil
	m.compressionLevels = nil
	m.monitorsConfigs = nil
	m.asyncCompleteCalls = 0
	m.compressionLevelCalls = 0
	m.clientMonitorsConfigCalls = 0
}

// Compile-time interface checks.
var (
	_ GuestDevice            = (*MockGuestDevice)(nil)
	_ MonitorsConfigNotifier = (*MockGuestDevice)(nil)
)
