package mqtt

import (
	"sync"
	"time"
)

// Monitor releases kiosks that stopped sending input, so an abandoned
// terminal does not hold a session forever.
type Monitor struct {
	bridge  *Bridge
	timeout time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewMonitor creates a kiosk idle monitor. A timeout of zero or less
// disables it.
func NewMonitor(bridge *Bridge, timeout time.Duration) *Monitor {
	return &Monitor{
		bridge:  bridge,
		timeout: timeout,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Enabled reports whether kiosks expire at all.
func (m *Monitor) Enabled() bool {
	return m.timeout > 0
}

// Start begins the background idle check loop. It does nothing when the
// monitor is disabled.
func (m *Monitor) Start(checkInterval time.Duration) {
	if !m.Enabled() {
		return
	}
	m.wg.Add(1)
	go m.loop(checkInterval)
}

// Stop stops the background loop. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) loop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkIdle()
		}
	}
}

// checkIdle releases every kiosk idle for longer than the timeout and
// returns their ids.
func (m *Monitor) checkIdle() []string {
	if !m.Enabled() {
		return nil
	}
	cutoff := m.now().Add(-m.timeout)

	var released []string
	for _, k := range m.bridge.Kiosks().IdleSince(cutoff) {
		m.bridge.Release(k.ID, "idle timeout")
		released = append(released, k.ID)
	}
	return released
}
