package monitor

import (
	"sync"
	"time"

	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/config"
	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/device"
)

// Sag represents a detected supply voltage drop: the reading fell at least
// the configured threshold below the window maximum.
type Sag struct {
	Start time.Time // When the drop was first seen
	End   time.Time // Last reading still below threshold (updated while the sag continues)
	From  uint8     // Window-maximum decivolts when the sag started
	To    uint8     // Lowest decivolts seen during the sag
}

// Tracker consumes gauge readings, keeps a time-windowed history, and
// detects supply sags.
type Tracker interface {
	Process(input <-chan device.Reading)
	Readings() []device.Reading
	Latest() (device.Reading, bool)
	Sags() []Sag
	OnUpdate(func(readings []device.Reading, sags []Sag))
}

var _ Tracker = (*Monitor)(nil)

// Monitor implements Tracker.
//
// The readings buffer is a FIFO ordered oldest first; removal is based on
// timestamp (time window), not count.
type Monitor struct {
	window    time.Duration
	threshold int // decivolts

	readings []device.Reading
	sags     []Sag
	inSag    bool

	mu sync.RWMutex

	callbacks []func(readings []device.Reading, sags []Sag)
	cbMu      sync.RWMutex

	// Set when the input channel closes, prevents further callbacks.
	shutdown bool
}

// New creates a Monitor from configuration.
func New(cfg *config.Config) *Monitor {
	return &Monitor{
		window:    time.Duration(cfg.Monitor.WindowSeconds * float64(time.Second)),
		threshold: cfg.Monitor.SagThreshold,
		readings:  make([]device.Reading, 0),
		sags:      make([]Sag, 0),
	}
}

// Process consumes readings from the input channel until it closes.
func (m *Monitor) Process(input <-chan device.Reading) {
	for r := range input {
		m.processReading(r)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// processReading adds a reading, trims the window, and updates sag state.
func (m *Monitor) processReading(r device.Reading) {
	m.mu.Lock()

	m.readings = append(m.readings, r)

	// Drop readings that fell out of the time window.
	cutoff := r.Timestamp.Add(-m.window)
	trim := 0
	for trim < len(m.readings) && !m.readings[trim].Timestamp.After(cutoff) {
		trim++
	}
	if trim > 0 {
		m.readings = m.readings[trim:]
	}

	m.updateSags(r)

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// updateSags compares the latest reading against the window maximum.
// Caller must hold m.mu.
func (m *Monitor) updateSags(r device.Reading) {
	max := m.windowMax()
	drop := int(max) - int(r.Decivolts)

	if drop >= m.threshold {
		if !m.inSag {
			m.inSag = true
			m.sags = append(m.sags, Sag{
				Start: r.Timestamp,
				End:   r.Timestamp,
				From:  max,
				To:    r.Decivolts,
			})
			return
		}
		last := &m.sags[len(m.sags)-1]
		last.End = r.Timestamp
		if r.Decivolts < last.To {
			last.To = r.Decivolts
		}
		return
	}

	m.inSag = false
}

// windowMax returns the highest decivolt value in the window.
// Caller must hold m.mu.
func (m *Monitor) windowMax() uint8 {
	var max uint8
	for _, r := range m.readings {
		if r.Decivolts > max {
			max = r.Decivolts
		}
	}
	return max
}

// Readings returns a copy of the current readings buffer, oldest first.
func (m *Monitor) Readings() []device.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]device.Reading, len(m.readings))
	copy(result, m.readings)
	return result
}

// Latest returns the most recent reading, if any.
func (m *Monitor) Latest() (device.Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.readings) == 0 {
		return device.Reading{}, false
	}
	return m.readings[len(m.readings)-1], true
}

// Sags returns a copy of the detected sags.
func (m *Monitor) Sags() []Sag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Sag, len(m.sags))
	copy(result, m.sags)
	return result
}

// OnUpdate registers a callback invoked after each processed reading. The
// callback receives copies and should return quickly.
func (m *Monitor) OnUpdate(callback func(readings []device.Reading, sags []Sag)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// notifyCallbacks invokes all registered callbacks with copies of the
// current data, without holding any locks during the calls.
func (m *Monitor) notifyCallbacks() {
	m.mu.RLock()
	readingsCopy := make([]device.Reading, len(m.readings))
	copy(readingsCopy, m.readings)
	sagsCopy := make([]Sag, len(m.sags))
	copy(sagsCopy, m.sags)
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]func(readings []device.Reading, sags []Sag), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(readingsCopy, sagsCopy)
		}
	}
}
