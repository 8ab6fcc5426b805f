package device

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/config"
	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/gauge"
)

// Mock simulates a gauge device for testing and development. It runs the same
// conversion sequence the firmware does, against a simulated converter, so
// the readings a mock produces follow the configured supply model (including
// battery discharge).
type Mock struct {
	cfg *config.SimConfig
	adc *gauge.SimADC

	readings  chan Reading
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{} // closed when the producer goroutine exits
}

// NewMock creates a new mocked device instance.
func NewMock(cfg *config.SimConfig) *Mock {
	if cfg == nil {
		def := config.Default().Sim
		cfg = &def
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = config.Default().Sim.SampleRate
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:      cfg,
		adc:      gauge.NewSimADC(*cfg),
		readings: make(chan Reading, DefaultBufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.done = make(chan struct{})

	// Start generating readings
	go m.generateReadings()

	return nil
}

// Close stops the mocked device and waits for the producer goroutine to
// exit. The producer owns the readings channel and closes it on its way out,
// so a send can never race a close.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}

	m.cancel()
	m.connected = false
	done := m.done
	m.mu.Unlock()

	<-done

	return nil
}

// Readings returns the channel for reading measurements.
func (m *Mock) Readings() <-chan Reading {
	return m.readings
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// ADC exposes the underlying simulated converter so tests and the CLI can
// adjust the supply model while running.
func (m *Mock) ADC() *gauge.SimADC {
	return m.adc
}

// generateReadings generates simulated readings at the configured rate.
// It is the sole closer of the readings channel.
func (m *Mock) generateReadings() {
	defer close(m.done)
	defer close(m.readings)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			reading, err := m.measure()
			if err != nil {
				log.Printf("Mock measurement failed: %v", err)
				continue
			}
			select {
			case m.readings <- reading:
			case <-m.ctx.Done():
				return
			default:
				// Channel full, skip
			}
		}
	}
}

// measure runs the firmware's conversion sequence once: select the band-gap
// input, enable, warm-up conversion (discarded), real conversion, disable.
func (m *Mock) measure() (Reading, error) {
	if err := m.adc.ConfigureBandgap(); err != nil {
		return Reading{}, err
	}
	if err := m.adc.Enable(); err != nil {
		return Reading{}, err
	}
	defer func() {
		if err := m.adc.Disable(); err != nil {
			log.Printf("Error disabling ADC: %v", err)
		}
	}()

	// Warm-up conversion, result discarded.
	if err := m.adc.StartConversion(); err != nil {
		return Reading{}, err
	}
	if err := m.adc.AwaitReady(); err != nil {
		return Reading{}, err
	}
	if _, err := m.adc.ReadResult(); err != nil {
		return Reading{}, err
	}

	if err := m.adc.StartConversion(); err != nil {
		return Reading{}, err
	}
	if err := m.adc.AwaitReady(); err != nil {
		return Reading{}, err
	}
	raw, err := m.adc.ReadResult()
	if err != nil {
		return Reading{}, err
	}

	// A zero raw sample is reported as-is with zero decivolts, matching the
	// indicator's zero-blink treatment of a dead reference.
	decivolts, err := gauge.DecivoltsFromRaw(raw)
	if err != nil {
		decivolts = 0
	}

	return Reading{
		Timestamp: time.Now(),
		Raw:       raw,
		Decivolts: decivolts,
	}, nil
}
