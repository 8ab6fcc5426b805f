package gauge

import (
	"errors"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/config"
)

// SimADC simulates the converter for hosted tests and the mock device. It
// computes readings from a configurable supply model and enforces the
// hardware protocol: conversions require an enabled converter with the
// band-gap input selected, and results exist only after a completed
// conversion.
type SimADC struct {
	mu  sync.Mutex
	cfg config.SimConfig

	enabled    bool
	bandgap    bool
	warm       bool // a conversion has completed since the last reference change
	converting bool
	ready      bool
	result     uint16
	fault      bool // simulated dead reference: conversions read 0

	conversions int
	disables    int

	start time.Time
	now   func() time.Time
}

// NewSimADC creates a simulated converter. A zero supply voltage falls back
// to 5.0 V.
func NewSimADC(cfg config.SimConfig) *SimADC {
	if cfg.SupplyVolts == 0 {
		cfg.SupplyVolts = 5.0
	}
	now := time.Now
	return &SimADC{
		cfg:   cfg,
		start: now(),
		now:   now,
	}
}

// ConfigureBandgap selects the band-gap input. Any previous warm-up is lost:
// the next conversion is unreliable again.
func (a *SimADC) ConfigureBandgap() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bandgap = true
	a.warm = false
	return nil
}

// Enable powers the converter up. Enabling an already-enabled converter is a
// no-op, as on hardware.
func (a *SimADC) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.enabled = true
	return nil
}

// Disable powers the converter down, dropping any conversion in flight.
func (a *SimADC) Disable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled {
		a.disables++
	}
	a.enabled = false
	a.converting = false
	a.ready = false
	return nil
}

// StartConversion begins a conversion.
func (a *SimADC) StartConversion() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return errors.New("start conversion while adc disabled")
	}
	if !a.bandgap {
		return errors.New("no input selected")
	}

	a.converting = true
	a.ready = false
	return nil
}

// AwaitReady completes the conversion in flight. Simulation is instantaneous,
// so this never actually blocks.
func (a *SimADC) AwaitReady() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.converting {
		return errors.New("no conversion in flight")
	}

	a.result = a.sample()
	a.converting = false
	a.ready = true
	a.conversions++
	a.warm = true
	return nil
}

// ReadResult returns the result of the last completed conversion.
func (a *SimADC) ReadResult() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready {
		return 0, errors.New("no conversion result available")
	}
	return a.result, nil
}

// sample computes the raw 10-bit reading for the current simulated supply.
// Caller must hold a.mu.
func (a *SimADC) sample() uint16 {
	if a.fault {
		return 0
	}

	vcc := a.supplyNow()

	// The first conversion after a reference change runs against a
	// still-settling reference and comes out wrong.
	if !a.warm {
		vcc += float32(a.cfg.WarmupError)
	}

	if a.cfg.NoiseLevel > 0 {
		vcc += math32.Sin(float32(a.conversions)) * float32(a.cfg.NoiseLevel)
	}

	if vcc <= 0 {
		return MaxRaw
	}

	// raw = (1.1 / Vcc) * 1024, saturating at full scale when Vcc drops
	// below the reference itself.
	raw := float32(BandgapMillivolts) / 1000.0 * 1024.0 / vcc
	if raw > MaxRaw {
		return MaxRaw
	}
	if raw < 0 {
		return 0
	}
	return uint16(raw)
}

// supplyNow returns the simulated supply voltage, applying the exponential
// discharge model when configured. Caller must hold a.mu.
func (a *SimADC) supplyNow() float32 {
	v := float32(a.cfg.SupplyVolts)
	if a.cfg.DischargeTau > 0 {
		t := a.now().Sub(a.start).Seconds()
		v *= math32.Exp(-float32(t / a.cfg.DischargeTau))
	}
	return v
}

// SetSupply changes the simulated supply voltage.
func (a *SimADC) SetSupply(volts float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.SupplyVolts = volts
	a.start = a.now()
}

// SetBandgapFault simulates a dead reference: all conversions read zero.
func (a *SimADC) SetBandgapFault(fault bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fault = fault
}

// Enabled reports whether the simulated converter is currently powered.
func (a *SimADC) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Conversions returns the number of completed conversions.
func (a *SimADC) Conversions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversions
}

// Disables returns the number of enabled-to-disabled transitions.
func (a *SimADC) Disables() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disables
}

// SimPin records indicator output transitions for tests.
type SimPin struct {
	mu          sync.Mutex
	level       bool
	transitions []PinTransition
}

// PinTransition is a recorded output level change.
type PinTransition struct {
	High bool
	At   time.Time
}

// Set drives the simulated output. Only level changes are recorded.
func (p *SimPin) Set(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.level == high {
		return
	}
	p.level = high
	p.transitions = append(p.transitions, PinTransition{High: high, At: time.Now()})
}

// Level returns the current output level.
func (p *SimPin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Pulses returns the number of low-to-high transitions seen so far.
func (p *SimPin) Pulses() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, tr := range p.transitions {
		if tr.High {
			count++
		}
	}
	return count
}

// Transitions returns a copy of all recorded transitions.
func (p *SimPin) Transitions() []PinTransition {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]PinTransition, len(p.transitions))
	copy(result, p.transitions)
	return result
}
