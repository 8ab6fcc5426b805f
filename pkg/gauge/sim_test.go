package gauge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/config"
)

// readRaw runs one full conversion on an already configured, enabled sim.
func readRaw(t *testing.T, sim *SimADC) uint16 {
	t.Helper()
	require.NoError(t, sim.StartConversion())
	require.NoError(t, sim.AwaitReady())
	raw, err := sim.ReadResult()
	require.NoError(t, err)
	return raw
}

func TestSimADC_Protocol(t *testing.T) {
	sim := NewSimADC(config.SimConfig{SupplyVolts: 5.0})

	// Conversion before enable is a protocol violation.
	err := sim.StartConversion()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	// Result before any conversion is a protocol violation.
	_, err = sim.ReadResult()
	assert.Error(t, err)

	// Await without a conversion in flight is a protocol violation.
	err = sim.AwaitReady()
	assert.Error(t, err)

	// Enable without an input selected still cannot convert.
	require.NoError(t, sim.Enable())
	err = sim.StartConversion()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "input")

	// Full sequence works.
	require.NoError(t, sim.ConfigureBandgap())
	readRaw(t, sim) // warm-up
	raw := readRaw(t, sim)
	assert.Equal(t, uint16(225), raw) // 1.1/5.0 * 1024

	// Disable drops conversion state.
	require.NoError(t, sim.StartConversion())
	require.NoError(t, sim.Disable())
	err = sim.AwaitReady()
	assert.Error(t, err)
	_, err = sim.ReadResult()
	assert.Error(t, err)
}

func TestSimADC_WarmupPerturbsFirstConversion(t *testing.T) {
	sim := NewSimADC(config.SimConfig{SupplyVolts: 5.0, WarmupError: 1.0})
	require.NoError(t, sim.ConfigureBandgap())
	require.NoError(t, sim.Enable())

	warmup := readRaw(t, sim)
	settled := readRaw(t, sim)
	assert.NotEqual(t, settled, warmup, "first conversion should be off")
	assert.Equal(t, uint16(225), settled)

	// Reconfiguring the reference makes the next conversion unreliable again.
	require.NoError(t, sim.ConfigureBandgap())
	assert.Equal(t, warmup, readRaw(t, sim))
	assert.Equal(t, settled, readRaw(t, sim))
}

func TestSimADC_Discharge(t *testing.T) {
	sim := NewSimADC(config.SimConfig{SupplyVolts: 5.0, DischargeTau: 10})

	// Fixed clock so the discharge curve is deterministic.
	base := time.Now()
	elapsed := time.Duration(0)
	sim.now = func() time.Time { return base.Add(elapsed) }
	sim.start = base

	require.NoError(t, sim.ConfigureBandgap())
	require.NoError(t, sim.Enable())
	readRaw(t, sim) // warm-up

	fresh := readRaw(t, sim)
	assert.Equal(t, uint16(225), fresh)

	// After one time constant the supply is down to ~1.84 V, so the raw
	// reading of the fixed reference grows.
	elapsed = 10 * time.Second
	drained := readRaw(t, sim)
	assert.Greater(t, drained, fresh)

	dv, err := DecivoltsFromRaw(drained)
	require.NoError(t, err)
	assert.Less(t, dv, uint8(20))
}

func TestSimADC_SupplyBelowReferenceSaturates(t *testing.T) {
	sim := NewSimADC(config.SimConfig{SupplyVolts: 0.9})
	require.NoError(t, sim.ConfigureBandgap())
	require.NoError(t, sim.Enable())
	readRaw(t, sim) // warm-up

	assert.Equal(t, uint16(MaxRaw), readRaw(t, sim))
}

func TestSimADC_BandgapFault(t *testing.T) {
	sim := NewSimADC(config.SimConfig{SupplyVolts: 5.0})
	sim.SetBandgapFault(true)
	require.NoError(t, sim.ConfigureBandgap())
	require.NoError(t, sim.Enable())
	readRaw(t, sim) // warm-up

	assert.Equal(t, uint16(0), readRaw(t, sim))

	sim.SetBandgapFault(false)
	assert.Equal(t, uint16(225), readRaw(t, sim))
}

func TestSimADC_Noise(t *testing.T) {
	sim := NewSimADC(config.SimConfig{SupplyVolts: 5.0, NoiseLevel: 0.05})
	require.NoError(t, sim.ConfigureBandgap())
	require.NoError(t, sim.Enable())
	readRaw(t, sim) // warm-up

	for i := 0; i < 20; i++ {
		raw := readRaw(t, sim)
		// 0.05 V of noise moves the 225-count reading by a couple of counts
		// at most.
		assert.InDelta(t, 225, int(raw), 4)
	}
}

func TestSimADC_SetSupply(t *testing.T) {
	sim := NewSimADC(config.SimConfig{SupplyVolts: 5.0})
	require.NoError(t, sim.ConfigureBandgap())
	require.NoError(t, sim.Enable())
	readRaw(t, sim) // warm-up

	assert.Equal(t, uint16(225), readRaw(t, sim))

	sim.SetSupply(3.3)
	assert.Equal(t, uint16(341), readRaw(t, sim))
}

func TestSimPin(t *testing.T) {
	pin := &SimPin{}
	assert.False(t, pin.Level())
	assert.Equal(t, 0, pin.Pulses())

	pin.Set(true)
	pin.Set(true) // no transition
	pin.Set(false)
	pin.Set(true)
	pin.Set(false)

	assert.False(t, pin.Level())
	assert.Equal(t, 2, pin.Pulses())
	assert.Len(t, pin.Transitions(), 4)
}
