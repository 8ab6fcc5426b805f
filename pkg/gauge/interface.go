package gauge

// ADC is the capability set the gauge needs from the on-chip converter:
// select the band-gap input, power the converter up and down, run a
// conversion and collect its 10-bit result. On hardware these map to
// memory-mapped control/status/data registers; hosted code uses SimADC.
type ADC interface {
	// ConfigureBandgap selects the supply rail as the conversion reference
	// and the internal 1.1 V band-gap source as the input.
	ConfigureBandgap() error
	Enable() error
	Disable() error
	StartConversion() error
	// AwaitReady blocks until the conversion in flight completes. On real
	// hardware this is a busy-wait on the start-conversion bit.
	AwaitReady() error
	// ReadResult returns the 10-bit result of the last completed conversion.
	ReadResult() (uint16, error)
}

// Pin is a single digital output driving the indicator.
type Pin interface {
	Set(high bool)
}

// VccReader produces supply voltage readings in decivolts.
type VccReader interface {
	ReadVcc() (uint8, error)
}

// Ensure SimADC implements ADC.
var _ ADC = (*SimADC)(nil)

// Ensure SimPin implements Pin.
var _ Pin = (*SimPin)(nil)

// Ensure Sampler implements VccReader.
var _ VccReader = (*Sampler)(nil)
