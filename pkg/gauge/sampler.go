package gauge

import (
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	// BandgapMillivolts is the nominal voltage of the internal band-gap
	// reference the supply is measured against.
	BandgapMillivolts = 1100

	// MaxRaw is the highest value a 10-bit conversion can produce.
	MaxRaw = 1023

	// DefaultSettle is the datasheet settling time the reference circuitry
	// needs after switching reference sources. The converter must stay
	// enabled for the whole wait.
	DefaultSettle = time.Millisecond

	// decivoltNumerator = 1.1 V * 1024 steps * 10. Fits 16 bits, so the whole
	// conversion stays in integer math.
	decivoltNumerator = 11 * 1024
)

// ErrNoSignal is returned when a conversion reads zero, which a working
// band-gap reference cannot produce. It indicates a reference circuitry fault.
var ErrNoSignal = errors.New("adc read zero: reference circuitry fault")

// SleepFunc is the delay primitive. Hardware uses time.Sleep; tests
// substitute a no-op or a recorder.
type SleepFunc func(time.Duration)

// Sampler measures the supply voltage with no external components by reading
// the known internal band-gap reference against the supply rail.
//
// Each reading enables the converter, measures, and disables it again for
// power savings. A reading takes a bit over 1 ms because the reference must
// settle every time the converter comes up.
type Sampler struct {
	adc    ADC
	settle time.Duration
	sleep  SleepFunc
}

// NewSampler creates a Sampler over the given converter. A zero settle
// duration falls back to DefaultSettle; a nil sleep falls back to time.Sleep.
func NewSampler(adc ADC, settle time.Duration, sleep SleepFunc) *Sampler {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Sampler{
		adc:    adc,
		settle: settle,
		sleep:  sleep,
	}
}

// ReadVcc returns the current supply voltage as fixed point decivolts, i.e.
// 50 = 5.0 V, 33 = 3.3 V. The converter is always left disabled on return,
// error or not.
func (s *Sampler) ReadVcc() (uint8, error) {
	if err := s.adc.ConfigureBandgap(); err != nil {
		return 0, fmt.Errorf("failed to select band-gap input: %w", err)
	}

	if err := s.adc.Enable(); err != nil {
		return 0, fmt.Errorf("failed to enable adc: %w", err)
	}
	defer func() {
		if err := s.adc.Disable(); err != nil {
			log.Printf("Error disabling ADC: %v", err)
		}
	}()

	// Reference settling window. Conversions started before this may not be
	// reliable, and the converter must remain enabled while waiting.
	s.sleep(s.settle)

	// The first conversion after a reference source change is defined as
	// unreliable. Run it and throw the result away.
	if err := s.convert(); err != nil {
		return 0, err
	}
	if _, err := s.adc.ReadResult(); err != nil {
		return 0, err
	}

	if err := s.convert(); err != nil {
		return 0, err
	}
	raw, err := s.adc.ReadResult()
	if err != nil {
		return 0, err
	}

	return DecivoltsFromRaw(raw)
}

// convert runs one conversion to completion.
func (s *Sampler) convert() error {
	if err := s.adc.StartConversion(); err != nil {
		return fmt.Errorf("failed to start conversion: %w", err)
	}
	if err := s.adc.AwaitReady(); err != nil {
		return fmt.Errorf("conversion did not complete: %w", err)
	}
	return nil
}

// DecivoltsFromRaw converts a 10-bit reading of the 1.1 V band-gap reference,
// taken with the supply rail as the conversion reference, into supply
// decivolts:
//
//	Vcc      = (1.1 V * 1024) / raw
//	Vcc * 10 = (11 * 1024) / raw    all-integer, truncating
//
// Truncation biases the result slightly low. Larger raw readings mean a lower
// supply, so the result is non-increasing in raw. A raw of zero has no
// physical meaning (see ErrNoSignal); raw below 45 would imply a supply
// beyond 25 V, so the result saturates at 25.5 V instead of wrapping.
func DecivoltsFromRaw(raw uint16) (uint8, error) {
	if raw == 0 {
		return 0, ErrNoSignal
	}

	dv := uint16(decivoltNumerator) / raw
	if dv > 255 {
		dv = 255
	}
	return uint8(dv), nil
}

// Blinks returns the whole-volt blink count for a decivolt reading.
// 0 is the documented "supply off" indication.
func Blinks(decivolts uint8) int {
	return int(decivolts) / 10
}
