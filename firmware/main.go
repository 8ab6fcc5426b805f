//go:generate tinygo flash -target=attiny84

package main

import (
	"device/avr"
	"time"
)

// Detects the power supply voltage with no external parts by measuring the
// internal 1.1 V band-gap reference against Vcc, then blinks the LED once per
// whole volt:
//
//	1 blink  = 1 V <= Vcc < 2 V (only reachable on low voltage parts)
//	...
//	5 blinks = 5 V <= Vcc
//	0 blinks = power supply off
//
// Each reading is also streamed over serial for the host monitor.
func main() {
	// Enable output for LED pin
	avr.DDRA.SetBits(1 << LED_PIN)

	for {
		raw, vccx10 := readVccVoltage()

		// Convert to whole integer volts (rounds down)
		vcc := vccx10 / 10

		// Indicate the Vcc voltage by blinking the LED vcc times
		for i := uint8(0); i < vcc; i++ {
			avr.PORTA.SetBits(1 << LED_PIN)
			time.Sleep(BLINK_ON_MS * time.Millisecond)

			avr.PORTA.ClearBits(1 << LED_PIN)
			time.Sleep(BLINK_OFF_MS * time.Millisecond)
		}

		streamReading(raw, vccx10)

		// Pause before next round
		time.Sleep(PAUSE_MS * time.Millisecond)
	}
}

// readVccVoltage returns the current Vcc voltage as a fixed point number with
// 1 implied decimal place (50 = 5.0 V, 25 = 2.5 V), along with the raw 10-bit
// conversion it came from.
//
// On each reading we enable the ADC, take the measurement, and then disable
// the ADC again for power savings. This takes just over 1 ms because the
// internal reference voltage must stabilize each time the ADC is enabled.
func readVccVoltage() (raw uint16, vccx10 uint8) {
	// Vcc as the conversion reference, band-gap as the input
	avr.ADMUX.Set(ADMUX_VBG)

	// Enable the ADC with a /8 prescaler: 1 MHz / 8 = 125 kHz ADC clock
	avr.ADCSRA.SetBits(avr.ADCSRA_ADEN | avr.ADCSRA_ADPS1 | avr.ADCSRA_ADPS0)

	// Reference settling window; the ADC must stay enabled while it elapses
	time.Sleep(SETTLE_TIME_MS * time.Millisecond)

	// The first conversion after switching voltage source may be inaccurate,
	// discard its result
	convert()
	raw = convert()

	// Compute fixed point decivolts:
	//
	//	Vcc      = (1.1 V * 1024) / raw
	//	Vcc * 10 = (11 * 1024) / raw    all 16-bit integer math
	if raw == 0 {
		// Dead reference circuitry; report as "supply off"
		vccx10 = 0
	} else {
		dv := (11 * 1024) / raw
		if dv > 255 {
			// raw below 45 implies a supply beyond any real part; saturate
			// instead of wrapping
			dv = 255
		}
		vccx10 = uint8(dv)
	}

	// Disable ADC to save power
	avr.ADCSRA.ClearBits(avr.ADCSRA_ADEN)

	return raw, vccx10
}

// convert runs a single conversion and returns the 10-bit result.
func convert() uint16 {
	avr.ADCSRA.SetBits(avr.ADCSRA_ADSC) // Start conversion

	for avr.ADCSRA.HasBits(avr.ADCSRA_ADSC) { // Wait for it to complete
	}

	// ADCL must be read first: reading it locks the result register pair
	// until ADCH is read
	low := avr.ADCL.Get()
	high := avr.ADCH.Get()

	return uint16(high)<<8 | uint16(low)
}

// streamReading writes one "unix_micros,raw,decivolts" line for the host
// monitor. Example: "1234567890123,225,50".
func streamReading(raw uint16, vccx10 uint8) {
	micros := time.Now().UnixNano() / 1000
	print(micros)
	print(",")
	print(raw)
	print(",")
	print(vccx10)
	print("\n")
}
