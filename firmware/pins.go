package main

const (
	// Indicator LED on PA7 (physical pin 6)
	LED_PIN = 7

	// ADMUX: REFS=00 (Vcc used as Vref), MUX=100001 (single ended, internal
	// 1.1 V band-gap reference as Vin)
	ADMUX_VBG = 0b00100001

	// Timing
	// The successive approximation circuitry needs an ADC clock between 50
	// and 200 kHz for full resolution; with the default 1 MHz system clock a
	// /8 prescaler gives 125 kHz. After switching to the internal reference
	// the ADC requires 1 ms of settling before measurements are stable.
	SETTLE_TIME_MS = 1
	BLINK_ON_MS    = 250
	BLINK_OFF_MS   = 250
	PAUSE_MS       = 1000
)
