package gauge

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/config"
)

// Blinker reports the current supply voltage by blinking the indicator output
// once per whole volt: 3 blinks means 3 V <= Vcc < 4 V. Zero blinks is the
// "supply off" indication.
type Blinker struct {
	reader VccReader
	pin    Pin
	timing config.TimingConfig
	sleep  SleepFunc
}

// NewBlinker creates a Blinker. Zero timing fields fall back to the defaults
// (250 ms on, 250 ms off, 1 s pause); a nil sleep falls back to time.Sleep.
func NewBlinker(reader VccReader, pin Pin, timing config.TimingConfig, sleep SleepFunc) *Blinker {
	def := config.Default().Timing
	if timing.BlinkOn == 0 {
		timing.BlinkOn = def.BlinkOn
	}
	if timing.BlinkOff == 0 {
		timing.BlinkOff = def.BlinkOff
	}
	if timing.Pause == 0 {
		timing.Pause = def.Pause
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Blinker{
		reader: reader,
		pin:    pin,
		timing: timing,
		sleep:  sleep,
	}
}

// Run executes the indicator loop until ctx is cancelled. On hardware the
// context never fires and the loop is infinite; only a reset or power loss
// ends it. The reader is only ever called from this loop, so the converter
// sees strictly sequential access.
func (b *Blinker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		decivolts, err := b.reader.ReadVcc()
		if err != nil {
			// A dead reference blinks zero times, same as an unpowered
			// supply. Keep the cadence and try again next cycle.
			if !errors.Is(err, ErrNoSignal) {
				log.Printf("Vcc read failed: %v", err)
			}
			decivolts = 0
		}

		for i := 0; i < Blinks(decivolts); i++ {
			if ctx.Err() != nil {
				b.pin.Set(false)
				return ctx.Err()
			}
			b.pin.Set(true)
			b.sleep(b.timing.BlinkOn)
			b.pin.Set(false)
			b.sleep(b.timing.BlinkOff)
		}

		b.sleep(b.timing.Pause)
	}
}
