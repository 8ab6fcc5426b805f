// Command vccmon watches a no-parts battery gauge over its serial link and
// logs supply voltage readings and sag events. With -mock it runs against a
// simulated device instead of real hardware.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/config"
	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/device"
	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/logging"
	"github.com/bigjosh/NoPartsBatteryGaugeAVR/pkg/monitor"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use mocked device instead of serial port")
		listFlag   = flag.Bool("list", false, "List available serial ports and exit")
	)
	flag.Parse()

	logger, err := logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if *listFlag {
		ports, err := device.Ports()
		if err != nil {
			logger.Fatal("Failed to list serial ports", zap.Error(err))
		}
		for _, p := range ports {
			logger.Info("Serial port", zap.String("name", p.Name))
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	var dev device.Gauge
	if *mockFlag {
		logger.Info("Using mocked gauge device",
			zap.Float64("supply_volts", cfg.Sim.SupplyVolts),
			zap.Float64("discharge_tau", cfg.Sim.DischargeTau))
		dev = device.NewMock(&cfg.Sim)
	} else {
		logger.Info("Connecting to gauge", zap.String("port", cfg.Serial.Port))
		dev = device.New(cfg.Serial.Port, device.DefaultBaudRate, device.DefaultBufferSize)
	}

	if err := dev.Connect(); err != nil {
		logger.Fatal("Failed to connect", zap.Error(err))
	}

	mon := monitor.New(cfg)
	mon.OnUpdate(func(readings []device.Reading, sags []monitor.Sag) {
		latest := readings[len(readings)-1]
		logger.Info("Vcc reading",
			zap.Uint16("raw", latest.Raw),
			zap.Float64("volts", latest.Volts()),
			zap.Int("blinks", latest.Blinks()))
		if len(sags) > 0 {
			last := sags[len(sags)-1]
			if last.End.Equal(latest.Timestamp) {
				logger.Warn("Supply sag",
					zap.Float64("from_volts", float64(last.From)/10),
					zap.Float64("to_volts", float64(last.To)/10),
					zap.Time("since", last.Start))
			}
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.Process(dev.Readings())
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	if err := dev.Close(); err != nil {
		logger.Error("Failed to close device", zap.Error(err))
	}
	<-done
}
