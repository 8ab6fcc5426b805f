package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the baud rate the firmware streams at.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the readings channel buffer.
	DefaultBufferSize = 100
)

// Reading is one supply voltage measurement reported by the firmware.
type Reading struct {
	Timestamp time.Time
	Raw       uint16 // 10-bit ADC reading of the band-gap reference (0-1023)
	Decivolts uint8  // Supply voltage x10 (50 = 5.0 V)
}

// Volts returns the supply voltage.
func (r Reading) Volts() float64 {
	return float64(r.Decivolts) / 10
}

// Blinks returns the whole-volt blink count the indicator shows for this reading.
func (r Reading) Blinks() int {
	return int(r.Decivolts) / 10
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the gauge MCU.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	readings  chan Reading
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{} // closed when the reader goroutine exits
}

// New creates a new Serial instance with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:      port,
		baudRate:  baudRate,
		bufSize:   bufSize,
		readings:  make(chan Reading, bufSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect connects to the serial port and starts reading measurements.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true
	d.done = make(chan struct{})

	// Start reading in a goroutine
	go d.readReadings(port)

	return nil
}

// Close closes the connection and waits for the reader goroutine to exit.
// The reader owns the readings channel and closes it on its way out, so a
// send can never race a close.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	// Cancel context and close the port to unblock the reader goroutine
	d.cancel()
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false
	done := d.done
	d.mu.Unlock()

	<-done

	return nil
}

// Readings returns the channel for reading measurements.
func (d *Serial) Readings() <-chan Reading {
	return d.readings
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readReadings reads lines from the serial port and parses them into
// Readings. It is the sole closer of the readings channel.
func (d *Serial) readReadings(conn serial.Port) {
	defer close(d.done)
	defer close(d.readings)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readReadings: %v", r)
		}
	}()

	scanner := bufio.NewScanner(conn)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				// Scanner stopped (EOF or error)
				if err := scanner.Err(); err != nil {
					if err != io.EOF {
						log.Printf("Error reading from serial port: %v", err)
					}
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			reading, err := parseLine(line)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", line, err)
				continue
			}

			// Send reading to channel (non-blocking)
			select {
			case d.readings <- reading:
			case <-d.ctx.Done():
				return
			default:
				// Channel full, log and skip
				log.Printf("Readings channel full, dropping reading")
			}
		}
	}
}

// parseLine parses a line from the MCU into a Reading.
// Format: unix_micros,raw,decivolts
// Example: 1234567890123,225,50
func parseLine(line string) (Reading, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Reading{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	// Parse timestamp (unix microseconds)
	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	timestamp := time.Unix(0, timestampMicros*1000) // Convert microseconds to nanoseconds

	// Parse raw sample (10-bit ADC)
	raw, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid raw sample: %w", err)
	}
	if raw > 1023 {
		return Reading{}, fmt.Errorf("raw sample out of range: %d (max 1023)", raw)
	}

	// Parse decivolts
	decivolts, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid decivolts: %w", err)
	}

	return Reading{
		Timestamp: timestamp,
		Raw:       uint16(raw),
		Decivolts: uint8(decivolts),
	}, nil
}
