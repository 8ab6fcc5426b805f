package device

// Gauge defines the interface for battery gauge devices (real or mocked).
type Gauge interface {
	Connect() error
	Close() error
	Readings() <-chan Reading
	IsConnected() bool
}

// Ensure Serial implements Gauge.
var _ Gauge = (*Serial)(nil)

// Ensure Mock implements Gauge.
var _ Gauge = (*Mock)(nil)
