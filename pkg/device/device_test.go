package device

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Reading
		wantErr bool
	}{
		{
			name: "valid line - 5.0V supply",
			line: "1234567890123,225,50",
			want: Reading{
				Timestamp: time.Unix(0, 1234567890123*1000),
				Raw:       225,
				Decivolts: 50,
			},
			wantErr: false,
		},
		{
			name: "valid line - full scale raw",
			line: "1234567890123,1023,11",
			want: Reading{
				Timestamp: time.Unix(0, 1234567890123*1000),
				Raw:       1023,
				Decivolts: 11,
			},
			wantErr: false,
		},
		{
			name: "valid line - zero raw reported as zero decivolts",
			line: "1234567890123,0,0",
			want: Reading{
				Timestamp: time.Unix(0, 1234567890123*1000),
				Raw:       0,
				Decivolts: 0,
			},
			wantErr: false,
		},
		{
			name:    "invalid - wrong number of fields",
			line:    "1234567890123,225",
			wantErr: true,
		},
		{
			name:    "invalid - too many fields",
			line:    "1234567890123,225,50,extra",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric timestamp",
			line:    "abc,225,50",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric raw",
			line:    "1234567890123,abc,50",
			wantErr: true,
		},
		{
			name:    "invalid - raw above 10-bit range",
			line:    "1234567890123,1024,11",
			wantErr: true,
		},
		{
			name:    "invalid - decivolts above 8-bit range",
			line:    "1234567890123,225,256",
			wantErr: true,
		},
		{
			name:    "invalid - negative raw",
			line:    "1234567890123,-1,50",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReading_Volts(t *testing.T) {
	assert.Equal(t, 5.0, Reading{Decivolts: 50}.Volts())
	assert.Equal(t, 3.3, Reading{Decivolts: 33}.Volts())
	assert.Equal(t, 0.0, Reading{}.Volts())
}

func TestReading_Blinks(t *testing.T) {
	tests := []struct {
		decivolts uint8
		want      int
	}{
		{0, 0},
		{9, 0},
		{11, 1},
		{29, 2},
		{30, 3},
		{50, 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Reading{Decivolts: tt.decivolts}.Blinks())
	}
}

func TestNew_Defaults(t *testing.T) {
	d := New("/dev/ttyACM0", 0, 0)
	assert.Equal(t, DefaultBaudRate, d.baudRate)
	assert.Equal(t, DefaultBufferSize, d.bufSize)
	assert.NotNil(t, d.readings)
	assert.False(t, d.IsConnected())
}

func TestSerial_Close_NotConnected(t *testing.T) {
	d := New("/dev/ttyACM0", 0, 0)
	assert.NoError(t, d.Close())
}

// fakePort is an in-memory serial.Port backed by a pipe, standing in for the
// firmware side of the link.
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

var _ serial.Port = (*fakePort)(nil)

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }

// Close makes subsequent reads return EOF, like a port going away.
func (p *fakePort) Close() error { return p.w.CloseWithError(io.EOF) }

func (p *fakePort) SetMode(*serial.Mode) error         { return nil }
func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (p *fakePort) Drain() error                       { return nil }
func (p *fakePort) ResetInputBuffer() error            { return nil }
func (p *fakePort) ResetOutputBuffer() error           { return nil }
func (p *fakePort) SetDTR(bool) error                  { return nil }
func (p *fakePort) SetRTS(bool) error                  { return nil }
func (p *fakePort) Break(time.Duration) error          { return nil }

func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func TestSerial_CloseWhileStreaming(t *testing.T) {
	d := New("fake", 0, 0)
	port := newFakePort()

	d.mu.Lock()
	d.conn = port
	d.connected = true
	d.done = make(chan struct{})
	d.mu.Unlock()
	go d.readReadings(port)

	// Firmware-side writer pushing lines until the port closes under it.
	go func() {
		for {
			if _, err := io.WriteString(port.w, "1234567890123,225,50\n"); err != nil {
				return
			}
		}
	}()

	select {
	case reading := <-d.Readings():
		assert.Equal(t, uint16(225), reading.Raw)
		assert.Equal(t, uint8(50), reading.Decivolts)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading received from fake port")
	}

	require.NoError(t, d.Close())
	assert.False(t, d.IsConnected())

	// The reader goroutine closed the channel before Close returned, so
	// draining terminates.
	for range d.Readings() {
	}
}
