package enlarger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate is the relay controller's baud rate.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the size of the acknowledgement channel buffer.
	DefaultBufferSize = 16
)

var (
	ErrNotConnected     = errors.New("enlarger: not connected")
	ErrAlreadyConnected = errors.New("enlarger: already connected")
)

// openPort is replaced in tests.
var openPort = serial.Open

// Ack is a relay state report from the controller.
type Ack struct {
	Timestamp time.Time
	On        bool
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns the serial ports a relay controller may be attached to.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		desc := d.Name
		if d.IsUSB {
			desc = fmt.Sprintf("%s [%s:%s]", d.Product, d.VID, d.PID)
		}
		result = append(result, Port{Name: d.Name, Description: strings.TrimSpace(desc)})
	}
	return result, nil
}

// Serial drives a relay controller over a serial line. The controller
// takes "1\n" and "0\n" and answers every switch with
// "unix_micros,state".
type Serial struct {
	port     string
	baudRate int

	mu        sync.RWMutex
	conn      serial.Port
	acks      chan Ack
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	on        bool
}

// NewSerial creates a relay on port. Zero baudRate uses DefaultBaudRate.
func NewSerial(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{port: port, baudRate: baudRate}
}

// Connect opens the serial port and starts reading acknowledgements.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return ErrAlreadyConnected
	}

	conn, err := openPort(s.port, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.acks = make(chan Ack, DefaultBufferSize)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.connected = true

	go s.readAcks(ctx, conn, s.acks, s.done)
	return nil
}

// Close closes the port. The acknowledgement channel is closed once the
// reader stops.
func (s *Serial) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	err := s.conn.Close()
	done := s.done
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	<-done
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.port, err)
	}
	return nil
}

// Acks returns the channel of relay state reports.
func (s *Serial) Acks() <-chan Ack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acks
}

// IsConnected returns whether the port is open.
func (s *Serial) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Enabled returns the last commanded relay state.
func (s *Serial) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.on
}

// SetEnabled switches the relay.
func (s *Serial) SetEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}

	cmd := []byte("0\n")
	if on {
		cmd[0] = '1'
	}
	if _, err := s.conn.Write(cmd); err != nil {
		return fmt.Errorf("failed to send relay command: %w", err)
	}
	s.on = on
	return nil
}

func (s *Serial) readAcks(ctx context.Context, r io.Reader, acks chan<- Ack, done chan<- struct{}) {
	defer close(done)
	defer close(acks)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ack, err := parseAck(line)
		if err != nil {
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}

		select {
		case acks <- ack:
		case <-ctx.Done():
			return
		default:
			log.Printf("Relay acknowledgement channel full, dropping")
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}

// parseAck parses "unix_micros,state", state being 0 or 1.
func parseAck(line string) (Ack, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return Ack{}, fmt.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Ack{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	var on bool
	switch parts[1] {
	case "1":
		on = true
	case "0":
	default:
		return Ack{}, fmt.Errorf("invalid relay state %q", parts[1])
	}

	return Ack{Timestamp: time.UnixMicro(micros), On: on}, nil
}
