package hardware

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// Serial talks to a microcontroller bridge over a line protocol:
//
//	"R\n"         -> "<raw>\n"
//	"D <duty>\n"  -> "OK\n"
//
// Any other reply, or a line starting with "ERR", is an error.
type Serial struct {
	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	closed bool
}

// OpenSerial opens the bridge at the given baud rate, 8N1.
func OpenSerial(portPath string, baud int, timeout time.Duration) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portPath, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portPath, err)
	}

	if timeout > 0 {
		if err := port.SetReadTimeout(timeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}

	log.Info().Str("port", portPath).Int("baud", baud).Msg("Serial port opened")

	return newSerial(port), nil
}

func newSerial(rwc io.ReadWriteCloser) *Serial {
	return &Serial{rwc: rwc, reader: bufio.NewReader(rwc)}
}

// ReadRaw requests one sample from the bridge.
func (s *Serial) ReadRaw() (int, error) {
	reply, err := s.roundTrip("R")
	if err != nil {
		return 0, err
	}
	raw, err := strconv.Atoi(reply)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadResponse, reply)
	}
	return raw, nil
}

// SetDuty writes a PWM duty level.
func (s *Serial) SetDuty(duty uint8) error {
	reply, err := s.roundTrip(fmt.Sprintf("D %d", duty))
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w: %q", ErrBadResponse, reply)
	}
	return nil
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rwc.Close()
}

func (s *Serial) roundTrip(req string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	if _, err := io.WriteString(s.rwc, req+"\n"); err != nil {
		return "", fmt.Errorf("serial write: %w", err)
	}

	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("serial read: %w", err)
	}

	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "ERR") {
		return "", fmt.Errorf("device error: %s", strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
	}
	return line, nil
}
