// Serialmux shares one serial port between several addressed endpoints on
// the same device. Each command is a newline-terminated line answered by a
// GRBL-style acknowledgement: "ok" on success or "error:<reason>" on failure.
// Exchanges are serialised so replies are never attributed to the wrong
// endpoint.
package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/autocouple/internal/monitoring"
)

var (
	ErrWriteFailed = fmt.Errorf("failed to write to serial port")

	// ErrTimeout is returned when the device sends nothing within the port's
	// read timeout.
	ErrTimeout = errors.New("timed out waiting for device reply")

	// ErrClosed is returned for commands issued after Close.
	ErrClosed = errors.New("serial mux closed")
)

// maxReplyLines bounds the informational lines accepted before the ack.
const maxReplyLines = 16

// DeviceError carries an "error:" reply from the device.
type DeviceError struct {
	Command string
	Reason  string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected %q: %s", e.Command, e.Reason)
}

// Commander is the view of a SerialMux used by device endpoints.
type Commander interface {
	// SendCommand writes the command and waits for its acknowledgement.
	SendCommand(command string) error
	// Close closes the underlying serial port.
	Close() error
}

// SerialMux is a generic serial port multiplexer that allows multiple
// endpoints to issue commands over a single serial port.
type SerialMux[T SerialPorter] struct {
	port      T
	commandMu sync.Mutex
	pending   []byte
	closing   bool
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port}
}

// SendCommand sends a command to the serial port and waits for "ok".
func (s *SerialMux[T]) SendCommand(command string) error {
	_, err := s.Exchange(command)
	return err
}

// Exchange sends a command and returns any informational lines the device
// printed before acknowledging it.
func (s *SerialMux[T]) Exchange(command string) ([]string, error) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	if s.closing {
		return nil, ErrClosed
	}

	command = strings.TrimRight(command, "\r\n")
	line := command + "\n"
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return nil, fmt.Errorf("write %q: %w", command, err)
	}
	if n != len(line) {
		return nil, ErrWriteFailed
	}

	var info []string
	for len(info) < maxReplyLines {
		reply, err := s.readLine()
		if err != nil {
			return info, fmt.Errorf("reply to %q: %w", command, err)
		}
		switch {
		case reply == "":
			continue
		case strings.EqualFold(reply, "ok"):
			return info, nil
		case strings.HasPrefix(strings.ToLower(reply), "error"):
			reason := strings.TrimSpace(strings.TrimLeft(reply[len("error"):], ":"))
			return info, &DeviceError{Command: command, Reason: reason}
		default:
			monitoring.Logf("serial: %s", reply)
			info = append(info, reply)
		}
	}
	return info, fmt.Errorf("reply to %q: no acknowledgement after %d lines", command, maxReplyLines)
}

// readLine returns the next line from the port without its terminator. A read
// that returns no data and no error is the port's read timeout expiring.
func (s *SerialMux[T]) readLine() (string, error) {
	buf := make([]byte, 256)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := strings.TrimRight(string(s.pending[:i]), "\r")
			s.pending = s.pending[i+1:]
			return strings.TrimSpace(line), nil
		}
		n, err := s.port.Read(buf)
		if n > 0 {
			s.pending = append(s.pending, buf[:n]...)
			continue
		}
		if err != nil {
			return "", err
		}
		return "", ErrTimeout
	}
}

// Close marks the mux closed and closes the serial port. It is safe to call
// more than once; only the first call closes the port.
func (s *SerialMux[T]) Close() error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if s.closing {
		return nil
	}
	s.closing = true
	return s.port.Close()
}
