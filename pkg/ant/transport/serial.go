package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const defaultBaudRate = 115200

// SerialTransport talks to an ANT stick exposed as a CDC serial device
// (e.g. /dev/ttyUSB0 for ANT-USB sticks with the serial bridge).
type SerialTransport struct {
	port serial.Port
	name string
}

// OpenSerial claims the named port. A zero baudRate selects the default.
func OpenSerial(name string, baudRate int) (*SerialTransport, error) {
	if baudRate == 0 {
		baudRate = defaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	// A finite timeout keeps reads returning periodically so the engine can
	// observe its stop signal; a zero-byte read is retried by the assembler.
	if err := port.SetReadTimeout(250 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return &SerialTransport{port: port, name: name}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

func (s *SerialTransport) String() string {
	return s.name
}
