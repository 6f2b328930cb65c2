package hardware

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialSource adapts a serial port to ByteSource. Available performs one
// bounded read (at most the configured timeout) and buffers what arrived,
// so polling it never blocks longer than the read timeout.
type SerialSource struct {
	port  serial.Port
	buf   []byte
	chunk []byte
}

type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

func OpenSerial(cfg SerialConfig) (*SerialSource, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 9600
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Millisecond
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial read timeout: %w", err)
	}
	// Drop anything the reader sent before we were listening.
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial flush: %w", err)
	}

	return &SerialSource{port: port, chunk: make([]byte, 64)}, nil
}

func (s *SerialSource) Available() (int, error) {
	if err := s.fill(); err != nil {
		return len(s.buf), err
	}
	return len(s.buf), nil
}

func (s *SerialSource) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		if err := s.fill(); err != nil {
			return 0, err
		}
		if len(s.buf) == 0 {
			return 0, io.EOF
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}

func (s *SerialSource) fill() error {
	n, err := s.port.Read(s.chunk)
	if err != nil {
		return fmt.Errorf("serial read: %w", err)
	}
	s.buf = append(s.buf, s.chunk[:n]...)
	return nil
}
