// Package hardware defines the capability interfaces the rig is driven
// through (digital lines and the tag-reader byte stream) and their
// Raspberry Pi implementations.
package hardware

import (
	"errors"
	"io"
)

var (
	ErrUnknownPin = errors.New("hardware: unknown pin")
)

// OutputLine is a binary output: asserted (true) or de-asserted (false).
type OutputLine interface {
	Set(on bool) error
}

// InputLine is a binary sense line.
type InputLine interface {
	Read() bool
}

// ByteSource is a polled byte stream such as a serial port.
type ByteSource interface {
	io.Reader
	// Available reports how many bytes can be read without blocking.
	Available() (int, error)
}

// Release de-asserts every non-nil line, returning the first error seen.
func Release(lines ...OutputLine) error {
	var first error
	for _, l := range lines {
		if l == nil {
			continue
		}
		if err := l.Set(false); err != nil && first == nil {
			first = err
		}
	}
	return first
}
