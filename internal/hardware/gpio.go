package hardware

import (
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// InitHost loads the periph.io host drivers. It is safe to call repeatedly.
func InitHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

type GPIOOutput struct {
	name string
	pin  gpio.PinIO
}

// OpenOutput configures the named pin (e.g. "GPIO24") as an output driven low.
func OpenOutput(name string) (*GPIOOutput, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure output %s: %w", name, err)
	}
	return &GPIOOutput{name: name, pin: pin}, nil
}

func (o *GPIOOutput) Set(on bool) error {
	if err := o.pin.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("set %s: %w", o.name, err)
	}
	return nil
}

func (o *GPIOOutput) String() string { return o.name }

type GPIOInput struct {
	name string
	pin  gpio.PinIO
}

// OpenInput configures the named pin as a floating input without edge
// detection; the rig polls its sense lines.
func OpenInput(name string) (*GPIOInput, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure input %s: %w", name, err)
	}
	return &GPIOInput{name: name, pin: pin}, nil
}

func (i *GPIOInput) Read() bool { return bool(i.pin.Read()) }

func (i *GPIOInput) String() string { return i.name }

func lookup(name string) (gpio.PinIO, error) {
	name = strings.TrimSpace(name)
	if err := InitHost(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	return pin, nil
}
