package serialcomm

import (
	"errors"
	"fmt"
	"io"

	goburrow "github.com/goburrow/serial"
)

// allow tests to override external dependencies
var openGoburrowPort = func(c *goburrow.Config) (io.ReadWriteCloser, error) {
	p, err := goburrow.Open(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewGoburrowTransport returns a Transport backed by github.com/goburrow/serial.
// The library has no 1.5 stop bit, mark or space parity support.
func NewGoburrowTransport(name string) Transport {
	return &portTransport{
		name:       name,
		driver:     DriverGoburrow,
		open:       openGoburrow,
		readFilter: goburrowReadFilter,
	}
}

func goburrowConfig(name string, cfg Config) (*goburrow.Config, error) {
	c := &goburrow.Config{
		Address:  name,
		BaudRate: cfg.BaudRate.Int(),
		DataBits: cfg.DataBits.Int(),
		Timeout:  cfg.ReadTimeout,
	}

	switch cfg.Parity {
	case ParityNone:
		c.Parity = "N"
	case ParityOdd:
		c.Parity = "O"
	case ParityEven:
		c.Parity = "E"
	default:
		return nil, fmt.Errorf("%w: goburrow does not support %s parity", ErrUnsupportedSetting, cfg.Parity)
	}

	switch cfg.StopBits {
	case StopBits1:
		c.StopBits = 1
	case StopBits2:
		c.StopBits = 2
	default:
		return nil, fmt.Errorf("%w: goburrow does not support %s stop bits", ErrUnsupportedSetting, cfg.StopBits)
	}
	return c, nil
}

func openGoburrow(name string, cfg Config) (io.ReadWriteCloser, error) {
	c, err := goburrowConfig(name, cfg)
	if err != nil {
		return nil, err
	}
	return openGoburrowPort(c)
}

func goburrowReadFilter(n int, err error) (int, error) {
	if errors.Is(err, goburrow.ErrTimeout) {
		return n, nil
	}
	return n, err
}
