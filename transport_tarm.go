package serialcomm

import (
	"errors"
	"fmt"
	"io"

	tarm "github.com/tarm/serial"
)

// allow tests to override external dependencies
var openTarmPort = func(c *tarm.Config) (io.ReadWriteCloser, error) {
	p, err := tarm.OpenPort(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewTarmTransport returns a Transport backed by github.com/tarm/serial.
func NewTarmTransport(name string) Transport {
	return &portTransport{
		name:       name,
		driver:     DriverTarm,
		open:       openTarm,
		readFilter: tarmReadFilter,
	}
}

func tarmConfig(name string, cfg Config) (*tarm.Config, error) {
	c := &tarm.Config{
		Name:        name,
		Baud:        cfg.BaudRate.Int(),
		ReadTimeout: cfg.ReadTimeout,
		Size:        byte(cfg.DataBits),
	}

	switch cfg.Parity {
	case ParityNone:
		c.Parity = tarm.ParityNone
	case ParityOdd:
		c.Parity = tarm.ParityOdd
	case ParityEven:
		c.Parity = tarm.ParityEven
	case ParityMark:
		c.Parity = tarm.ParityMark
	case ParitySpace:
		c.Parity = tarm.ParitySpace
	default:
		return nil, fmt.Errorf("%w: parity %s", ErrUnsupportedSetting, cfg.Parity)
	}

	switch cfg.StopBits {
	case StopBits1:
		c.StopBits = tarm.Stop1
	case StopBits1Half:
		c.StopBits = tarm.Stop1Half
	case StopBits2:
		c.StopBits = tarm.Stop2
	default:
		return nil, fmt.Errorf("%w: stop bits %s", ErrUnsupportedSetting, cfg.StopBits)
	}
	return c, nil
}

func openTarm(name string, cfg Config) (io.ReadWriteCloser, error) {
	c, err := tarmConfig(name, cfg)
	if err != nil {
		return nil, err
	}
	return openTarmPort(c)
}

// tarm reports an expired read timeout as io.EOF with no data.
func tarmReadFilter(n int, err error) (int, error) {
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}
