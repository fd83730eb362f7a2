package serialcomm

import (
	"errors"
	"io"
	"time"

	gobug "go.bug.st/serial"
)

type bugstHandle interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
}

// allow tests to override external dependencies
var openBugstPort = func(name string, mode *gobug.Mode) (bugstHandle, error) { return gobug.Open(name, mode) }

// NewBugstTransport returns a Transport backed by go.bug.st/serial. It is the
// default driver and the only one that reports USB identifiers natively.
func NewBugstTransport(name string) Transport {
	return &portTransport{
		name:   name,
		driver: DriverBugst,
		open:   openBugst,
	}
}

func bugstMode(cfg Config) *gobug.Mode {
	return &gobug.Mode{
		BaudRate: cfg.BaudRate.Int(),
		DataBits: cfg.DataBits.Int(),
		Parity:   cfg.Parity.Get(),
		StopBits: cfg.StopBits.Get(),
	}
}

func openBugst(name string, cfg Config) (io.ReadWriteCloser, error) {
	p, err := openBugstPort(name, bugstMode(cfg))
	if err != nil {
		return nil, err
	}
	if err = p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		if e := p.Close(); e != nil {
			err = errors.Join(err, e)
		}
		return nil, err
	}
	return p, nil
}
