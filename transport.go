package serialcomm

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Transport is the byte-stream endpoint an Adapter drives. Read must return
// (0, nil) when its read timeout expires so callers can check for
// cancellation between reads.
type Transport interface {
	Open(ctx context.Context, cfg Config) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Info() PortInfo
}

// Forgetter is implemented by transports that can drop a stored
// authorization for their device.
type Forgetter interface {
	Forget(ctx context.Context) error
}

// NewTransport builds a Transport for cfg.PortName using cfg.Driver.
func NewTransport(cfg Config) (Transport, error) {
	if err := checkPortName(cfg.PortName); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverBugst, "":
		return NewBugstTransport(cfg.PortName), nil
	case DriverTarm:
		return NewTarmTransport(cfg.PortName), nil
	case DriverGoburrow:
		return NewGoburrowTransport(cfg.PortName), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

// portTransport implements Transport over one serial library. The library
// specific parts are the open function and readFilter, which maps the
// library's read-timeout signal onto (0, nil).
type portTransport struct {
	name       string
	driver     Driver
	open       func(name string, cfg Config) (io.ReadWriteCloser, error)
	readFilter func(n int, err error) (int, error)

	mu     sync.RWMutex
	handle io.ReadWriteCloser
	info   PortInfo
}

func (t *portTransport) Open(ctx context.Context, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle != nil {
		return nil
	}

	h, err := t.open(t.name, cfg)
	if err != nil {
		return fmt.Errorf("opening %s port %s: %w", t.driver, t.name, err)
	}
	t.handle = h
	t.info = lookupPortInfo(t.name)
	return nil
}

func (t *portTransport) Read(p []byte) (int, error) {
	// Hold the read lock so Close cannot invalidate the handle mid-read.
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.handle == nil {
		return 0, ErrPortNotOpen
	}
	n, err := t.handle.Read(p)
	if t.readFilter != nil {
		return t.readFilter(n, err)
	}
	return n, err
}

func (t *portTransport) Write(p []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.handle == nil {
		return 0, ErrPortNotOpen
	}
	return t.handle.Write(p)
}

// Close is safe to call on a transport that is not open.
func (t *portTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.handle
	t.handle = nil
	if h != nil {
		return h.Close()
	}
	return nil
}

// Info works before Open: an unopened port is looked up on demand.
func (t *portTransport) Info() PortInfo {
	t.mu.RLock()
	info := t.info
	t.mu.RUnlock()
	if info.Name != "" {
		return info
	}
	return lookupPortInfo(t.name)
}
