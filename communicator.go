package serialcomm

import "context"

// ReceiveFunc is called with each chunk of decoded text read from the device.
type ReceiveFunc func(chunk string)

// ErrorFunc is called when the read path fails.
type ErrorFunc func(err error)

// Communicator is the capability set generic callers use to talk to a
// text-oriented device. Enumeration lives in the package-level ListDevices.
type Communicator interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Write(ctx context.Context, data string) error
	SetOnReceiveFunc(fn ReceiveFunc)
	SetOnErrorFunc(fn ErrorFunc)
	IsConnected() bool
	DeviceIdentifier() string
	RevokeConnection(ctx context.Context) error
}

var _ Communicator = (*Adapter)(nil)
