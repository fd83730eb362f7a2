package serialcomm

import "errors"

var (
	ErrUnsupportedOperation = errors.New("serialcomm: operation not supported by transport")
	ErrNotConnected         = errors.New("serialcomm: not connected")
	ErrInvalidState         = errors.New("serialcomm: invalid connection state")
	ErrNilTransport         = errors.New("serialcomm: transport is nil")
	ErrPortNotOpen          = errors.New("serialcomm: port not open")
	ErrInvalidPortName      = errors.New("serialcomm: invalid port name")
	ErrUnknownDriver        = errors.New("serialcomm: unknown driver")
	ErrUnsupportedSetting   = errors.New("serialcomm: setting not supported by driver")
)
