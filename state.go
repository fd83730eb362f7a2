package serialcomm

import (
	"fmt"

	"go.uber.org/atomic"
)

// State is the connection state of an Adapter.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// connState holds a State and only moves it along allowed edges.
type connState struct {
	v atomic.Int32
}

func (c *connState) load() State {
	return State(c.v.Load())
}

// transition moves from -> to and reports whether the swap happened.
func (c *connState) transition(from, to State) bool {
	return c.v.CompareAndSwap(int32(from), int32(to))
}
