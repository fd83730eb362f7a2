package serialcomm

import (
	"fmt"

	gobug "go.bug.st/serial"
)

// StopBits is the number of stop bits. The zero value means "not set" so a
// partial Config can be merged over the defaults.
type StopBits int

const (
	// StopBits1 represents 1 stop bit
	StopBits1 StopBits = iota + 1
	// StopBits1Half represents 1.5 stop bits
	StopBits1Half
	// StopBits2 represents 2 stop bits
	StopBits2
)

func (sb StopBits) IsValid() bool {
	return sb >= StopBits1 && sb <= StopBits2
}

func (sb StopBits) Get() gobug.StopBits {
	switch sb {
	case StopBits1Half:
		return gobug.OnePointFiveStopBits
	case StopBits2:
		return gobug.TwoStopBits
	default:
		return gobug.OneStopBit
	}
}

// Float returns the stop bit count as written in configuration files.
func (sb StopBits) Float() float64 {
	switch sb {
	case StopBits1:
		return 1
	case StopBits1Half:
		return 1.5
	case StopBits2:
		return 2
	}
	return 0
}

func (sb StopBits) String() string {
	if !sb.IsValid() {
		return fmt.Sprintf("StopBits(%d)", int(sb))
	}
	return fmt.Sprintf("%g", sb.Float())
}

// ParseStopBits converts 1, 1.5 or 2 into a StopBits. Zero yields the unset value.
func ParseStopBits(f float64) (StopBits, error) {
	switch f {
	case 0:
		return 0, nil
	case 1:
		return StopBits1, nil
	case 1.5:
		return StopBits1Half, nil
	case 2:
		return StopBits2, nil
	}
	return 0, fmt.Errorf("stop bits must be 1, 1.5, or 2, got: %g", f)
}
