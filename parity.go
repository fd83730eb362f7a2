package serialcomm

import (
	"fmt"
	"strings"

	gobug "go.bug.st/serial"
)

// Parity is the parity mode. The zero value means "not set".
type Parity int

const (
	// ParityNone represents no parity bit
	ParityNone Parity = iota + 1
	// ParityOdd represents odd parity bit
	ParityOdd
	// ParityEven represents even parity bit
	ParityEven
	// ParityMark represents mark parity bit (always 1)
	ParityMark
	// ParitySpace represents space parity bit (always 0)
	ParitySpace
)

var parityNames = map[Parity]string{
	ParityNone:  "none",
	ParityOdd:   "odd",
	ParityEven:  "even",
	ParityMark:  "mark",
	ParitySpace: "space",
}

func (pa Parity) IsValid() bool {
	_, ok := parityNames[pa]
	return ok
}

func (pa Parity) Get() gobug.Parity {
	switch pa {
	case ParityOdd:
		return gobug.OddParity
	case ParityEven:
		return gobug.EvenParity
	case ParityMark:
		return gobug.MarkParity
	case ParitySpace:
		return gobug.SpaceParity
	default:
		return gobug.NoParity
	}
}

func (pa Parity) String() string {
	if name, ok := parityNames[pa]; ok {
		return name
	}
	return fmt.Sprintf("Parity(%d)", int(pa))
}

// ParseParity accepts the long names ("none", "even", ...) and the
// single-letter forms used on command lines (N, O, E, M, S).
// An empty string yields the unset value.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	case "mark", "m":
		return ParityMark, nil
	case "space", "s":
		return ParitySpace, nil
	}
	return 0, fmt.Errorf("invalid parity value: %q", s)
}
