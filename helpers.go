package serialcomm

import (
	"fmt"
	"strings"
)

func checkPortName(portName string) error {
	// Security: Prevent path traversal attacks
	if strings.Contains(portName, "..") {
		return fmt.Errorf("%w: contains path traversal", ErrInvalidPortName)
	}

	// Security: Reject paths that don't look like serial ports
	// On Unix: /dev/ttyXXX or /dev/cuXXX (or a /dev/pts/N pseudo terminal)
	// On Windows: COMX
	if !isValidPortPattern(portName) {
		return fmt.Errorf("%w: doesn't match expected pattern: %s", ErrInvalidPortName, portName)
	}
	return nil
}

func isValidPortPattern(portName string) bool {
	// Windows: COM1-COM999 (must have at least one digit after COM)
	if strings.HasPrefix(portName, "COM") && len(portName) >= 4 && len(portName) <= 6 {
		for _, r := range portName[3:] {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	// Unix/Linux: /dev/tty* or /dev/cu* (macOS)
	if strings.HasPrefix(portName, "/dev/tty") || strings.HasPrefix(portName, "/dev/cu") {
		return true
	}
	return strings.HasPrefix(portName, "/dev/pts/")
}
