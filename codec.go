package serialcomm

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeBufferSize matches the internal buffer of transform.Reader so a
// single Read drains everything decoded so far and never splits a rune.
const decodeBufferSize = 4096

// encodeText returns s as UTF-8. Each call is a complete message: invalid
// or truncated sequences, including one at the end of s, become U+FFFD.
func encodeText(s string) ([]byte, error) {
	return unicode.UTF8.NewEncoder().Bytes([]byte(s))
}

// newTextDecoder returns a reader yielding UTF-8 text decoded from r. A
// multi-byte sequence split across reads of r is held back until complete.
func newTextDecoder(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.UTF8.NewDecoder())
}
