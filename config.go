package serialcomm

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Driver selects the serial library behind a Transport built by NewTransport.
type Driver string

const (
	DriverBugst    Driver = "bugst"
	DriverTarm     Driver = "tarm"
	DriverGoburrow Driver = "goburrow"
)

const (
	DefaultReadTimeout    = 100 * time.Millisecond
	DefaultReadBufferSize = 1024
)

// Config holds the line settings for a serial connection. Zero-valued fields
// are "not set" and are filled in from DefaultConfig by Merge.
type Config struct {
	Driver   Driver   `validate:"omitempty,oneof=bugst tarm goburrow"`
	PortName string   `validate:"omitempty,portname"`
	BaudRate BaudRate `validate:"baudrate"`
	DataBits DataBits `validate:"min=5,max=8"`
	StopBits StopBits `validate:"stopbits"`
	Parity   Parity   `validate:"parity"`

	// ReadTimeout bounds each transport read so a pending read notices
	// Disconnect within this interval.
	ReadTimeout    time.Duration
	ReadBufferSize int `validate:"min=1,max=65536"`
}

// DefaultConfig returns 9600 baud, 8 data bits, 1 stop bit, no parity.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverBugst,
		BaudRate:       Baud9600,
		DataBits:       DataBits8,
		StopBits:       StopBits1,
		Parity:         ParityNone,
		ReadTimeout:    DefaultReadTimeout,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// Merge returns c with every non-zero field of overrides applied on top.
func (c Config) Merge(overrides Config) Config {
	if overrides.Driver != "" {
		c.Driver = overrides.Driver
	}
	if overrides.PortName != "" {
		c.PortName = overrides.PortName
	}
	if overrides.BaudRate != 0 {
		c.BaudRate = overrides.BaudRate
	}
	if overrides.DataBits != 0 {
		c.DataBits = overrides.DataBits
	}
	if overrides.StopBits != 0 {
		c.StopBits = overrides.StopBits
	}
	if overrides.Parity != 0 {
		c.Parity = overrides.Parity
	}
	if overrides.ReadTimeout != 0 {
		c.ReadTimeout = overrides.ReadTimeout
	}
	if overrides.ReadBufferSize != 0 {
		c.ReadBufferSize = overrides.ReadBufferSize
	}
	return c
}

// fileConfig is the on-disk JSON shape of a Config.
type fileConfig struct {
	Driver         string  `json:"driver"`
	PortName       string  `json:"port_name"`
	BaudRate       int     `json:"baud_rate"`
	DataBits       int     `json:"data_bits"`
	StopBits       float64 `json:"stop_bits"`
	Parity         string  `json:"parity"`
	ReadTimeout    string  `json:"read_timeout"`
	ReadBufferSize int     `json:"read_buffer_size"`
}

// LoadConfig reads a JSON config file. Fields missing from the file are left
// unset so the result can be passed straight to New as overrides.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a JSON config document.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	cfg := Config{
		Driver:         Driver(fc.Driver),
		PortName:       fc.PortName,
		BaudRate:       BaudRate(fc.BaudRate),
		DataBits:       DataBits(fc.DataBits),
		ReadBufferSize: fc.ReadBufferSize,
	}

	var err error
	if cfg.StopBits, err = ParseStopBits(fc.StopBits); err != nil {
		return Config{}, err
	}
	if cfg.Parity, err = ParseParity(fc.Parity); err != nil {
		return Config{}, err
	}
	if fc.ReadTimeout != "" {
		if cfg.ReadTimeout, err = time.ParseDuration(fc.ReadTimeout); err != nil {
			return Config{}, fmt.Errorf("invalid read timeout %q: %w", fc.ReadTimeout, err)
		}
	}
	return cfg, nil
}
