package serialcomm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("baudrate", func(fl validator.FieldLevel) bool {
			return BaudRate(fl.Field().Int()).IsValid()
		})
		_ = v.RegisterValidation("stopbits", func(fl validator.FieldLevel) bool {
			return StopBits(fl.Field().Int()).IsValid()
		})
		_ = v.RegisterValidation("parity", func(fl validator.FieldLevel) bool {
			return Parity(fl.Field().Int()).IsValid()
		})
		_ = v.RegisterValidation("portname", func(fl validator.FieldLevel) bool {
			return checkPortName(fl.Field().String()) == nil
		})
		validate = v
	})
	return validate
}

// ValidateConfig validates serial port configuration parameters
func ValidateConfig(cfg Config) error {
	if cfg.ReadTimeout < 0 {
		return fmt.Errorf("read timeout cannot be negative: %v", cfg.ReadTimeout)
	}

	err := configValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	// Report the first offending field, like a hand-written validator would.
	fe := verrs[0]
	switch fe.Field() {
	case "Driver":
		return fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	case "PortName":
		return checkPortName(cfg.PortName)
	case "BaudRate":
		return fmt.Errorf("invalid baud rate %d, must be one of: %v", cfg.BaudRate, ValidBaudRates)
	case "DataBits":
		return fmt.Errorf("data bits must be 5-8, got: %d", cfg.DataBits)
	case "StopBits":
		return fmt.Errorf("stop bits must be 1, 1.5, or 2, got: %s", cfg.StopBits)
	case "Parity":
		return fmt.Errorf("invalid parity value: %s", cfg.Parity)
	case "ReadBufferSize":
		return fmt.Errorf("read buffer size must be 1-%d, got: %d", MaxBufferSize, cfg.ReadBufferSize)
	}
	return fmt.Errorf("invalid %s: %v", fe.Field(), fe.Value())
}
