package param

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownParameter is returned when a wire identifier has no
	// catalog entry.
	ErrUnknownParameter = errors.New("unknown parameter identifier")
	// ErrParameterTooLarge is returned when a value does not fit the
	// catalog's length rule for its parameter.
	ErrParameterTooLarge = errors.New("parameter value too large")
)

// UnknownParameterError reports the identifier that failed catalog lookup.
type UnknownParameterError struct {
	ID byte
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter identifier 0x%02x", e.ID)
}

// Unwrap makes errors.Is(err, ErrUnknownParameter) hold.
func (e *UnknownParameterError) Unwrap() error { return ErrUnknownParameter }

// TooLargeError reports a value that violates a parameter's length rule.
type TooLargeError struct {
	Param  *Parameter
	Reason string
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("parameter %s: %s", e.Param.Name, e.Reason)
}

func (e *TooLargeError) Unwrap() error { return ErrParameterTooLarge }
