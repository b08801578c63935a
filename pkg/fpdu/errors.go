package fpdu

import (
	"errors"
	"fmt"
)

// ErrMalformedFPDU covers truncated or inconsistent FPDU framing. It is
// fatal to the current frame; the connection is aborted.
var ErrMalformedFPDU = errors.New("malformed FPDU")

// MalformedError identifies the offending field of a decode or encode
// failure.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed FPDU at offset %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedFPDU }
