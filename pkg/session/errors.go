package session

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-pesit/pkg/fpdu"
)

var (
	// ErrProtocolDiagnostic is a non-zero PI_02 code from the peer.
	ErrProtocolDiagnostic = errors.New("protocol diagnostic")
	// ErrNotResumable is a resume request whose preconditions are not
	// met. No state changes.
	ErrNotResumable = errors.New("transfer not resumable")
	// ErrCancelled is a transfer stopped at a cancellation checkpoint.
	ErrCancelled = errors.New("transfer cancelled")
	// ErrUnexpectedFPDU is a verb that does not fit the current state.
	ErrUnexpectedFPDU = errors.New("unexpected FPDU")
)

// DiagnosticError carries the raw 3-byte PI_02 code for operator
// diagnosis.
type DiagnosticError struct {
	Verb fpdu.Verb
	Code []byte
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("peer returned diagnostic %s in %s", hex.EncodeToString(e.Code), e.Verb)
}

func (e *DiagnosticError) Unwrap() error { return ErrProtocolDiagnostic }

// UnexpectedFPDUError reports what arrived and what the state machine
// was waiting for.
type UnexpectedFPDUError struct {
	Got  fpdu.Verb
	Want fpdu.Verb
}

func (e *UnexpectedFPDUError) Error() string {
	return fmt.Sprintf("unexpected %s while waiting for %s", e.Got, e.Want)
}

func (e *UnexpectedFPDUError) Unwrap() error { return ErrUnexpectedFPDU }
