package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirosfoundation/go-pesit/pkg/ebcdic"
	"github.com/sirosfoundation/go-pesit/pkg/fpdu"
)

const (
	minFPDULen  = 6  // 2 length bytes + 4 header bytes
	maxVerbByte = 49 // phase and type bytes are small integers
)

// Reader pulls FPDUs out of transport frames. One Reader owns one
// connection's inbound side; it is not safe for concurrent use.
type Reader struct {
	r          io.Reader
	detector   ebcdic.Detector
	pending    []*fpdu.FPDU
	peerEBCDIC bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithDetector overrides the EBCDIC detection policy.
func WithDetector(d ebcdic.Detector) ReaderOption {
	return func(r *Reader) { r.detector = d }
}

// NewReader wraps the inbound side of a transport connection.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	fr := &Reader{r: r, detector: ebcdic.DefaultDetector}
	for _, opt := range opts {
		opt(fr)
	}
	return fr
}

// PeerEBCDIC reports whether the most recent frame was classified as
// EBCDIC, so replies can be converted symmetrically.
func (fr *Reader) PeerEBCDIC() bool { return fr.peerEBCDIC }

// Read returns the next logical FPDU, reading a new transport frame
// when the internal buffer is empty. I/O errors from the underlying
// transport are returned as-is.
func (fr *Reader) Read() (*fpdu.FPDU, error) {
	for len(fr.pending) == 0 {
		if err := fr.readFrame(); err != nil {
			return nil, err
		}
	}
	f := fr.pending[0]
	fr.pending = fr.pending[1:]
	return f, nil
}

func (fr *Reader) readFrame() error {
	var lenBuf [2]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return err
	}
	total := int(binary.BigEndian.Uint16(lenBuf[:]))
	if total < minFPDULen {
		return &fpdu.MalformedError{Reason: fmt.Sprintf("frame length %d is shorter than the minimum FPDU", total)}
	}

	payload := make([]byte, total-2)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return err
	}

	// EBCDIC peers encode the whole FPDU content; the length prefix
	// already consumed stays binary in both modes.
	if fr.detector.IsEBCDIC(payload) {
		fr.peerEBCDIC = true
		payload = ebcdic.ToASCII(payload)
	} else {
		fr.peerEBCDIC = false
	}

	// A single FPDU is the degenerate one-entry concatenation: its own
	// length field is the transport prefix, so the payload opens
	// directly with the (phase, type) pair. The single reading is tried
	// first whenever that pair is plausible, because a large DTF body's
	// first two bytes (phase 4, type 1) also read as a sub-length and
	// would otherwise be misclassified as concatenated.
	if plausibleVerb(payload[0], payload[1]) {
		f, err := fpdu.Decode(payload)
		if err == nil {
			fr.pending = append(fr.pending, f)
			return nil
		}
		if !looksConcatenated(payload) {
			return err
		}
	}

	if looksConcatenated(payload) {
		fr.pending = append(fr.pending, splitConcatenated(payload)...)
		return nil
	}

	f, err := fpdu.Decode(payload)
	if err != nil {
		return err
	}
	fr.pending = append(fr.pending, f)
	return nil
}

// plausibleVerb reports whether the pair can open an FPDU header.
func plausibleVerb(phase, typ byte) bool {
	return phase >= 1 && phase <= maxVerbByte && typ >= 1 && typ <= maxVerbByte
}

// looksConcatenated applies the concatenation heuristic: the first two
// bytes form a plausible sub-length and the next two a plausible
// (phase, type) pair for the first sub-entry.
func looksConcatenated(payload []byte) bool {
	if len(payload) < minFPDULen {
		return false
	}
	subLen := int(binary.BigEndian.Uint16(payload))
	if subLen < minFPDULen || subLen > len(payload) {
		return false
	}
	return plausibleVerb(payload[2], payload[3])
}

// splitConcatenated walks [sub_len:2][sub_body] entries, decoding each
// and merging consecutive DTF-family FPDUs into one carrier with
// concatenated data. A malformed sub-entry truncates iteration;
// already-parsed FPDUs are still delivered.
func splitConcatenated(payload []byte) []*fpdu.FPDU {
	var out []*fpdu.FPDU
	var carrier *fpdu.FPDU
	var merged []byte

	flush := func() {
		if carrier == nil {
			return
		}
		carrier.Data = merged
		out = append(out, carrier)
		carrier = nil
		merged = nil
	}

	i := 0
	for i+2 <= len(payload) {
		subLen := int(binary.BigEndian.Uint16(payload[i:]))
		if subLen < minFPDULen || i+subLen > len(payload) {
			break
		}
		f, err := fpdu.Decode(payload[i+2 : i+subLen])
		if err != nil {
			break
		}
		i += subLen

		if f.Verb.IsData() {
			if carrier == nil {
				carrier = f
				merged = append([]byte(nil), f.Data...)
			} else {
				merged = append(merged, f.Data...)
			}
			continue
		}
		flush()
		out = append(out, f)
	}
	flush()
	return out
}

// Writer frames outbound FPDUs for one connection.
type Writer struct {
	w      io.Writer
	ebcdic bool
}

// NewWriter wraps the outbound side of a transport connection.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// SetEBCDIC switches the writer into EBCDIC mode, converting FPDU
// content (not length fields) on the way out.
func (fw *Writer) SetEBCDIC(on bool) { fw.ebcdic = on }

// Write encodes and sends one FPDU.
func (fw *Writer) Write(f *fpdu.FPDU) error {
	wire, err := fpdu.Encode(f)
	if err != nil {
		return err
	}
	if fw.ebcdic {
		converted := make([]byte, len(wire))
		copy(converted[:2], wire[:2])
		copy(converted[2:], ebcdic.ToEBCDIC(wire[2:]))
		wire = converted
	}
	_, err = fw.w.Write(wire)
	return err
}
