package fpdu

import (
	"encoding/binary"
	"fmt"

	"github.com/sirosfoundation/go-pesit/pkg/param"
)

const (
	headerLen = 4      // phase, type, id_dst, id_src
	extLen    = 0xff   // length byte announcing an extended 2-byte length
	maxTotal  = 0xffff // FPDU length field is 16 bits
)

// Encode serializes f to wire bytes, including the leading 2-byte
// length. Parameter entries are written in the exact order supplied.
func Encode(f *FPDU) ([]byte, error) {
	pt, ok := verbWire[f.Verb]
	if !ok {
		return nil, &MalformedError{Reason: fmt.Sprintf("verb %d has no wire encoding", f.Verb)}
	}

	var body []byte
	if f.Verb.IsData() {
		body = f.Data
	} else {
		var err error
		body, err = encodeParams(f.Params)
		if err != nil {
			return nil, err
		}
	}

	total := 2 + headerLen + len(body)
	if total > maxTotal {
		return nil, &MalformedError{Reason: fmt.Sprintf("FPDU length %d exceeds 16 bits", total)}
	}

	out := make([]byte, 0, total)
	out = binary.BigEndian.AppendUint16(out, uint16(total))
	out = append(out, pt.phase, pt.typ, f.IDDst, f.IDSrc)
	out = append(out, body...)
	return out, nil
}

func encodeParams(values []param.Value) ([]byte, error) {
	var out []byte
	for _, v := range values {
		if v.Param.Group {
			inner, err := encodeScalars(v.Children)
			if err != nil {
				return nil, err
			}
			entry, err := encodeEntry(v.Param.ID, inner)
			if err != nil {
				return nil, err
			}
			out = append(out, entry...)
			continue
		}
		entry, err := encodeEntry(v.Param.ID, v.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, entry...)
	}
	return out, nil
}

func encodeScalars(values []param.Value) ([]byte, error) {
	var out []byte
	for _, v := range values {
		if v.Param.Group {
			return nil, &MalformedError{Reason: fmt.Sprintf("group %s nested inside a group", v.Param.Name)}
		}
		entry, err := encodeEntry(v.Param.ID, v.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, entry...)
	}
	return out, nil
}

func encodeEntry(id byte, value []byte) ([]byte, error) {
	if len(value) > maxTotal {
		return nil, &MalformedError{Reason: fmt.Sprintf("parameter 0x%02x value of %d bytes exceeds 16 bits", id, len(value))}
	}
	if len(value) >= extLen {
		entry := make([]byte, 0, 4+len(value))
		entry = append(entry, id, extLen)
		entry = binary.BigEndian.AppendUint16(entry, uint16(len(value)))
		return append(entry, value...), nil
	}
	entry := make([]byte, 0, 2+len(value))
	entry = append(entry, id, byte(len(value)))
	return append(entry, value...), nil
}

// Decode parses one FPDU from b, which holds the header and body with
// the leading 2-byte length already consumed by the frame layer.
// Decoding is strict: no partial FPDU is returned on error.
func Decode(b []byte) (*FPDU, error) {
	if len(b) < headerLen {
		return nil, &MalformedError{Reason: fmt.Sprintf("%d bytes is shorter than the fixed header", len(b))}
	}
	verb, ok := wireVerb[phaseType{b[0], b[1]}]
	if !ok {
		return nil, &MalformedError{Reason: fmt.Sprintf("unknown (phase, type) pair (%d, %d)", b[0], b[1])}
	}

	f := &FPDU{Verb: verb, IDDst: b[2], IDSrc: b[3]}
	body := b[headerLen:]

	if verb.IsData() {
		f.Data = append([]byte(nil), body...)
		return f, nil
	}

	params, err := decodeParams(body, headerLen, true)
	if err != nil {
		return nil, err
	}
	f.Params = params
	return f, nil
}

// decodeParams parses a flat run of parameter entries. base is the
// offset of buf within the FPDU, for error reporting. groupsAllowed is
// false when parsing PGI children: the profile nests one level only.
func decodeParams(buf []byte, base int, groupsAllowed bool) ([]param.Value, error) {
	var values []param.Value
	i := 0
	for i < len(buf) {
		start := base + i
		id := buf[i]
		i++

		vlen, n, err := decodeLen(buf[i:], base+i)
		if err != nil {
			return nil, err
		}
		i += n
		if i+vlen > len(buf) {
			return nil, &MalformedError{Offset: start, Reason: fmt.Sprintf("parameter 0x%02x length %d overruns remaining %d bytes", id, vlen, len(buf)-i)}
		}

		p, err := param.Lookup(id)
		if err != nil {
			return nil, err
		}

		if p.Group {
			if !groupsAllowed {
				return nil, &MalformedError{Offset: start, Reason: fmt.Sprintf("group %s nested inside a group", p.Name)}
			}
			children, err := decodeParams(buf[i:i+vlen], base+i, false)
			if err != nil {
				return nil, err
			}
			values = append(values, param.Value{Param: p, Children: children})
		} else {
			values = append(values, param.Value{Param: p, Data: append([]byte(nil), buf[i:i+vlen]...)})
		}
		i += vlen
	}
	return values, nil
}

// decodeLen reads a 1-byte length, or a 2-byte extended length when the
// first byte is 0xFF. Returns the value length and bytes consumed.
func decodeLen(buf []byte, at int) (int, int, error) {
	if len(buf) < 1 {
		return 0, 0, &MalformedError{Offset: at, Reason: "entry truncated before length"}
	}
	if buf[0] != extLen {
		return int(buf[0]), 1, nil
	}
	if len(buf) < 3 {
		return 0, 0, &MalformedError{Offset: at, Reason: "entry truncated inside extended length"}
	}
	return int(binary.BigEndian.Uint16(buf[1:3])), 3, nil
}
