package param

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Value is one PI or PGI occurrence inside an FPDU. A scalar value owns
// raw bytes; a group value owns an ordered list of child PIs instead.
type Value struct {
	Param    *Parameter
	Data     []byte
	Children []Value
}

// Int encodes an unsigned integer for p at the smallest big-endian width
// (1 to 4 bytes) that holds it, honoring the catalog's length rule.
func Int(p *Parameter, v uint64) (Value, error) {
	if p.Group {
		return Value{}, &TooLargeError{Param: p, Reason: "integer value for a group parameter"}
	}
	if p.Type == TypeString || p.Type == TypeDateTime {
		return Value{}, &TooLargeError{Param: p, Reason: "integer value for a text parameter"}
	}
	width := intWidth(v)
	if width > 4 {
		return Value{}, &TooLargeError{Param: p, Reason: fmt.Sprintf("value %d exceeds 4 bytes", v)}
	}
	if p.Fixed() {
		if width > p.Length {
			return Value{}, &TooLargeError{Param: p, Reason: fmt.Sprintf("value %d does not fit %d fixed bytes", v, p.Length)}
		}
		width = p.Length
	} else if p.Max > 0 && width > p.Max {
		return Value{}, &TooLargeError{Param: p, Reason: fmt.Sprintf("value %d exceeds %d byte maximum", v, p.Max)}
	}
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return Value{Param: p, Data: buf}, nil
}

// String encodes a Latin-1 string for p. UTF-8 input is transcoded;
// bytes that are not valid UTF-8 pass through as raw Latin-1, so
// strings decoded from the wire re-encode unchanged.
func String(p *Parameter, s string) (Value, error) {
	if p.Group {
		return Value{}, &TooLargeError{Param: p, Reason: "string value for a group parameter"}
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, s[i])
			i++
			continue
		}
		if r > 0xff {
			return Value{}, &TooLargeError{Param: p, Reason: fmt.Sprintf("rune %q outside Latin-1", r)}
		}
		buf = append(buf, byte(r))
		i += size
	}
	if p.Fixed() && len(buf) > p.Length {
		return Value{}, &TooLargeError{Param: p, Reason: fmt.Sprintf("%d bytes exceed %d fixed bytes", len(buf), p.Length)}
	}
	if !p.Fixed() && p.Max > 0 && len(buf) > p.Max {
		return Value{}, &TooLargeError{Param: p, Reason: fmt.Sprintf("%d bytes exceed %d byte maximum", len(buf), p.Max)}
	}
	return Value{Param: p, Data: buf}, nil
}

// Bytes wraps raw bytes for p without width checks beyond the fixed rule.
func Bytes(p *Parameter, data []byte) (Value, error) {
	if p.Fixed() && len(data) != p.Length {
		return Value{}, &TooLargeError{Param: p, Reason: fmt.Sprintf("%d bytes for a %d byte parameter", len(data), p.Length)}
	}
	return Value{Param: p, Data: data}, nil
}

// Date encodes a timestamp for p in the protocol's yyMMddHHmmss form.
func Date(p *Parameter, t time.Time) (Value, error) {
	return String(p, t.Format("060102150405"))
}

// Group assembles a PGI value from child PIs, preserving order.
func Group(p *Parameter, children ...Value) (Value, error) {
	if !p.Group {
		return Value{}, &TooLargeError{Param: p, Reason: "children given for a scalar parameter"}
	}
	for _, c := range children {
		if c.Param.Group {
			return Value{}, &TooLargeError{Param: p, Reason: "nested group parameter"}
		}
	}
	return Value{Param: p, Children: children}, nil
}

// Uint reads the value as a big-endian unsigned integer.
func (v Value) Uint() uint64 {
	var n uint64
	for _, b := range v.Data {
		n = n<<8 | uint64(b)
	}
	return n
}

// Text reads the value as a Latin-1 string.
func (v Value) Text() string {
	var sb strings.Builder
	for _, b := range v.Data {
		sb.WriteRune(rune(b))
	}
	return sb.String()
}

// Render produces the diagnostic text form of the value. It is used for
// logging and operator messages, never for wire encoding.
func (v Value) Render() string {
	if v.Param.Group {
		parts := make([]string, len(v.Children))
		for i, c := range v.Children {
			parts[i] = c.Render()
		}
		return fmt.Sprintf("%s{%s}", v.Param.Name, strings.Join(parts, ", "))
	}
	switch v.Param.Type {
	case TypeString, TypeDateTime:
		return v.Text()
	case TypeNumber, TypeSymbol:
		return fmt.Sprintf("%d", v.Uint())
	case TypeBitmask:
		if len(v.Data) == 0 {
			return "0b0"
		}
		var sb strings.Builder
		sb.WriteString("0b")
		for _, b := range v.Data {
			fmt.Fprintf(&sb, "%08b", b)
		}
		return sb.String()
	default:
		return hex.EncodeToString(v.Data)
	}
}

// SyncPointOptions packs the PI_07 payload: a sync interval in kilobytes
// and an acknowledgement window.
func SyncPointOptions(intervalKB uint16, window uint8) (Value, error) {
	buf := make([]byte, 3)
	binary.BigEndian.PutUint16(buf, intervalKB)
	buf[2] = window
	return Bytes(SyncOptions, buf)
}

func intWidth(v uint64) int {
	w := 1
	for v > 0xff {
		v >>= 8
		w++
	}
	return w
}
