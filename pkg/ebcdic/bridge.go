package ebcdic

import (
	"golang.org/x/text/encoding/charmap"
)

// Lookup tables, built once at init and read-only thereafter. Codepage
// 037 is a bijection onto Latin-1, so inversion is total.
var (
	toASCII  [256]byte
	toEBCDIC [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		toASCII[i] = byte(charmap.CodePage037.DecodeByte(byte(i)))
	}
	for i := 0; i < 256; i++ {
		toEBCDIC[toASCII[i]] = byte(i)
	}
}

// ToASCII converts an EBCDIC buffer to ASCII/Latin-1. The input is not
// modified.
func ToASCII(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = toASCII[b]
	}
	return out
}

// ToEBCDIC converts an ASCII/Latin-1 buffer to EBCDIC codepage 037. The
// input is not modified.
func ToEBCDIC(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = toEBCDIC[b]
	}
	return out
}

// Detector classifies an octet stream as EBCDIC or ASCII by high-bit
// density over the fixed FPDU header.
type Detector struct {
	// HeaderBytes is how many leading bytes to inspect.
	HeaderBytes int
	// Threshold is the minimum count of high-bit bytes among them for
	// an EBCDIC classification.
	Threshold int
}

// DefaultDetector is the policy observed to match IBM mainframe peers:
// at least 4 of the first 6 bytes with the high bit set.
var DefaultDetector = Detector{HeaderBytes: 6, Threshold: 4}

// IsEBCDIC classifies buf. Streams shorter than the inspected header
// are never classified as EBCDIC: insufficient evidence.
func (d Detector) IsEBCDIC(buf []byte) bool {
	if len(buf) < d.HeaderBytes {
		return false
	}
	high := 0
	for _, b := range buf[:d.HeaderBytes] {
		if b >= 0x80 {
			high++
		}
	}
	return high >= d.Threshold
}

// IsEBCDIC classifies buf under the default policy.
func IsEBCDIC(buf []byte) bool {
	return DefaultDetector.IsEBCDIC(buf)
}
