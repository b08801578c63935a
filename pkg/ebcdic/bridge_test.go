package ebcdic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_AllBytes(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		assert.Equal(t, b, toASCII[toEBCDIC[b]], "ascii->ebcdic->ascii for 0x%02x", b)
		assert.Equal(t, b, toEBCDIC[toASCII[b]], "ebcdic->ascii->ebcdic for 0x%02x", b)
	}
}

func TestToASCII_KnownCodepoints(t *testing.T) {
	// Codepage 037 spot checks: 'A' = 0xC1, '0' = 0xF0, space = 0x40.
	got := ToASCII([]byte{0xc1, 0xf0, 0x40})
	assert.Equal(t, []byte("A0 "), got)
}

func TestToEBCDIC_KnownCodepoints(t *testing.T) {
	got := ToEBCDIC([]byte("A0 "))
	assert.Equal(t, []byte{0xc1, 0xf0, 0x40}, got)
}

func TestConvert_DoesNotModifyInput(t *testing.T) {
	in := []byte("LOOP")
	_ = ToEBCDIC(in)
	assert.Equal(t, []byte("LOOP"), in)
}

func TestIsEBCDIC_Boundary(t *testing.T) {
	// Exactly 4 of 6 high-bit bytes: EBCDIC.
	require.True(t, IsEBCDIC([]byte{0x80, 0x81, 0xc1, 0xf0, 0x01, 0x02}))
	// Only 3 of 6: ASCII.
	require.False(t, IsEBCDIC([]byte{0x80, 0x81, 0xc1, 0x00, 0x01, 0x02}))
	// All 6: EBCDIC.
	require.True(t, IsEBCDIC([]byte{0xc3, 0xd6, 0xd5, 0xd5, 0xc5, 0xc3}))
	// None: ASCII.
	require.False(t, IsEBCDIC([]byte{0x00, 0x20, 0x01, 0x01, 0x00, 0x07}))
}

func TestIsEBCDIC_ShortStream(t *testing.T) {
	// Fewer than 6 bytes is never EBCDIC, even if every byte is high.
	assert.False(t, IsEBCDIC([]byte{0xc1, 0xc2, 0xc3, 0xc4, 0xc5}))
	assert.False(t, IsEBCDIC(nil))
}

func TestDetector_CustomPolicy(t *testing.T) {
	d := Detector{HeaderBytes: 4, Threshold: 2}
	assert.True(t, d.IsEBCDIC([]byte{0x80, 0x80, 0x00, 0x00}))
	assert.False(t, d.IsEBCDIC([]byte{0x80, 0x00, 0x00, 0x00}))
}
