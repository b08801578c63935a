package param

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	p, err := Lookup(13)
	require.NoError(t, err)
	assert.Equal(t, TransferID, p)

	g, err := Lookup(9)
	require.NoError(t, err)
	assert.True(t, g.Group)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup(0xee)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownParameter))

	var upe *UnknownParameterError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, byte(0xee), upe.ID)
}

func TestInt_WidthSelection(t *testing.T) {
	tests := []struct {
		value uint64
		width int
	}{
		{0, 1},
		{255, 1},
		{256, 2},
		{65535, 2},
		{65536, 3},
		{16777215, 3},
		{16777216, 4},
	}

	for _, tt := range tests {
		v, err := Int(RestartPoint, tt.value)
		require.NoError(t, err, "value %d", tt.value)
		assert.Len(t, v.Data, tt.width, "value %d", tt.value)
		assert.Equal(t, tt.value, v.Uint(), "round trip for %d", tt.value)
	}
}

func TestInt_BigEndian(t *testing.T) {
	v, err := Int(SyncNumber, 0x0102)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, v.Data)
}

func TestInt_ExceedsMaxWidth(t *testing.T) {
	// PI_13 transfer id is capped at 3 bytes.
	_, err := Int(TransferID, 16777216)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterTooLarge))
}

func TestInt_FixedWidthPadding(t *testing.T) {
	// PI_11 file type is a fixed 2 byte field; small values are padded.
	v, err := Int(FileType, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x03}, v.Data)
}

func TestInt_FixedWidthOverflow(t *testing.T) {
	_, err := Int(Version, 256) // PI_06 is one fixed byte
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterTooLarge))
}

func TestInt_StringTypedParameter(t *testing.T) {
	_, err := Int(FileName, 12)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterTooLarge))
}

func TestString_Latin1(t *testing.T) {
	v, err := String(Requester, "LOOP")
	require.NoError(t, err)
	assert.Equal(t, []byte("LOOP"), v.Data)
	assert.Equal(t, "LOOP", v.Text())

	// The Latin-1 high half is legal, given either as UTF-8 or as raw
	// Latin-1 bytes; both encode to the same wire form.
	v, err = String(FileName, "RÉSUMÉ")
	require.NoError(t, err)
	assert.Equal(t, []byte{'R', 0xC9, 'S', 'U', 'M', 0xC9}, v.Data)
	assert.Equal(t, "RÉSUMÉ", v.Text())

	v, err = String(FileName, "R\xc9SUM\xc9")
	require.NoError(t, err)
	assert.Equal(t, []byte{'R', 0xC9, 'S', 'U', 'M', 0xC9}, v.Data)
}

func TestString_OutsideLatin1(t *testing.T) {
	_, err := String(FileName, "€FILE") // euro sign
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterTooLarge))
}

func TestString_TooLong(t *testing.T) {
	long := make([]byte, 25)
	for i := range long {
		long[i] = 'A'
	}
	_, err := String(Requester, string(long)) // PI_03 max 24
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterTooLarge))
}

func TestBytes_FixedMismatch(t *testing.T) {
	_, err := Bytes(Diag, []byte{1, 2}) // PI_02 is 3 fixed bytes
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterTooLarge))

	v, err := Bytes(Diag, []byte{0, 0, 0})
	require.NoError(t, err)
	assert.Len(t, v.Data, 3)
}

func TestDate_Format(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC)
	v, err := Date(CreationDate, ts)
	require.NoError(t, err)
	assert.Equal(t, "240315093045", v.Text())
}

func TestGroup(t *testing.T) {
	ft, _ := Int(FileType, 0)
	fn, _ := String(FileName, "FILE")

	g, err := Group(GroupFileID, ft, fn)
	require.NoError(t, err)
	require.Len(t, g.Children, 2)
	assert.Equal(t, FileType, g.Children[0].Param)
	assert.Equal(t, FileName, g.Children[1].Param)
}

func TestGroup_RejectsNesting(t *testing.T) {
	inner, err := Group(GroupRecord)
	require.NoError(t, err)

	_, err = Group(GroupFileID, inner)
	require.Error(t, err)
}

func TestGroup_ScalarParameter(t *testing.T) {
	_, err := Group(FileName)
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	fn, _ := String(FileName, "FILE")
	assert.Equal(t, "FILE", fn.Render())

	n, _ := Int(SyncNumber, 7)
	assert.Equal(t, "7", n.Render())

	m, _ := Bytes(Attributes, []byte{0xa0})
	assert.Equal(t, "0b10100000", m.Render())

	d, _ := Bytes(Diag, []byte{0x02, 0x01, 0x00})
	assert.Equal(t, "020100", d.Render())

	ft, _ := Int(FileType, 0)
	g, _ := Group(GroupFileID, ft, fn)
	assert.Equal(t, "PGI_09 file identification{0, FILE}", g.Render())
}

func TestSyncPointOptions(t *testing.T) {
	v, err := SyncPointOptions(36, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x24, 0x04}, v.Data)
}
