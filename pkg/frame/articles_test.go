package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractArticles(t *testing.T) {
	data := []byte{0, 3, 'A', 'B', 'C', 0, 2, 'D', 'E'}
	articles := ExtractArticles(data)
	require.Len(t, articles, 2)
	assert.Equal(t, []byte("ABC"), articles[0])
	assert.Equal(t, []byte("DE"), articles[1])
}

func TestExtractArticles_ZeroLengthStops(t *testing.T) {
	data := []byte{0, 3, 'A', 'B', 'C', 0, 0, 'D', 'E'}
	articles := ExtractArticles(data)
	require.Len(t, articles, 1)
	assert.Equal(t, []byte("ABC"), articles[0])
}

func TestExtractArticles_OverrunStops(t *testing.T) {
	data := []byte{0, 3, 'A', 'B', 'C', 0, 9, 'D', 'E'}
	articles := ExtractArticles(data)
	require.Len(t, articles, 1)
	assert.Equal(t, []byte("ABC"), articles[0])
}

func TestExtractArticles_Empty(t *testing.T) {
	assert.Empty(t, ExtractArticles(nil))
	assert.Empty(t, ExtractArticles([]byte{0}))
}

func TestCopyArticles(t *testing.T) {
	data := []byte{0, 3, 'A', 'B', 'C', 0, 2, 'D', 'E'}
	var buf bytes.Buffer
	n, err := CopyArticles(&buf, data)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "ABCDE", buf.String())
}

func TestCopyArticles_TruncatesLikeExtract(t *testing.T) {
	data := []byte{0, 3, 'A', 'B', 'C', 0, 9, 'D'}
	var buf bytes.Buffer
	n, err := CopyArticles(&buf, data)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "ABC", buf.String())
}
