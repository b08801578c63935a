package frame

import (
	"encoding/binary"
	"io"
)

// ExtractArticles walks a multi-article DTF body of
// [article_len:2][article_bytes] entries and returns the article
// bodies in order. A zero length or one exceeding the remaining bytes
// truncates extraction at the last valid article without error.
func ExtractArticles(data []byte) [][]byte {
	var articles [][]byte
	i := 0
	for i+2 <= len(data) {
		n := int(binary.BigEndian.Uint16(data[i:]))
		if n == 0 || i+2+n > len(data) {
			break
		}
		articles = append(articles, data[i+2:i+2+n])
		i += 2 + n
	}
	return articles
}

// CopyArticles streams article bodies straight to w and returns the
// total bytes written. Truncation rules match ExtractArticles.
func CopyArticles(w io.Writer, data []byte) (int64, error) {
	var total int64
	i := 0
	for i+2 <= len(data) {
		n := int(binary.BigEndian.Uint16(data[i:]))
		if n == 0 || i+2+n > len(data) {
			break
		}
		written, err := w.Write(data[i+2 : i+2+n])
		total += int64(written)
		if err != nil {
			return total, err
		}
		i += 2 + n
	}
	return total, nil
}
