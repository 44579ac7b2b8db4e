// Package checksum fingerprints graph files so unchanged files are not
// imported twice.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

var (
	bom  = []byte("\xef\xbb\xbf")
	crlf = []byte("\r\n")
	lf   = []byte("\n")
)

// Sum returns the hex-encoded SHA-256 digest of data. A leading byte order
// mark and CRLF line endings are ignored, since they do not change what the
// parser extracts.
func Sum(data []byte) string {
	data = bytes.TrimPrefix(data, bom)
	if bytes.Contains(data, crlf) {
		data = bytes.ReplaceAll(data, crlf, lf)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
