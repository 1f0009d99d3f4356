package imageproc

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/tidalbase/quadrat/internal/domain"
)

// Checksum computes the hex SHA-256 of a blob, reading in fixed-size
// chunks so large originals never need to be buffered twice.
func Checksum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, domain.ChecksumChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
