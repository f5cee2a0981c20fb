package scan

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashChunkSize keeps memory flat while hashing large media files.
const hashChunkSize = 1 << 20

// SHA1File returns the hex SHA-1 of a file's content.
func SHA1File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening for hash: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
