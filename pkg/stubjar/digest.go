package stubjar

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// DigestFile returns the hex encoded BLAKE3 digest of a file. Stub jars are
// deterministic, so the digest of a committed jar can serve as a cache key.
func DigestFile(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", filename, err)
	}
	defer f.Close()
	return Digest(f)
}

// Digest returns the hex encoded BLAKE3 digest of everything read from r.
func Digest(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
