// Package integrity computes and compares artifact content digests.
//
// Digests carry their algorithm as a prefix ("sha256:<hex>") so the stored
// value stays comparable if a later version adds a new algorithm.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// AlgorithmSHA256 is the only digest algorithm currently produced.
const AlgorithmSHA256 = "sha256"

// Verifier computes deterministic content digests of artifacts.
type Verifier struct{}

// NewVerifier creates a Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Checksum returns the versioned digest of the file at path.
func (v *Verifier) Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	return format(h.Sum(nil)), nil
}

// ChecksumBytes returns the versioned digest of an in-memory payload.
func (v *Verifier) ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return format(sum[:])
}

// Verify reports whether the file at path matches the expected digest.
// Unreadable files, unknown algorithms and malformed digests all verify false.
func (v *Verifier) Verify(path, expected string) bool {
	algo, want, ok := strings.Cut(expected, ":")
	if !ok || algo != AlgorithmSHA256 || want == "" {
		return false
	}
	got, err := v.Checksum(path)
	if err != nil {
		return false
	}
	_, gotHex, _ := strings.Cut(got, ":")
	return subtle.ConstantTimeCompare([]byte(gotHex), []byte(strings.ToLower(want))) == 1
}

func format(sum []byte) string {
	return AlgorithmSHA256 + ":" + hex.EncodeToString(sum)
}
