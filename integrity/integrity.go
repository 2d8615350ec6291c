// Package integrity computes and compares the content digests recorded on the
// ledger for every upload. It is stateless and has no side effects beyond
// reading the bytes it is asked to hash.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// DigestSize is the length of a digest in bytes.
const DigestSize = sha256.Size

// HexSize is the length of a hex-encoded digest.
const HexSize = 2 * DigestSize

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader hashes r to EOF and returns the hex digest and the number of
// bytes read.
func DigestReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Writer hashes everything written to it. Use it with io.MultiWriter to
// digest a stream while persisting it.
type Writer struct {
	h hash.Hash
	n int64
}

// NewWriter returns an empty digest writer.
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, _ := w.h.Write(p)
	w.n += int64(n)
	return n, nil
}

// Sum returns the hex digest of the bytes written so far.
func (w *Writer) Sum() string { return hex.EncodeToString(w.h.Sum(nil)) }

// Size returns the number of bytes written.
func (w *Writer) Size() int64 { return w.n }

// DigestFile hashes the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer func() { _ = f.Close() }()

	d, _, err := DigestReader(f)
	return d, err
}

// Verify reports whether the file at storedPath hashes to expected.
// A malformed expected digest is an error, not a mismatch.
func Verify(storedPath, expected string) (bool, error) {
	if err := ValidateHex(expected); err != nil {
		return false, err
	}
	actual, err := DigestFile(storedPath)
	if err != nil {
		return false, err
	}
	return Equal(actual, expected), nil
}

// Equal compares two hex digests case-insensitively in constant time.
func Equal(a, b string) bool {
	a = strings.ToLower(strings.TrimPrefix(a, "0x"))
	b = strings.ToLower(strings.TrimPrefix(b, "0x"))
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateHex checks that d is a well-formed hex digest of DigestSize bytes.
func ValidateHex(d string) error {
	d = strings.TrimPrefix(d, "0x")
	if len(d) != HexSize {
		return fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidDigest, HexSize, len(d))
	}
	if _, err := hex.DecodeString(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDigest, err)
	}
	return nil
}
