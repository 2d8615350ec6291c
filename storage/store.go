package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest accepted filename in bytes.
const MaxNameLength = 255

// tempPrefix marks in-progress uploads. Names with a leading dot are
// rejected, so stored files can never collide with temp files.
const tempPrefix = ".upload-"

// Stored describes a file that was durably persisted.
type Stored struct {
	Name   string
	Digest string
	Size   int64
}

// Store keeps uploaded files by filename. Files are write-once: a name is
// never overwritten, only removed.
type Store interface {
	// Create streams r into a new file named name, hashing it on the way.
	// The file is visible under name only after it is fully written and
	// synced. ErrExists if name is taken.
	Create(ctx context.Context, name string, r io.Reader) (Stored, error)

	// Open returns a reader positioned at the start of the file and its size.
	Open(name string) (io.ReadSeekCloser, int64, error)

	// Has reports whether name is stored.
	Has(name string) (bool, error)

	// Verify reports whether the stored content of name hashes to digest.
	Verify(name, digest string) (bool, error)

	// Remove deletes name.
	Remove(name string) error

	// List returns all stored filenames in lexical order.
	List() ([]string, error)
}

// ValidateName checks that name is a plain file name that can be stored
// in a single directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: leading dot", ErrInvalidName)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: contains a path separator or NUL", ErrInvalidName)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	}
	return nil
}
