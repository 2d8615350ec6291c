package integrity

import "errors"

var (
	// ErrInvalidDigest indicates a digest string is not 64 hex characters.
	ErrInvalidDigest = errors.New("integrity: invalid digest")

	// ErrRead indicates the content could not be read for hashing.
	ErrRead = errors.New("integrity: read failed")
)
