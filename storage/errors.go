package storage

import "errors"

var (
	// ErrNotFound indicates no stored file has the given name.
	ErrNotFound = errors.New("storage: file not found")

	// ErrExists indicates a file with the given name is already stored.
	// Stored files are write-once.
	ErrExists = errors.New("storage: file already exists")

	// ErrInvalidName indicates the filename cannot be stored safely.
	ErrInvalidName = errors.New("storage: invalid filename")

	// ErrTooLarge indicates the upload exceeds the configured size limit.
	ErrTooLarge = errors.New("storage: upload exceeds size limit")

	// ErrAborted indicates the upload body could not be read to completion,
	// either because the reader failed or the context was cancelled.
	ErrAborted = errors.New("storage: upload aborted")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrJournal indicates the orphan journal could not be read or written.
	ErrJournal = errors.New("storage: orphan journal failure")
)
