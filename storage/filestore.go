package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashdriveorg/hashdrive-go/integrity"
)

// FileStore implements Store using the local filesystem.
// Files are stored at {baseDir}/{name}. Uploads are written to a
// {baseDir}/.upload-* temp file and published with a hard link, which fails
// if the name already exists.
type FileStore struct {
	baseDir string
	maxSize int64
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a new file store rooted at baseDir, typically
// "~/.hashdrive/uploads". The directory is created if it does not exist.
// maxSize bounds a single upload in bytes; zero means unlimited.
func NewFileStore(baseDir string, maxSize int64) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}
	if maxSize < 0 {
		return nil, fmt.Errorf("%w: negative size limit", ErrInvalidBaseDir)
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &FileStore{
		baseDir: baseDir,
		maxSize: maxSize,
	}, nil
}

// Dir returns the base directory.
func (fs *FileStore) Dir() string { return fs.baseDir }

// filePath returns the full file path for a stored name.
func (fs *FileStore) filePath(name string) string {
	return filepath.Join(fs.baseDir, name)
}

// bodyReader stops at context cancellation and remembers read failures so
// they can be told apart from write failures.
type bodyReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		b.err = err
		return 0, err
	}
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}

// Create streams r into name.
func (fs *FileStore) Create(ctx context.Context, name string, r io.Reader) (Stored, error) {
	if err := ValidateName(name); err != nil {
		return Stored{}, err
	}

	final := fs.filePath(name)
	if _, err := os.Lstat(final); err == nil {
		return Stored{}, fmt.Errorf("%w: %s", ErrExists, name)
	}

	tmp, err := os.CreateTemp(fs.baseDir, tempPrefix+"*")
	if err != nil {
		return Stored{}, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	body := &bodyReader{ctx: ctx, r: r}
	var src io.Reader = body
	if fs.maxSize > 0 {
		src = io.LimitReader(body, fs.maxSize+1)
	}

	digest := integrity.NewWriter()
	n, err := io.Copy(io.MultiWriter(tmp, digest), src)
	switch {
	case body.err != nil:
		return Stored{}, fmt.Errorf("%w: %w", ErrAborted, body.err)
	case err != nil:
		return Stored{}, fmt.Errorf("%w: %w", ErrIOFailure, err)
	case fs.maxSize > 0 && n > fs.maxSize:
		return Stored{}, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, fs.maxSize)
	}

	if err := tmp.Sync(); err != nil {
		return Stored{}, fmt.Errorf("%w: sync: %w", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return Stored{}, fmt.Errorf("%w: close: %w", ErrIOFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	// Link fails with EEXIST if another upload published the name first.
	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Stored{}, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return Stored{}, fmt.Errorf("%w: publish: %w", ErrIOFailure, err)
	}
	published = true
	_ = os.Remove(tmp.Name())
	syncDir(fs.baseDir)

	return Stored{Name: name, Digest: digest.Sum(), Size: n}, nil
}

// syncDir flushes directory entries so a published link survives a crash.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Open returns the stored file and its size.
func (fs *FileStore) Open(name string) (io.ReadSeekCloser, int64, error) {
	if err := ValidateName(name); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(fs.filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, name)
	}
	return f, info.Size(), nil
}

// Has checks if a file is stored under name.
func (fs *FileStore) Has(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}

	_, err := os.Lstat(fs.filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// Verify re-hashes the file stored under name and compares it to digest.
func (fs *FileStore) Verify(name, digest string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}

	ok, err := integrity.Verify(fs.filePath(name), digest)
	if errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return ok, err
}

// Remove deletes the file stored under name.
func (fs *FileStore) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	err := os.Remove(fs.filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// List returns all stored filenames, skipping temp files and directories.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// CleanTemp removes temp files left behind by interrupted uploads and
// returns how many were removed. Call it before serving.
func (fs *FileStore) CleanTemp() (int, error) {
	matches, err := filepath.Glob(filepath.Join(fs.baseDir, tempPrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed, nil
}
