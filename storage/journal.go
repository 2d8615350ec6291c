package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketOrphans = []byte("orphans")

// OpenDB opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenDB(dbPath string) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt db: %w", err)
	}
	return db, nil
}

// Orphan is a stored file whose ledger record is not known to exist.
type Orphan struct {
	Filename   string
	Digest     string
	TxID       string
	Reason     string
	RecordedAt time.Time
}

// OrphanJournal persists orphans until they are reconciled against the
// ledger. Entries are keyed by filename.
type OrphanJournal struct {
	db *bbolt.DB
}

// NewOrphanJournal creates the orphans bucket in db if needed.
func NewOrphanJournal(db *bbolt.DB) (*OrphanJournal, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOrphans)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create bucket: %w", ErrJournal, err)
	}
	return &OrphanJournal{db: db}, nil
}

// Add records o, replacing any entry for the same filename.
func (j *OrphanJournal) Add(o Orphan) error {
	if o.Filename == "" {
		return fmt.Errorf("%w: orphan without filename", ErrJournal)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(o); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrJournal, err)
	}
	err := j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOrphans).Put([]byte(o.Filename), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: put: %w", ErrJournal, err)
	}
	return nil
}

// Remove drops the entry for filename. Removing a missing entry is not an error.
func (j *OrphanJournal) Remove(filename string) error {
	err := j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOrphans).Delete([]byte(filename))
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %w", ErrJournal, err)
	}
	return nil
}

// List returns all orphans ordered by filename.
func (j *OrphanJournal) List() ([]Orphan, error) {
	var out []Orphan
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOrphans).ForEach(func(k, v []byte) error {
			var o Orphan
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&o); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			out = append(out, o)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJournal, err)
	}
	return out, nil
}

// Len returns the number of journaled orphans.
func (j *OrphanJournal) Len() (int, error) {
	n := 0
	err := j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketOrphans).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrJournal, err)
	}
	return n, nil
}
