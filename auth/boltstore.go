package auth

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

var bucketChallenges = []byte("challenges")

// BoltStore persists challenges in a bbolt bucket so that outstanding
// nonces survive a restart. Take runs in a single update transaction.
type BoltStore struct {
	db *bbolt.DB
}

var _ ChallengeStore = (*BoltStore)(nil)

// NewBoltStore creates the challenges bucket in db if needed.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChallenges)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create bucket: %w", ErrStore, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(_ context.Context, c Challenge) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("%w: encode challenge: %w", ErrStore, err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChallenges).Put(c.Wallet.Bytes(), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: put: %w", ErrStore, err)
	}
	return nil
}

func (s *BoltStore) Take(_ context.Context, w wallet.Address) (Challenge, bool, error) {
	var (
		c     Challenge
		found bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		data := b.Get(w.Bytes())
		if data == nil {
			return nil
		}
		// An undecodable entry is dropped and reported as absent.
		found = gob.NewDecoder(bytes.NewReader(data)).Decode(&c) == nil
		return b.Delete(w.Bytes())
	})
	if err != nil {
		return Challenge{}, false, fmt.Errorf("%w: take: %w", ErrStore, err)
	}
	return c, found, nil
}

func (s *BoltStore) Purge(_ context.Context, now time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var c Challenge
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&c); err != nil || c.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %w", ErrStore, err)
	}
	return n, nil
}
