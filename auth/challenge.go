// Package auth proves control of a wallet without passwords. The service
// issues a single-use random nonce per wallet; the client signs it with the
// wallet's key using the personal-message envelope; the service recovers the
// signer from the signature and compares it with the claimed wallet.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Challenge is an outstanding nonce for one wallet.
type Challenge struct {
	Wallet    wallet.Address
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge is no longer valid at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Identity is the result of a successful verification. It is not persisted.
type Identity struct {
	Wallet     wallet.Address
	VerifiedAt time.Time
}

// ChallengeStore holds at most one challenge per wallet.
type ChallengeStore interface {
	// Put stores c, replacing any earlier challenge for the same wallet.
	Put(ctx context.Context, c Challenge) error

	// Take atomically loads and deletes the challenge for w. The boolean is
	// false when none exists.
	Take(ctx context.Context, w wallet.Address) (Challenge, bool, error)

	// Purge deletes every challenge expired at now and returns how many.
	Purge(ctx context.Context, now time.Time) (int, error)
}

// MemStore is an in-memory ChallengeStore safe for concurrent use.
type MemStore struct {
	mu         sync.Mutex
	challenges map[wallet.Address]Challenge
}

var _ ChallengeStore = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{challenges: make(map[wallet.Address]Challenge)}
}

func (s *MemStore) Put(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.Wallet] = c
	return nil
}

func (s *MemStore) Take(_ context.Context, w wallet.Address) (Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[w]
	if ok {
		delete(s.challenges, w)
	}
	return c, ok, nil
}

func (s *MemStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for w, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, w)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored challenges.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
