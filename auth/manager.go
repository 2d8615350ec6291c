package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

const (
	// DefaultTTL is how long an issued challenge stays valid.
	DefaultTTL = 5 * time.Minute

	// NonceSize is the number of random bytes in a nonce.
	NonceSize = 16
)

// Observer receives challenge lifecycle events for metrics.
type Observer interface {
	ObserveChallenge(op, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveChallenge(string, string) {}

// Manager issues and verifies wallet challenges.
type Manager struct {
	store ChallengeStore
	ttl   time.Duration
	log   zerolog.Logger
	obs   Observer

	now  func() time.Time
	rand io.Reader
}

// NewManager creates a Manager over store. A non-positive ttl selects DefaultTTL.
func NewManager(store ChallengeStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		log:   zerolog.Nop(),
		obs:   nopObserver{},
		now:   time.Now,
		rand:  rand.Reader,
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(l zerolog.Logger) { m.log = l }

// SetObserver sets the metrics observer.
func (m *Manager) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	m.obs = o
}

// ParseWallet canonicalizes a client-supplied wallet address.
func ParseWallet(s string) (wallet.Address, error) {
	a, err := wallet.ParseAddress(s)
	if err != nil {
		return wallet.Address{}, fmt.Errorf("%w: %w", ErrInvalidWallet, err)
	}
	return a, nil
}

// Issue creates a fresh challenge for w, replacing any outstanding one.
func (m *Manager) Issue(ctx context.Context, w string) (Challenge, error) {
	addr, err := ParseWallet(w)
	if err != nil {
		return Challenge{}, err
	}

	buf := make([]byte, NonceSize)
	if _, err := io.ReadFull(m.rand, buf); err != nil {
		return Challenge{}, fmt.Errorf("auth: generate nonce: %w", err)
	}

	now := m.now()
	c := Challenge{
		Wallet:    addr,
		Nonce:     hex.EncodeToString(buf),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, c); err != nil {
		return Challenge{}, err
	}
	m.obs.ObserveChallenge("issue", "ok")
	m.log.Debug().Str("wallet", addr.String()).Msg("challenge issued")
	return c, nil
}

// Verify consumes the challenge for w and checks that signature is the
// wallet's personal-message signature over its nonce. The challenge is
// removed whether or not verification succeeds.
func (m *Manager) Verify(ctx context.Context, w, signature string) (Identity, error) {
	id, err := m.verify(ctx, w, signature)
	m.obs.ObserveChallenge("verify", verifyOutcome(err))
	if err != nil {
		m.log.Info().Err(err).Str("wallet", w).Msg("challenge verification failed")
	}
	return id, err
}

func (m *Manager) verify(ctx context.Context, w, signature string) (Identity, error) {
	addr, err := ParseWallet(w)
	if err != nil {
		return Identity{}, err
	}
	sig, err := wallet.DecodeSignature(signature)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}

	c, ok, err := m.store.Take(ctx, addr)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, ErrUnknownChallenge
	}
	now := m.now()
	if c.Expired(now) {
		return Identity{}, ErrChallengeExpired
	}

	recovered, err := wallet.RecoverMessage([]byte(c.Nonce), sig)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if recovered != addr {
		return Identity{}, ErrInvalidSignature
	}
	return Identity{Wallet: addr, VerifiedAt: now}, nil
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownChallenge):
		return "unknown"
	case errors.Is(err, ErrChallengeExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "mismatch"
	case errors.Is(err, ErrInvalidWallet), errors.Is(err, ErrMalformedSignature):
		return "invalid"
	default:
		return "error"
	}
}

// Sweep removes expired challenges.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.Purge(ctx, m.now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.log.Warn().Err(err).Msg("challenge sweep failed")
				continue
			}
			if n > 0 {
				m.log.Debug().Int("purged", n).Msg("expired challenges purged")
			}
		}
	}
}
