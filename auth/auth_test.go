package auth

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

func testSigner(t *testing.T, key string) *wallet.Signer {
	t.Helper()
	s, err := wallet.SignerFromHex(key)
	require.NoError(t, err)
	return s
}

const (
	keyOne = "0x0000000000000000000000000000000000000000000000000000000000000001"
	keyTwo = "0x0000000000000000000000000000000000000000000000000000000000000002"
)

func sign(t *testing.T, s *wallet.Signer, nonce string) string {
	t.Helper()
	sig, err := s.SignMessage([]byte(nonce))
	require.NoError(t, err)
	return wallet.EncodeSignature(sig)
}

func openBolt(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "auth.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// stores runs fn against every ChallengeStore implementation.
func stores(t *testing.T, fn func(t *testing.T, store ChallengeStore)) {
	t.Run("mem", func(t *testing.T) { fn(t, NewMemStore()) })
	t.Run("bolt", func(t *testing.T) {
		s, err := NewBoltStore(openBolt(t))
		require.NoError(t, err)
		fn(t, s)
	})
}

func TestIssueAndVerify(t *testing.T) {
	stores(t, func(t *testing.T, store ChallengeStore) {
		m := NewManager(store, 0)
		signer := testSigner(t, keyOne)
		ctx := context.Background()

		// Mixed-case input is canonicalized.
		c, err := m.Issue(ctx, signer.Address().Checksum())
		require.NoError(t, err)
		assert.Len(t, c.Nonce, 2*NonceSize)
		assert.Equal(t, signer.Address(), c.Wallet)
		assert.Equal(t, DefaultTTL, c.ExpiresAt.Sub(c.IssuedAt))

		id, err := m.Verify(ctx, strings.ToUpper(signer.Address().String()[2:]), sign(t, signer, c.Nonce))
		require.Error(t, err, "address without 0x prefix is rejected")
		assert.ErrorIs(t, err, ErrInvalidWallet)

		id, err = m.Verify(ctx, signer.Address().String(), sign(t, signer, c.Nonce))
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), id.Wallet)
		assert.False(t, id.VerifiedAt.IsZero())
	})
}

func TestNonceIsSingleUse(t *testing.T) {
	stores(t, func(t *testing.T, store ChallengeStore) {
		m := NewManager(store, 0)
		signer := testSigner(t, keyOne)
		ctx := context.Background()

		c, err := m.Issue(ctx, signer.Address().String())
		require.NoError(t, err)
		sig := sign(t, signer, c.Nonce)

		_, err = m.Verify(ctx, signer.Address().String(), sig)
		require.NoError(t, err)
		_, err = m.Verify(ctx, signer.Address().String(), sig)
		assert.ErrorIs(t, err, ErrUnknownChallenge)
	})
}

func TestVerifyWrongSigner(t *testing.T) {
	stores(t, func(t *testing.T, store ChallengeStore) {
		m := NewManager(store, 0)
		owner := testSigner(t, keyOne)
		attacker := testSigner(t, keyTwo)
		ctx := context.Background()

		c, err := m.Issue(ctx, owner.Address().String())
		require.NoError(t, err)

		_, err = m.Verify(ctx, owner.Address().String(), sign(t, attacker, c.Nonce))
		assert.ErrorIs(t, err, ErrInvalidSignature)

		// The failed attempt consumed the challenge.
		_, err = m.Verify(ctx, owner.Address().String(), sign(t, owner, c.Nonce))
		assert.ErrorIs(t, err, ErrUnknownChallenge)
	})
}

func TestVerifyWrongNonce(t *testing.T) {
	m := NewManager(NewMemStore(), 0)
	signer := testSigner(t, keyOne)
	ctx := context.Background()

	_, err := m.Issue(ctx, signer.Address().String())
	require.NoError(t, err)
	_, err = m.Verify(ctx, signer.Address().String(), sign(t, signer, "not-the-nonce"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestReissueReplacesChallenge(t *testing.T) {
	m := NewManager(NewMemStore(), 0)
	signer := testSigner(t, keyOne)
	ctx := context.Background()

	first, err := m.Issue(ctx, signer.Address().String())
	require.NoError(t, err)
	second, err := m.Issue(ctx, signer.Address().String())
	require.NoError(t, err)
	assert.NotEqual(t, first.Nonce, second.Nonce)

	_, err = m.Verify(ctx, signer.Address().String(), sign(t, signer, first.Nonce))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyExpired(t *testing.T) {
	stores(t, func(t *testing.T, store ChallengeStore) {
		m := NewManager(store, time.Minute)
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return now }
		signer := testSigner(t, keyOne)
		ctx := context.Background()

		c, err := m.Issue(ctx, signer.Address().String())
		require.NoError(t, err)

		now = now.Add(time.Minute)
		_, err = m.Verify(ctx, signer.Address().String(), sign(t, signer, c.Nonce))
		assert.ErrorIs(t, err, ErrChallengeExpired)
	})
}

func TestVerifyInputValidation(t *testing.T) {
	m := NewManager(NewMemStore(), 0)
	signer := testSigner(t, keyOne)
	ctx := context.Background()

	_, err := m.Issue(ctx, "not-a-wallet")
	assert.ErrorIs(t, err, ErrInvalidWallet)

	c, err := m.Issue(ctx, signer.Address().String())
	require.NoError(t, err)

	_, err = m.Verify(ctx, signer.Address().String(), "0x1234")
	assert.ErrorIs(t, err, ErrMalformedSignature)
	_, err = m.Verify(ctx, signer.Address().String(), "zz")
	assert.ErrorIs(t, err, ErrMalformedSignature)

	// Malformed input does not touch the stored challenge.
	_, err = m.Verify(ctx, signer.Address().String(), sign(t, signer, c.Nonce))
	assert.NoError(t, err)
}

func TestVerifyUnknownWallet(t *testing.T) {
	m := NewManager(NewMemStore(), 0)
	signer := testSigner(t, keyOne)
	_, err := m.Verify(context.Background(), signer.Address().String(), sign(t, signer, "x"))
	assert.ErrorIs(t, err, ErrUnknownChallenge)
}

func TestConcurrentVerifySucceedsOnce(t *testing.T) {
	stores(t, func(t *testing.T, store ChallengeStore) {
		m := NewManager(store, 0)
		signer := testSigner(t, keyOne)
		ctx := context.Background()

		c, err := m.Issue(ctx, signer.Address().String())
		require.NoError(t, err)
		sig := sign(t, signer, c.Nonce)

		const attempts = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := m.Verify(ctx, signer.Address().String(), sig); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})
}

func TestSweep(t *testing.T) {
	stores(t, func(t *testing.T, store ChallengeStore) {
		m := NewManager(store, time.Minute)
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return now }
		ctx := context.Background()

		_, err := m.Issue(ctx, testSigner(t, keyOne).Address().String())
		require.NoError(t, err)
		now = now.Add(30 * time.Second)
		fresh := testSigner(t, keyTwo)
		c, err := m.Issue(ctx, fresh.Address().String())
		require.NoError(t, err)

		now = now.Add(45 * time.Second)
		n, err := m.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = m.Verify(ctx, fresh.Address().String(), sign(t, fresh, c.Nonce))
		assert.NoError(t, err)
	})
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	m := NewManager(NewMemStore(), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	signer := testSigner(t, keyOne)
	ctx := context.Background()

	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	store, err := NewBoltStore(db)
	require.NoError(t, err)
	c, err := NewManager(store, 0).Issue(ctx, signer.Address().String())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	defer db.Close()
	store, err = NewBoltStore(db)
	require.NoError(t, err)

	_, err = NewManager(store, 0).Verify(ctx, signer.Address().String(), sign(t, signer, c.Nonce))
	assert.NoError(t, err)
}

func TestIssueRandomFailure(t *testing.T) {
	m := NewManager(NewMemStore(), 0)
	m.rand = bytes.NewReader(nil)
	_, err := m.Issue(context.Background(), testSigner(t, keyOne).Address().String())
	assert.Error(t, err)
}

type countingObserver struct {
	mu     sync.Mutex
	events map[string]int
}

func (o *countingObserver) ObserveChallenge(op, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events[op+":"+outcome]++
}

func TestManagerObserver(t *testing.T) {
	m := NewManager(NewMemStore(), 0)
	obs := &countingObserver{events: map[string]int{}}
	m.SetObserver(obs)
	signer := testSigner(t, keyOne)
	ctx := context.Background()

	c, err := m.Issue(ctx, signer.Address().String())
	require.NoError(t, err)
	_, _ = m.Verify(ctx, signer.Address().String(), sign(t, signer, c.Nonce))
	_, _ = m.Verify(ctx, signer.Address().String(), sign(t, signer, c.Nonce))

	assert.Equal(t, 1, obs.events["issue:ok"])
	assert.Equal(t, 1, obs.events["verify:ok"])
	assert.Equal(t, 1, obs.events["verify:unknown"])
}
