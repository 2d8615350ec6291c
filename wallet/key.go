package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// SignatureSize is the length of an r||s||v recoverable signature.
const SignatureSize = 65

// PubKeyToAddress derives the account address of a secp256k1 public key:
// the last 20 bytes of Keccak-256 over the 64-byte uncompressed X||Y encoding.
func PubKeyToAddress(pub *ec.PublicKey) Address {
	var xy [64]byte
	pub.X.FillBytes(xy[:32])
	pub.Y.FillBytes(xy[32:])
	return AddressFromBytes(Keccak256(xy[:])[12:])
}

// PrivateKeyFromHex parses a 32-byte hex private key, with or without 0x prefix.
func PrivateKeyFromHex(s string) (*ec.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidPrivateKey, len(b))
	}
	priv, _ := ec.PrivateKeyFromBytes(b)
	return priv, nil
}

// Signer holds an externally supplied private key and its derived address.
// The key never leaves the process; callers only receive signatures.
type Signer struct {
	key     *ec.PrivateKey
	address Address
}

// NewSigner wraps priv in a Signer.
func NewSigner(priv *ec.PrivateKey) *Signer {
	return &Signer{key: priv, address: PubKeyToAddress(priv.PubKey())}
}

// SignerFromHex is shorthand for PrivateKeyFromHex followed by NewSigner.
func SignerFromHex(s string) (*Signer, error) {
	priv, err := PrivateKeyFromHex(s)
	if err != nil {
		return nil, err
	}
	return NewSigner(priv), nil
}

// Address returns the signer's account address.
func (s *Signer) Address() Address { return s.address }

// SignHash produces a recoverable signature over a 32-byte hash and returns
// it as r||s||recID with recID in {0, 1}. The signature is deterministic
// (RFC 6979) and low-S normalized.
func (s *Signer) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: hash must be 32 bytes, got %d", ErrSigningFailed, len(hash))
	}
	compact, err := ec.SignCompact(ec.S256(), s.key, hash, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	// Compact layout is header||r||s with header = 27 + recID for
	// uncompressed keys.
	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:65])
	sig[64] = compact[0] - 27
	return sig, nil
}

// RecoverHash recovers the signer's address from a 32-byte hash and an
// r||s||v signature. v may be 0/1 or 27/28.
func RecoverHash(hash, sig []byte) (Address, error) {
	if len(sig) != SignatureSize {
		return Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[64])
	}

	compact := make([]byte, SignatureSize)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := ec.RecoverCompact(compact, hash)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}
	return PubKeyToAddress(pub), nil
}
