package wallet

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// messagePrefix is the EIP-191 version 0x45 envelope prefix applied by
// personal_sign before hashing.
const messagePrefix = "\x19Ethereum Signed Message:\n"

// MessageHash wraps msg in the signed-message envelope and returns its
// Keccak-256 digest.
func MessageHash(msg []byte) []byte {
	return Keccak256([]byte(messagePrefix+strconv.Itoa(len(msg))), msg)
}

// SignMessage signs msg the way a browser wallet's personal_sign does and
// returns the 65-byte signature with v in {27, 28}.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	sig, err := s.SignHash(MessageHash(msg))
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverMessage returns the address that produced sig over msg.
func RecoverMessage(msg, sig []byte) (Address, error) {
	return RecoverHash(MessageHash(msg), sig)
}

// DecodeSignature parses a 0x-prefixed (or bare) hex signature.
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(b))
	}
	return b, nil
}

// EncodeSignature renders sig as 0x-prefixed hex.
func EncodeSignature(sig []byte) string {
	return "0x" + hex.EncodeToString(sig)
}
