package wallet

import "golang.org/x/crypto/sha3"

// Keccak256 returns the legacy Keccak-256 digest of the concatenated inputs.
// This is the pre-standard padding variant used for account addresses,
// signed-message envelopes and contract selectors, not FIPS-202 SHA3-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
