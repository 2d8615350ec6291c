package auth

import "errors"

var (
	// ErrInvalidWallet indicates the wallet is not a well-formed address.
	ErrInvalidWallet = errors.New("auth: invalid wallet address")

	// ErrMalformedSignature indicates the signature is not 65 bytes of hex.
	ErrMalformedSignature = errors.New("auth: malformed signature")

	// ErrUnknownChallenge indicates no outstanding challenge for the wallet.
	ErrUnknownChallenge = errors.New("auth: no challenge issued for wallet")

	// ErrChallengeExpired indicates the challenge outlived its TTL.
	ErrChallengeExpired = errors.New("auth: challenge expired")

	// ErrInvalidSignature indicates the signature does not recover to the wallet.
	ErrInvalidSignature = errors.New("auth: signature does not match wallet")

	// ErrStore indicates the challenge store failed.
	ErrStore = errors.New("auth: challenge store failure")
)
