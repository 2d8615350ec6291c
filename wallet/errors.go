package wallet

import "errors"

var (
	// ErrInvalidAddress indicates the address is not 0x-prefixed 40-digit hex.
	ErrInvalidAddress = errors.New("wallet: invalid address")

	// ErrInvalidSignature indicates the signature is not 65 bytes or has a bad recovery id.
	ErrInvalidSignature = errors.New("wallet: invalid signature")

	// ErrRecoveryFailed indicates no public key could be recovered from the signature.
	ErrRecoveryFailed = errors.New("wallet: public key recovery failed")

	// ErrInvalidPrivateKey indicates the private key is not 32 bytes of hex.
	ErrInvalidPrivateKey = errors.New("wallet: invalid private key")

	// ErrSigningFailed indicates the signing primitive returned an error.
	ErrSigningFailed = errors.New("wallet: signing failed")

	// ErrInvalidNetwork indicates unknown chain name with no custom config.
	ErrInvalidNetwork = errors.New("wallet: invalid network name")
)
