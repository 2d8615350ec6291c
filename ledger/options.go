package ledger

import (
	"math/big"
	"time"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Options configures a Registry.
type Options struct {
	// Contract is the address of the deployed FileRegistry.
	Contract wallet.Address

	// ChainID is used for transaction signing. Zero means ask the node.
	ChainID uint64

	// Signer is the account that pays for and signs writes. Nil makes the
	// registry read-only.
	Signer *wallet.Signer

	// ConfirmTimeout bounds the wait for a write's receipt.
	ConfirmTimeout time.Duration

	// PollInterval is the delay between receipt polls.
	PollInterval time.Duration

	// GasLimitCap is the ceiling on a write's gas limit.
	GasLimitCap uint64

	// GasPriceCap is the ceiling on the gas price in wei. Nil disables the cap.
	GasPriceCap *big.Int

	// RetryAttempts is the total number of tries for a transient RPC failure.
	RetryAttempts uint

	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration

	// MaxConcurrentReads bounds in-flight read operations.
	MaxConcurrentReads int64
}

// DefaultOptions returns Options with the defaults used by the service.
// Contract and Signer must still be set by the caller.
func DefaultOptions() Options {
	return Options{
		ConfirmTimeout:       2 * time.Minute,
		PollInterval:         time.Second,
		GasLimitCap:          2_000_000,
		GasPriceCap:          new(big.Int).Mul(big.NewInt(200), big.NewInt(1_000_000_000)),
		RetryAttempts:        4,
		RetryInitialInterval: 200 * time.Millisecond,
		MaxConcurrentReads:   16,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = d.ConfirmTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.GasLimitCap == 0 {
		o.GasLimitCap = d.GasLimitCap
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = d.RetryAttempts
	}
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = d.RetryInitialInterval
	}
	if o.MaxConcurrentReads <= 0 {
		o.MaxConcurrentReads = d.MaxConcurrentReads
	}
	return o
}
