package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// isTransient reports whether err may succeed on retry.
func isTransient(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// retry runs op with bounded exponential backoff. Only transient errors are
// retried; everything else is returned as is.
func (r *Registry) retry(ctx context.Context, method string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.RetryInitialInterval
	b.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.RetryAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn().Err(err).Str("method", method).Dur("retry_in", next).Msg("ledger call failed, retrying")
		}),
	)
	return err
}

// classify maps node error messages onto the package's semantic errors.
func classify(err error) error {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	msg := strings.ToLower(rpcErr.Message)
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case strings.Contains(msg, "revert"):
		return fmt.Errorf("%w: %w", ErrReverted, err)
	case isNonceMessage(msg):
		return fmt.Errorf("%w: %w", ErrNonceRejected, err)
	}
	return err
}

func isNonceMessage(msg string) bool {
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "invalid nonce") ||
		strings.Contains(msg, "replacement transaction underpriced")
}

// isAlreadyKnown reports whether the node already holds this exact transaction.
func isAlreadyKnown(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
