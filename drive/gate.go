package drive

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashdriveorg/hashdrive-go/auth"
	"github.com/hashdriveorg/hashdrive-go/ledger"
	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Authorization is a granted access decision for one file.
type Authorization struct {
	Record ledger.FileRecord
	Wallet wallet.Address
}

// Gate decides whether a wallet may read a file. The ledger is the only
// source of truth for permissions.
type Gate struct {
	ledger ledger.Ledger
}

// NewGate creates a Gate over l.
func NewGate(l ledger.Ledger) *Gate {
	return &Gate{ledger: l}
}

// Authorize checks identity, existence and permission, in that order.
// Errors are *Rejection values wrapping ErrMissingIdentity,
// auth.ErrInvalidWallet, ErrNotFound, ErrUnauthorized or a ledger error.
func (g *Gate) Authorize(ctx context.Context, index uint64, w string) (Authorization, error) {
	if w == "" {
		return Authorization{}, &Rejection{Stage: StageReceived, Err: ErrMissingIdentity}
	}
	addr, err := auth.ParseWallet(w)
	if err != nil {
		return Authorization{}, &Rejection{Stage: StageReceived, Err: err}
	}

	rec, err := lookup(ctx, g.ledger, index)
	if err != nil {
		return Authorization{}, &Rejection{Stage: StageIdentityChecked, Err: err}
	}

	ok, err := g.ledger.CanDownload(ctx, index, addr)
	if err != nil {
		return Authorization{}, &Rejection{Stage: StageIdentityChecked, Err: err}
	}
	if !ok {
		return Authorization{}, &Rejection{
			Stage: StageIdentityChecked,
			Err:   fmt.Errorf("%w: index %d, wallet %s", ErrUnauthorized, index, addr),
		}
	}
	return Authorization{Record: rec, Wallet: addr}, nil
}

// lookup returns the record at index, mapping out-of-range to ErrNotFound.
func lookup(ctx context.Context, l ledger.Ledger, index uint64) (ledger.FileRecord, error) {
	total, err := l.TotalFiles(ctx)
	if err != nil {
		return ledger.FileRecord{}, err
	}
	if index >= total {
		return ledger.FileRecord{}, fmt.Errorf("%w: index %d, total %d", ErrNotFound, index, total)
	}
	rec, err := l.FileAt(ctx, index)
	if err != nil {
		if errors.Is(err, ledger.ErrIndexOutOfRange) {
			return ledger.FileRecord{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return ledger.FileRecord{}, err
	}
	return rec, nil
}
