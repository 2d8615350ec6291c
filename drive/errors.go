package drive

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentity indicates a download request without a wallet.
	ErrMissingIdentity = errors.New("drive: wallet identity required")

	// ErrNotFound indicates the index is not on the ledger or its bytes are
	// not in storage.
	ErrNotFound = errors.New("drive: file not found")

	// ErrUnauthorized indicates the wallet holds no download permission.
	ErrUnauthorized = errors.New("drive: wallet not authorized for file")

	// ErrIntegrityViolation indicates the stored bytes no longer match the
	// digest recorded on the ledger.
	ErrIntegrityViolation = errors.New("drive: stored content does not match ledger digest")
)

// Rejection is a refused request. Stage is the last stage it reached.
// It unwraps to the underlying reason.
type Rejection struct {
	Stage Stage
	Err   error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("drive: rejected at %s: %v", r.Stage, r.Err)
}

func (r *Rejection) Unwrap() error { return r.Err }

// RejectedAt returns the stage carried by err, or StageReceived when err is
// not a Rejection.
func RejectedAt(err error) Stage {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Stage
	}
	return StageReceived
}
