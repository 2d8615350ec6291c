package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed indicates the client could not reach the node. Transient.
	ErrConnectionFailed = errors.New("ledger: connection failed")

	// ErrInvalidResponse indicates the node returned a malformed or unexpected response.
	ErrInvalidResponse = errors.New("ledger: invalid response")

	// ErrRPC indicates the node answered with a JSON-RPC error object.
	ErrRPC = errors.New("ledger: rpc error")

	// ErrIndexOutOfRange indicates a file index at or beyond the total file count.
	ErrIndexOutOfRange = errors.New("ledger: file index out of range")

	// ErrReverted indicates the transaction or call was reverted by the contract.
	ErrReverted = errors.New("ledger: transaction reverted")

	// ErrUnconfirmed indicates a submitted write whose receipt was not observed
	// before the confirmation timeout. Its outcome is unknown.
	ErrUnconfirmed = errors.New("ledger: transaction unconfirmed")

	// ErrInsufficientFunds indicates the signing account cannot pay for gas.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrGasCapExceeded indicates the estimated gas exceeds the configured ceiling.
	ErrGasCapExceeded = errors.New("ledger: gas estimate exceeds cap")

	// ErrNonceRejected indicates the node kept rejecting the sequence number
	// even after a refresh.
	ErrNonceRejected = errors.New("ledger: nonce rejected")

	// ErrReadOnly indicates a write was attempted without a signing key.
	ErrReadOnly = errors.New("ledger: no signing key configured")

	// ErrInvalidParams indicates invalid arguments were provided.
	ErrInvalidParams = errors.New("ledger: invalid parameters")
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger: rpc error %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrRPC) match any RPCError.
func (e *RPCError) Is(target error) bool {
	return target == ErrRPC
}

// UnconfirmedError carries the hash of a write whose outcome is unknown.
// It matches ErrUnconfirmed with errors.Is.
type UnconfirmedError struct {
	TxID  string
	Cause error
}

func (e *UnconfirmedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ledger: transaction %s unconfirmed: %v", e.TxID, e.Cause)
	}
	return fmt.Sprintf("ledger: transaction %s unconfirmed", e.TxID)
}

func (e *UnconfirmedError) Is(target error) bool { return target == ErrUnconfirmed }

func (e *UnconfirmedError) Unwrap() error { return e.Cause }

// UnconfirmedTxID returns the transaction hash carried by an unconfirmed
// error, or "" when err is not one.
func UnconfirmedTxID(err error) string {
	var ue *UnconfirmedError
	if errors.As(err, &ue) {
		return ue.TxID
	}
	return ""
}
