// Package ledger is the only path to the distributed ledger that holds the
// file index and the download permissions. Everything above this package sees
// the five registry operations of the Ledger interface and nothing of the
// node, the transaction format or the signing account.
package ledger

import (
	"context"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Ledger is the narrow read/write contract over the file registry.
type Ledger interface {
	// RecordUpload appends {filename, hash, uploader=signing account} and
	// returns the transaction id once the write is confirmed.
	RecordUpload(ctx context.Context, filename, hash string) (string, error)

	// TotalFiles returns the number of records on the ledger.
	TotalFiles(ctx context.Context) (uint64, error)

	// FileAt returns the record at index. ErrIndexOutOfRange when
	// index >= TotalFiles.
	FileAt(ctx context.Context, index uint64) (FileRecord, error)

	// GrantPermission allows grantee to download the file at index.
	GrantPermission(ctx context.Context, index uint64, grantee wallet.Address) (string, error)

	// CanDownload reports whether addr may download the file at index.
	CanDownload(ctx context.Context, index uint64, addr wallet.Address) (bool, error)

	// TxStatus reports what the ledger knows about a previously submitted write.
	TxStatus(ctx context.Context, txID string) (TxState, error)
}

// FileRecord is one immutable entry of the registry.
type FileRecord struct {
	Index       uint64         `json:"index"`
	Filename    string         `json:"filename"`
	ContentHash string         `json:"contentHash"`
	Uploader    wallet.Address `json:"uploader"`
}

// TxState is the observed state of a submitted transaction.
type TxState int

const (
	// TxUnknown means the node has no record of the transaction.
	TxUnknown TxState = iota
	// TxPending means the transaction is known but not yet mined.
	TxPending
	// TxConfirmed means the transaction was mined and succeeded.
	TxConfirmed
	// TxReverted means the transaction was mined and reverted.
	TxReverted
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxConfirmed:
		return "confirmed"
	case TxReverted:
		return "reverted"
	default:
		return "unknown"
	}
}
