package ledger

import (
	"context"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Mock is a test double for Ledger.
// All function fields must be set before the corresponding method is called.
type Mock struct {
	RecordUploadFn    func(ctx context.Context, filename, hash string) (string, error)
	TotalFilesFn      func(ctx context.Context) (uint64, error)
	FileAtFn          func(ctx context.Context, index uint64) (FileRecord, error)
	GrantPermissionFn func(ctx context.Context, index uint64, grantee wallet.Address) (string, error)
	CanDownloadFn     func(ctx context.Context, index uint64, addr wallet.Address) (bool, error)
	TxStatusFn        func(ctx context.Context, txID string) (TxState, error)
}

var _ Ledger = (*Mock)(nil)

func (m *Mock) RecordUpload(ctx context.Context, filename, hash string) (string, error) {
	return m.RecordUploadFn(ctx, filename, hash)
}
func (m *Mock) TotalFiles(ctx context.Context) (uint64, error) {
	return m.TotalFilesFn(ctx)
}
func (m *Mock) FileAt(ctx context.Context, index uint64) (FileRecord, error) {
	return m.FileAtFn(ctx, index)
}
func (m *Mock) GrantPermission(ctx context.Context, index uint64, grantee wallet.Address) (string, error) {
	return m.GrantPermissionFn(ctx, index, grantee)
}
func (m *Mock) CanDownload(ctx context.Context, index uint64, addr wallet.Address) (bool, error) {
	return m.CanDownloadFn(ctx, index, addr)
}
func (m *Mock) TxStatus(ctx context.Context, txID string) (TxState, error) {
	return m.TxStatusFn(ctx, txID)
}
