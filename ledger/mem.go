package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// MemLedger is an in-process Ledger with the registry's semantics: every
// record is uploaded by the configured account, only that account may grant,
// and the uploader can always download. Safe for concurrent use.
type MemLedger struct {
	mu      sync.RWMutex
	account wallet.Address
	records []FileRecord
	grants  map[uint64]map[wallet.Address]bool
	txs     map[string]TxState
	seq     uint64
}

var _ Ledger = (*MemLedger)(nil)

// NewMemLedger creates an empty ledger whose writes are signed by account.
func NewMemLedger(account wallet.Address) *MemLedger {
	return &MemLedger{
		account: account,
		grants:  make(map[uint64]map[wallet.Address]bool),
		txs:     make(map[string]TxState),
	}
}

// Account returns the signing account.
func (m *MemLedger) Account() wallet.Address { return m.account }

// RecordUpload appends a record.
func (m *MemLedger) RecordUpload(ctx context.Context, filename, hash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if filename == "" || hash == "" {
		return "", fmt.Errorf("%w: filename and hash are required", ErrInvalidParams)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, FileRecord{
		Index:       uint64(len(m.records)),
		Filename:    filename,
		ContentHash: hash,
		Uploader:    m.account,
	})
	return m.nextTx(TxConfirmed), nil
}

// TotalFiles returns the record count.
func (m *MemLedger) TotalFiles(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.records)), nil
}

// FileAt returns the record at index.
func (m *MemLedger) FileAt(ctx context.Context, index uint64) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index >= uint64(len(m.records)) {
		return FileRecord{}, fmt.Errorf("%w: index %d, total %d", ErrIndexOutOfRange, index, len(m.records))
	}
	return m.records[index], nil
}

// GrantPermission records a grant made by the signing account.
func (m *MemLedger) GrantPermission(ctx context.Context, index uint64, grantee wallet.Address) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if grantee.IsZero() {
		return "", fmt.Errorf("%w: grantee is the zero address", ErrInvalidParams)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= uint64(len(m.records)) {
		return "", fmt.Errorf("%w: index %d", ErrReverted, index)
	}
	if m.records[index].Uploader != m.account {
		return "", fmt.Errorf("%w: only the uploader can grant", ErrReverted)
	}
	if m.grants[index] == nil {
		m.grants[index] = make(map[wallet.Address]bool)
	}
	m.grants[index][grantee] = true
	return m.nextTx(TxConfirmed), nil
}

// CanDownload reports whether addr is the uploader or holds a grant.
func (m *MemLedger) CanDownload(ctx context.Context, index uint64, addr wallet.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index >= uint64(len(m.records)) {
		return false, nil
	}
	if m.records[index].Uploader == addr {
		return true, nil
	}
	return m.grants[index][addr], nil
}

// TxStatus returns the state of a transaction issued by this ledger.
func (m *MemLedger) TxStatus(ctx context.Context, txID string) (TxState, error) {
	if err := ctx.Err(); err != nil {
		return TxUnknown, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.txs[txID], nil
}

// SetTxStatus overrides the recorded state of txID.
func (m *MemLedger) SetTxStatus(txID string, state TxState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txID] = state
}

// nextTx mints a transaction id. Callers hold mu.
func (m *MemLedger) nextTx(state TxState) string {
	m.seq++
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], m.seq)
	id := "0x" + hex.EncodeToString(wallet.Keccak256(m.account[:], b[:]))
	m.txs[id] = state
	return id
}
