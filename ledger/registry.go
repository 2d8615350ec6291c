package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Caller is the JSON-RPC transport used by Registry. RPCClient implements it.
type Caller interface {
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

// Observer receives ledger call and write outcomes. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveCall(method string, elapsed time.Duration, err error)
	ObserveWrite(op string, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, time.Duration, error) {}
func (nopObserver) ObserveWrite(string, string)              {}

// Registry implements Ledger against a FileRegistry contract on an EVM node.
type Registry struct {
	rpc    Caller
	opts   Options
	reads  *semaphore.Weighted
	log    zerolog.Logger
	obs    Observer
	tracer trace.Tracer

	chainMu sync.Mutex
	chainID uint64

	// mu serializes nonce acquisition, signing and submission.
	mu         sync.Mutex
	nonce      uint64
	nonceValid bool
}

var _ Ledger = (*Registry)(nil)

// NewRegistry creates a Registry talking to the node behind rpc.
func NewRegistry(rpc Caller, opts Options) (*Registry, error) {
	if rpc == nil {
		return nil, fmt.Errorf("%w: rpc caller is nil", ErrInvalidParams)
	}
	if opts.Contract.IsZero() {
		return nil, fmt.Errorf("%w: contract address is required", ErrInvalidParams)
	}
	opts = opts.withDefaults()
	return &Registry{
		rpc:     rpc,
		opts:    opts,
		reads:   semaphore.NewWeighted(opts.MaxConcurrentReads),
		log:     zerolog.Nop(),
		obs:     nopObserver{},
		tracer:  otel.Tracer("github.com/hashdriveorg/hashdrive-go/ledger"),
		chainID: opts.ChainID,
	}, nil
}

// SetLogger sets the logger used for retries and write diagnostics.
func (r *Registry) SetLogger(l zerolog.Logger) { r.log = l }

// SetObserver sets the metrics observer.
func (r *Registry) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.obs = o
}

// Account returns the signing account, or the zero address when read-only.
func (r *Registry) Account() wallet.Address {
	if r.opts.Signer == nil {
		return wallet.Address{}
	}
	return r.opts.Signer.Address()
}

// --- reads ---

// TotalFiles returns the number of records in the registry.
func (r *Registry) TotalFiles(ctx context.Context) (uint64, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return r.totalFiles(ctx)
}

func (r *Registry) totalFiles(ctx context.Context) (uint64, error) {
	out, err := r.ethCall(ctx, methodGetTotalFiles)
	if err != nil {
		return 0, err
	}
	return unpackUint64(methodGetTotalFiles, out)
}

// FileAt returns the record at index.
func (r *Registry) FileAt(ctx context.Context, index uint64) (FileRecord, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return FileRecord{}, err
	}
	defer release()

	total, err := r.totalFiles(ctx)
	if err != nil {
		return FileRecord{}, err
	}
	if index >= total {
		return FileRecord{}, fmt.Errorf("%w: index %d, total %d", ErrIndexOutOfRange, index, total)
	}

	out, err := r.ethCall(ctx, methodGetFile, indexArg(index))
	if err != nil {
		return FileRecord{}, err
	}
	name, hash, uploader, err := unpackFile(out)
	if err != nil {
		return FileRecord{}, err
	}
	return FileRecord{Index: index, Filename: name, ContentHash: hash, Uploader: uploader}, nil
}

// CanDownload reports whether addr may download the file at index.
func (r *Registry) CanDownload(ctx context.Context, index uint64, addr wallet.Address) (bool, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	out, err := r.ethCall(ctx, methodCanDownload, indexArg(index), addressArg(addr))
	if err != nil {
		return false, err
	}
	return unpackBool(methodCanDownload, out)
}

// TxStatus reports the state of a submitted transaction.
func (r *Registry) TxStatus(ctx context.Context, txID string) (TxState, error) {
	if !isTxHash(txID) {
		return TxUnknown, fmt.Errorf("%w: malformed transaction hash %q", ErrInvalidParams, txID)
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return TxUnknown, err
	}
	defer release()

	var rec *receipt
	if err := r.call(ctx, "eth_getTransactionReceipt", []interface{}{txID}, &rec); err != nil {
		return TxUnknown, err
	}
	if rec != nil {
		if rec.succeeded() {
			return TxConfirmed, nil
		}
		return TxReverted, nil
	}

	var pending *struct {
		Hash string `json:"hash"`
	}
	if err := r.call(ctx, "eth_getTransactionByHash", []interface{}{txID}, &pending); err != nil {
		return TxUnknown, err
	}
	if pending != nil {
		return TxPending, nil
	}
	return TxUnknown, nil
}

func (r *Registry) acquire(ctx context.Context) (func(), error) {
	if err := r.reads.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for read slot: %w", ErrConnectionFailed, err)
	}
	return func() { r.reads.Release(1) }, nil
}

// ethCall performs a read-only contract call at the latest block.
func (r *Registry) ethCall(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := packCall(method, args...)
	if err != nil {
		return nil, err
	}
	msg := map[string]string{
		"to":   r.opts.Contract.String(),
		"data": hexutil.Encode(data),
	}
	var result string
	if err := r.call(ctx, "eth_call", []interface{}{msg, "latest"}, &result); err != nil {
		return nil, classify(err)
	}
	return decodeHexData(result)
}

// call is a single observed RPC with transient retries.
func (r *Registry) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return r.retry(ctx, method, func() error {
		return r.invoke(ctx, method, params, result)
	})
}

// invoke is a single observed RPC without retries.
func (r *Registry) invoke(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	err := r.rpc.Call(ctx, method, params, result)
	r.obs.ObserveCall(method, time.Since(start), err)
	return err
}

// --- writes ---

// RecordUpload appends a file record signed by the configured account.
func (r *Registry) RecordUpload(ctx context.Context, filename, hash string) (string, error) {
	if filename == "" || hash == "" {
		return "", fmt.Errorf("%w: filename and hash are required", ErrInvalidParams)
	}
	data, err := packCall(methodUploadFile, filename, hash)
	if err != nil {
		return "", err
	}
	return r.transact(ctx, "record_upload", data,
		attribute.String("hashdrive.filename", filename))
}

// GrantPermission allows grantee to download the file at index. Only the
// record's uploader may grant; the contract reverts otherwise.
func (r *Registry) GrantPermission(ctx context.Context, index uint64, grantee wallet.Address) (string, error) {
	if grantee.IsZero() {
		return "", fmt.Errorf("%w: grantee is the zero address", ErrInvalidParams)
	}
	data, err := packCall(methodGrant, indexArg(index), addressArg(grantee))
	if err != nil {
		return "", err
	}
	return r.transact(ctx, "grant_permission", data,
		attribute.Int64("hashdrive.index", int64(index)),
		attribute.String("hashdrive.grantee", grantee.String()))
}

// transact submits data to the contract and waits for its receipt.
func (r *Registry) transact(ctx context.Context, op string, data []byte, attrs ...attribute.KeyValue) (txID string, err error) {
	ctx, span := r.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
	defer func() {
		if txID != "" {
			span.SetAttributes(attribute.String("hashdrive.tx_id", txID))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		r.obs.ObserveWrite(op, writeOutcome(err))
		span.End()
	}()

	if r.opts.Signer == nil {
		return "", ErrReadOnly
	}

	sent, err := r.submit(ctx, data)
	if err != nil {
		return UnconfirmedTxID(err), err
	}
	r.log.Debug().Str("op", op).Str("tx_id", sent.Hash).Msg("transaction submitted")

	if err := r.waitReceipt(ctx, sent.Hash); err != nil {
		return sent.Hash, err
	}
	return sent.Hash, nil
}

// submit estimates fees, signs and sends a transaction. It holds the writer
// lock for the whole sequence so that nonces are handed out in order.
func (r *Registry) submit(ctx context.Context, data []byte) (signedTx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chainID, err := r.chain(ctx)
	if err != nil {
		return signedTx{}, err
	}
	gas, err := r.gasLimit(ctx, data)
	if err != nil {
		return signedTx{}, err
	}
	price, err := r.gasPrice(ctx)
	if err != nil {
		return signedTx{}, err
	}

	to := common.Address(r.opts.Contract)

	// One refresh after a nonce rejection, then give up.
	for attempt := 0; attempt < 2; attempt++ {
		if !r.nonceValid {
			n, err := r.pendingNonce(ctx)
			if err != nil {
				return signedTx{}, err
			}
			r.nonce, r.nonceValid = n, true
		}

		tx := &types.LegacyTx{
			Nonce:    r.nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Data:     data,
		}
		signed, err := signTx(tx, chainID, r.opts.Signer)
		if err != nil {
			return signedTx{}, err
		}

		var hash string
		err = r.call(ctx, "eth_sendRawTransaction", []interface{}{signed.RawHex()}, &hash)
		switch {
		case err == nil || isAlreadyKnown(err):
			r.nonce++
			return signed, nil
		case isTransient(err) || ctx.Err() != nil:
			// The node may or may not have the transaction.
			r.nonceValid = false
			return signedTx{}, &UnconfirmedError{TxID: signed.Hash, Cause: err}
		}

		err = classify(err)
		if errors.Is(err, ErrNonceRejected) && r.knownTx(ctx, signed.Hash) {
			// A retried send of a transaction the node had already taken.
			r.log.Info().Str("tx_id", signed.Hash).Uint64("nonce", r.nonce).Msg("nonce rejected for a transaction the node already holds")
			r.nonce++
			return signed, nil
		}
		if errors.Is(err, ErrNonceRejected) {
			r.log.Warn().Err(err).Uint64("nonce", r.nonce).Msg("nonce rejected, refreshing")
			r.nonceValid = false
			continue
		}
		return signedTx{}, err
	}
	return signedTx{}, fmt.Errorf("%w: account %s", ErrNonceRejected, r.opts.Signer.Address())
}

// knownTx reports whether the node holds txID, mined or pending. Lookup
// failures count as unknown.
func (r *Registry) knownTx(ctx context.Context, txID string) bool {
	var rec *receipt
	if err := r.call(ctx, "eth_getTransactionReceipt", []interface{}{txID}, &rec); err == nil && rec != nil {
		return true
	}
	var tx *struct {
		Hash string `json:"hash"`
	}
	err := r.call(ctx, "eth_getTransactionByHash", []interface{}{txID}, &tx)
	return err == nil && tx != nil
}

func (r *Registry) chain(ctx context.Context) (uint64, error) {
	r.chainMu.Lock()
	defer r.chainMu.Unlock()
	if r.chainID != 0 {
		return r.chainID, nil
	}
	var result string
	if err := r.call(ctx, "eth_chainId", nil, &result); err != nil {
		return 0, err
	}
	id, err := parseHexUint64(result)
	if err != nil {
		return 0, err
	}
	r.chainID = id
	return id, nil
}

func (r *Registry) pendingNonce(ctx context.Context) (uint64, error) {
	var result string
	params := []interface{}{r.opts.Signer.Address().String(), "pending"}
	if err := r.call(ctx, "eth_getTransactionCount", params, &result); err != nil {
		return 0, err
	}
	return parseHexUint64(result)
}

// gasLimit returns min(estimate * 1.2, cap). An estimate above the cap is
// rejected outright.
func (r *Registry) gasLimit(ctx context.Context, data []byte) (uint64, error) {
	msg := map[string]string{
		"from": r.opts.Signer.Address().String(),
		"to":   r.opts.Contract.String(),
		"data": hexutil.Encode(data),
	}
	var result string
	if err := r.call(ctx, "eth_estimateGas", []interface{}{msg}, &result); err != nil {
		return 0, classify(err)
	}
	estimate, err := parseHexUint64(result)
	if err != nil {
		return 0, err
	}
	if estimate > r.opts.GasLimitCap {
		return 0, fmt.Errorf("%w: estimate %d, cap %d", ErrGasCapExceeded, estimate, r.opts.GasLimitCap)
	}
	limit := estimate + estimate/5
	if limit > r.opts.GasLimitCap {
		limit = r.opts.GasLimitCap
	}
	return limit, nil
}

func (r *Registry) gasPrice(ctx context.Context) (*big.Int, error) {
	var result string
	if err := r.call(ctx, "eth_gasPrice", nil, &result); err != nil {
		return nil, err
	}
	price, err := parseHexBig(result)
	if err != nil {
		return nil, err
	}
	if r.opts.GasPriceCap != nil && price.Cmp(r.opts.GasPriceCap) > 0 {
		price = new(big.Int).Set(r.opts.GasPriceCap)
	}
	return price, nil
}

// receipt is the subset of a transaction receipt the registry needs.
type receipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

func (rc *receipt) succeeded() bool {
	v, err := parseHexUint64(rc.Status)
	return err == nil && v == 1
}

// waitReceipt polls for the receipt of txID until ConfirmTimeout.
func (r *Registry) waitReceipt(ctx context.Context, txID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		var rec *receipt
		err := r.invoke(ctx, "eth_getTransactionReceipt", []interface{}{txID}, &rec)
		switch {
		case err != nil:
			lastErr = err
		case rec != nil && rec.succeeded():
			return nil
		case rec != nil:
			return fmt.Errorf("%w: transaction %s", ErrReverted, txID)
		}

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return &UnconfirmedError{TxID: txID, Cause: lastErr}
		case <-ticker.C:
		}
	}
}

// writeOutcome is the metric label for a write result.
func writeOutcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrUnconfirmed):
		return "unconfirmed"
	case errors.Is(err, ErrReverted):
		return "reverted"
	case errors.Is(err, ErrReadOnly):
		return "read_only"
	default:
		return "failed"
	}
}

// --- hex helpers ---

func parseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("%w: empty quantity", ErrInvalidResponse)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q: %w", ErrInvalidResponse, s, err)
	}
	return v, nil
}

func parseHexBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: quantity %q", ErrInvalidResponse, s)
	}
	return v, nil
}

func decodeHexData(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrInvalidResponse, err)
	}
	return b, nil
}

func isTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
