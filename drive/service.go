// Package drive coordinates local storage with the ledger: uploads are
// persisted, hashed and recorded; downloads are gated on ledger permissions
// and re-verified against the recorded digest before any byte is served.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hashdriveorg/hashdrive-go/auth"
	"github.com/hashdriveorg/hashdrive-go/integrity"
	"github.com/hashdriveorg/hashdrive-go/ledger"
	"github.com/hashdriveorg/hashdrive-go/storage"
	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Journal records stored files whose ledger state is unknown.
// storage.OrphanJournal implements it.
type Journal interface {
	Add(o storage.Orphan) error
	Remove(filename string) error
	List() ([]storage.Orphan, error)
}

// Observer receives pipeline outcomes for metrics.
type Observer interface {
	ObserveUpload(outcome string, size int64)
	ObserveDownload(outcome string)
	ObserveOrphan(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveUpload(string, int64) {}
func (nopObserver) ObserveDownload(string)      {}
func (nopObserver) ObserveOrphan(string)        {}

// Config tunes a Service.
type Config struct {
	// OrphanGrace is how long an orphan with no known transaction is kept
	// before its file is removed.
	OrphanGrace time.Duration

	// ListConcurrency bounds concurrent FileAt calls in List.
	ListConcurrency int

	// Owners may grant access to any file in addition to its uploader.
	Owners []wallet.Address
}

// DefaultConfig returns the defaults used by the service.
func DefaultConfig() Config {
	return Config{
		OrphanGrace:     time.Hour,
		ListConcurrency: 8,
	}
}

// Service is the business logic layer shared by the HTTP API and the CLI.
type Service struct {
	store   storage.Store
	ledger  ledger.Ledger
	journal Journal
	gate    *Gate
	cfg     Config

	log    zerolog.Logger
	obs    Observer
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a Service.
func New(store storage.Store, l ledger.Ledger, journal Journal, cfg Config) *Service {
	d := DefaultConfig()
	if cfg.OrphanGrace <= 0 {
		cfg.OrphanGrace = d.OrphanGrace
	}
	if cfg.ListConcurrency <= 0 {
		cfg.ListConcurrency = d.ListConcurrency
	}
	return &Service{
		store:   store,
		ledger:  l,
		journal: journal,
		gate:    NewGate(l),
		cfg:     cfg,
		log:     zerolog.Nop(),
		obs:     nopObserver{},
		tracer:  otel.Tracer("github.com/hashdriveorg/hashdrive-go/drive"),
		now:     time.Now,
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(l zerolog.Logger) { s.log = l }

// SetObserver sets the metrics observer.
func (s *Service) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	s.obs = o
}

// Gate returns the access gate.
func (s *Service) Gate() *Gate { return s.gate }

// --- upload ---

// UploadResult is the outcome of a recorded upload.
type UploadResult struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"contentHash"`
	TxID        string `json:"txId"`
	Size        int64  `json:"size"`
}

// Upload persists body under filename, then records its digest on the
// ledger. The record is only written once the bytes are durable. If the
// ledger write fails definitively the stored file is removed; if its
// outcome is unknown the file is kept and journaled as an orphan.
func (s *Service) Upload(ctx context.Context, filename string, body io.Reader) (res UploadResult, err error) {
	ctx, span := s.tracer.Start(ctx, "drive.upload", trace.WithAttributes(attribute.String("hashdrive.filename", filename)))
	defer func() {
		s.obs.ObserveUpload(uploadOutcome(err), res.Size)
		endSpan(span, err)
	}()

	stored, err := s.store.Create(ctx, filename, body)
	if err != nil {
		return UploadResult{}, err
	}
	res = UploadResult{Filename: stored.Name, ContentHash: stored.Digest, Size: stored.Size}

	// A client disconnect must not abandon a ledger write half way; the
	// ledger client bounds the call with its own timeouts.
	txID, err := s.ledger.RecordUpload(context.WithoutCancel(ctx), stored.Name, stored.Digest)
	if err != nil {
		s.recordFailed(stored, err)
		return res, err
	}
	res.TxID = txID

	s.log.Info().
		Str("filename", stored.Name).
		Str("content_hash", stored.Digest).
		Int64("size", stored.Size).
		Str("tx_id", txID).
		Msg("upload recorded")
	return res, nil
}

// recordFailed restores storage/ledger consistency after a failed record
// or journals the divergence when it cannot.
func (s *Service) recordFailed(stored storage.Stored, cause error) {
	if errors.Is(cause, ledger.ErrUnconfirmed) {
		s.orphan(storage.Orphan{
			Filename: stored.Name,
			Digest:   stored.Digest,
			TxID:     ledger.UnconfirmedTxID(cause),
			Reason:   "unconfirmed",
		}, cause)
		return
	}

	if err := s.store.Remove(stored.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.orphan(storage.Orphan{
			Filename: stored.Name,
			Digest:   stored.Digest,
			Reason:   "rollback_failed",
		}, fmt.Errorf("%w (rollback: %w)", cause, err))
		return
	}
	s.log.Warn().Err(cause).Str("filename", stored.Name).Msg("ledger record failed, upload rolled back")
}

func (s *Service) orphan(o storage.Orphan, cause error) {
	o.RecordedAt = s.now()
	s.obs.ObserveOrphan(o.Reason)
	ev := s.log.Error().Err(cause).
		Str("event", "ledger_divergence").
		Str("filename", o.Filename).
		Str("content_hash", o.Digest).
		Str("tx_id", o.TxID).
		Str("reason", o.Reason)
	if err := s.journal.Add(o); err != nil {
		ev = ev.AnErr("journal_err", err)
	}
	ev.Msg("stored file has no confirmed ledger record")
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return "recorded"
	case errors.Is(err, storage.ErrExists):
		return "conflict"
	case errors.Is(err, storage.ErrInvalidName), errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrAborted):
		return "rejected"
	case errors.Is(err, ledger.ErrUnconfirmed):
		return "unconfirmed"
	case errors.Is(err, storage.ErrIOFailure):
		return "storage_error"
	default:
		return "ledger_error"
	}
}

// --- download ---

// Download is an authorized, integrity-checked file ready to stream.
// The caller must Close it.
type Download struct {
	Record ledger.FileRecord
	Size   int64
	io.ReadSeekCloser
}

// Download runs the download pipeline for index on behalf of w. The digest
// is computed over the same open file that is returned, positioned at 0.
func (s *Service) Download(ctx context.Context, index uint64, w string) (dl *Download, err error) {
	ctx, span := s.tracer.Start(ctx, "drive.download", trace.WithAttributes(attribute.Int64("hashdrive.index", int64(index))))
	defer func() {
		s.obs.ObserveDownload(downloadOutcome(err))
		if err != nil {
			s.log.Debug().Err(err).Uint64("index", index).Str("stage", RejectedAt(err).String()).Msg("download rejected")
		}
		endSpan(span, err)
	}()

	authz, err := s.gate.Authorize(ctx, index, w)
	if err != nil {
		return nil, err
	}
	rec := authz.Record

	f, size, err := s.store.Open(rec.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, &Rejection{Stage: StagePermissionChecked, Err: err}
	}

	digest, _, err := integrity.DigestReader(f)
	if err != nil {
		_ = f.Close()
		return nil, &Rejection{Stage: StagePermissionChecked, Err: fmt.Errorf("%w: %w", storage.ErrIOFailure, err)}
	}
	if !integrity.Equal(digest, rec.ContentHash) {
		_ = f.Close()
		s.log.Error().
			Str("event", "integrity_violation").
			Uint64("index", index).
			Str("filename", rec.Filename).
			Msg("stored content does not match ledger digest")
		return nil, &Rejection{Stage: StagePermissionChecked, Err: ErrIntegrityViolation}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, &Rejection{Stage: StageIntegrityChecked, Err: fmt.Errorf("%w: %w", storage.ErrIOFailure, err)}
	}
	return &Download{Record: rec, Size: size, ReadSeekCloser: f}, nil
}

func downloadOutcome(err error) string {
	switch {
	case err == nil:
		return "served"
	case errors.Is(err, ErrMissingIdentity), errors.Is(err, auth.ErrInvalidWallet):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity"
	case errors.Is(err, storage.ErrIOFailure):
		return "storage_error"
	default:
		return "ledger_error"
	}
}

// --- queries ---

// Total returns the number of files on the ledger.
func (s *Service) Total(ctx context.Context) (uint64, error) {
	return s.ledger.TotalFiles(ctx)
}

// List returns every record in index order. Records are fetched
// concurrently with at most ListConcurrency calls in flight.
func (s *Service) List(ctx context.Context) ([]ledger.FileRecord, error) {
	total, err := s.ledger.TotalFiles(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]ledger.FileRecord, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ListConcurrency)
	for i := uint64(0); i < total; i++ {
		g.Go(func() error {
			rec, err := s.ledger.FileAt(gctx, i)
			if err != nil {
				return fmt.Errorf("drive: file %d: %w", i, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// --- grants ---

// Grant allows grantee to download the file at index.
func (s *Service) Grant(ctx context.Context, index uint64, grantee string) (string, error) {
	addr, err := auth.ParseWallet(grantee)
	if err != nil {
		return "", err
	}
	if _, err := lookup(ctx, s.ledger, index); err != nil {
		return "", err
	}

	ctx, span := s.tracer.Start(ctx, "drive.grant", trace.WithAttributes(
		attribute.Int64("hashdrive.index", int64(index)),
		attribute.String("hashdrive.grantee", addr.String())))
	txID, err := s.ledger.GrantPermission(context.WithoutCancel(ctx), index, addr)
	endSpan(span, err)
	if err != nil {
		return "", err
	}
	s.log.Info().Uint64("index", index).Str("grantee", addr.String()).Str("tx_id", txID).Msg("permission granted")
	return txID, nil
}

// CanGrant reports whether caller may grant access to the file at index:
// the record's uploader and the configured owners may.
func (s *Service) CanGrant(ctx context.Context, index uint64, caller wallet.Address) (bool, error) {
	rec, err := lookup(ctx, s.ledger, index)
	if err != nil {
		return false, err
	}
	if rec.Uploader == caller {
		return true, nil
	}
	for _, o := range s.cfg.Owners {
		if o == caller {
			return true, nil
		}
	}
	return false, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
