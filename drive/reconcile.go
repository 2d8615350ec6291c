package drive

import (
	"context"
	"errors"
	"time"

	"github.com/hashdriveorg/hashdrive-go/ledger"
	"github.com/hashdriveorg/hashdrive-go/storage"
)

// ReconcileReport summarizes one pass over the orphan journal.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Removed   int `json:"removed"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Missing   int `json:"missing"`
	Corrupt   int `json:"corrupt"`
}

// Reconcile resolves journaled orphans against the ledger. Confirmed
// records keep their file; reverted ones, and unknown ones older than
// OrphanGrace, have their file removed. Orphans without a transaction are
// failed rollbacks and are removed right away. A confirmed file that is
// gone or no longer matches its journaled digest is reported, not removed.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	orphans, err := s.journal.List()
	if err != nil {
		return report, err
	}

	now := s.now()
	for _, o := range orphans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		log := s.log.With().Str("filename", o.Filename).Str("tx_id", o.TxID).Logger()

		state := ledger.TxUnknown
		if o.TxID != "" {
			state, err = s.ledger.TxStatus(ctx, o.TxID)
			if err != nil {
				report.Failed++
				log.Warn().Err(err).Msg("orphan status lookup failed")
				continue
			}
		}

		switch {
		case state == ledger.TxConfirmed:
			if err := s.journal.Remove(o.Filename); err != nil {
				report.Failed++
				continue
			}
			report.Confirmed++
			log.Info().Msg("orphan confirmed on ledger")
			s.checkConfirmed(o, &report)

		case state == ledger.TxPending,
			state == ledger.TxUnknown && o.TxID != "" && now.Sub(o.RecordedAt) < s.cfg.OrphanGrace:
			report.Pending++

		default:
			if err := s.store.Remove(o.Filename); err != nil && !errors.Is(err, storage.ErrNotFound) {
				report.Failed++
				log.Error().Err(err).Msg("orphan file removal failed")
				continue
			}
			if err := s.journal.Remove(o.Filename); err != nil {
				report.Failed++
				continue
			}
			report.Removed++
			log.Warn().Str("state", state.String()).Msg("orphan file removed")
		}
	}
	return report, nil
}

// checkConfirmed makes sure the file behind a confirmed record is still
// served as recorded.
func (s *Service) checkConfirmed(o storage.Orphan, report *ReconcileReport) {
	log := s.log.With().Str("filename", o.Filename).Str("tx_id", o.TxID).Logger()

	has, err := s.store.Has(o.Filename)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("confirmed orphan lookup failed")
		return
	case !has:
		report.Missing++
		log.Error().Msg("confirmed record has no stored file")
		return
	case o.Digest == "":
		return
	}

	ok, err := s.store.Verify(o.Filename, o.Digest)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("confirmed orphan digest check failed")
	case !ok:
		report.Corrupt++
		log.Error().Str("content_hash", o.Digest).Msg("stored file does not match recorded digest")
	}
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.Reconcile(ctx)
			if err != nil {
				s.log.Warn().Err(err).Msg("reconcile failed")
				continue
			}
			if report.Checked > 0 {
				s.log.Info().
					Int("checked", report.Checked).
					Int("confirmed", report.Confirmed).
					Int("removed", report.Removed).
					Int("pending", report.Pending).
					Int("missing", report.Missing).
					Int("corrupt", report.Corrupt).
					Msg("reconcile pass complete")
			}
		}
	}
}
