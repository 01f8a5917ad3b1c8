package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/metrics"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
	"rwaledger/pkg/retry"
)

// Alerter notifies operators about settlement legs that need attention
type Alerter interface {
	SettlementFailed(ctx context.Context, s *settlement.Settlement) error
	ReconciliationSummary(ctx context.Context, retried, confirmed, failed int) error
}

// Config bounds adapter calls and recording retries. A pending leg younger
// than StaleAfter is assumed to be in flight with its first submitter.
type Config struct {
	Timeout         time.Duration
	MaxAttempts     int
	ConflictRetries int
	StaleAfter      time.Duration
}

// Dispatcher submits committed settlement legs to the adapter and records the outcome.
// The ledger change a leg settles is never rolled back.
type Dispatcher struct {
	tx      ledger.Transactor
	adapter settlement.Adapter
	locker  ledger.Locker
	events  ledger.EventPublisher
	alerter Alerter
	cfg     Config
	retry   *retry.Policy
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher. alerter may be nil.
func NewDispatcher(
	tx ledger.Transactor,
	adapter settlement.Adapter,
	locker ledger.Locker,
	events ledger.EventPublisher,
	alerter Alerter,
	cfg Config,
	log *logger.Logger,
) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	return &Dispatcher{
		tx:      tx,
		adapter: adapter,
		locker:  locker,
		events:  events,
		alerter: alerter,
		cfg:     cfg,
		retry:   retry.New(retry.Config{MaxRetries: cfg.ConflictRetries, Retryable: retry.IsConflict}),
		log:     log.Component("settlement_dispatcher"),
	}
}

// Dispatch submits s and records CONFIRMED or FAILED on the row and on every
// transfer record linked to it. The call is bounded by the configured timeout
// and survives cancellation of ctx so a disconnecting caller still gets recorded.
// A leg another caller is already submitting is returned as it stands.
func (d *Dispatcher) Dispatch(ctx context.Context, s *settlement.Settlement) settlement.Outcome {
	out, _, err := d.dispatch(ctx, s)
	if err != nil {
		d.log.Warnw("Settlement leg not submitted",
			"settlement_id", s.ID,
			"status", s.Status,
			"error", err,
		)
		return s.Outcome()
	}
	return out
}

// dispatch claims the leg under its lock, then submits it unless the stored
// row moved past the copy the caller holds. attempted reports whether the
// adapter was called.
func (d *Dispatcher) dispatch(ctx context.Context, s *settlement.Settlement) (out settlement.Outcome, attempted bool, err error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Timeout)
	defer cancel()

	unlock, err := d.locker.TryLock(callCtx, legLockKey(s.ID), d.cfg.Timeout+30*time.Second)
	if err != nil {
		if errors.Is(err, errors.ErrLockHeld) {
			return settlement.Outcome{}, false, errors.Wrapf(err, "settlement %s in flight", s.ID)
		}
		return settlement.Outcome{}, false, errors.Wrapf(err, "claim settlement %s", s.ID)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			d.log.Warnw("Failed to release settlement lock", "settlement_id", s.ID, "error", err)
		}
	}()

	stored, err := d.tx.Repos().Settlements.GetByID(callCtx, s.ID)
	if err != nil {
		return settlement.Outcome{}, false, err
	}
	if stored.Status == settlement.StatusConfirmed || stored.Attempts != s.Attempts {
		*s = *stored
		return s.Outcome(), false, nil
	}

	start := time.Now()
	txRef, err := d.submit(callCtx, s)
	latency := time.Since(start)

	now := time.Now().UTC()
	if err != nil {
		s.MarkFailed(failureReason(err), now)
	} else {
		s.MarkConfirmed(txRef, now)
	}
	metrics.RecordSettlement(string(s.Kind), string(s.Status), latency)

	if recErr := d.record(callCtx, s); recErr != nil {
		d.log.Errorw("Failed to record settlement outcome",
			"settlement_id", s.ID,
			"status", s.Status,
			"tx_ref", s.TxRef,
			"error", recErr,
		)
	}

	d.log.Step(callCtx, "Settlement attempt",
		"settlement_id", s.ID.String(),
		"kind", string(s.Kind),
		"status", string(s.Status),
		"attempts", s.Attempts,
	)
	d.afterAttempt(callCtx, s)
	return s.Outcome(), true, nil
}

// Retry resubmits one leg unless it already confirmed. A pending leg that has
// never been attempted and is younger than StaleAfter belongs to its first
// submitter and is refused with errors.ErrLockHeld, as is a leg being
// submitted right now.
func (d *Dispatcher) Retry(ctx context.Context, id uuid.UUID) (settlement.Outcome, error) {
	s, err := d.tx.Repos().Settlements.GetByID(ctx, id)
	if err != nil {
		return settlement.Outcome{}, err
	}
	if s.Status == settlement.StatusConfirmed {
		return s.Outcome(), nil
	}
	if d.inFlight(s, time.Now().UTC()) {
		return settlement.Outcome{}, errors.Wrapf(errors.ErrLockHeld, "settlement %s pending since %s", id, s.CreatedAt.Format(time.RFC3339))
	}
	out, _, err := d.dispatch(ctx, s)
	return out, err
}

func (d *Dispatcher) inFlight(s *settlement.Settlement, now time.Time) bool {
	return s.Status == settlement.StatusPending &&
		s.LastAttemptAt == nil &&
		s.CreatedAt.After(now.Add(-d.cfg.StaleAfter))
}

func legLockKey(id uuid.UUID) string {
	return "settlement:" + id.String()
}

// ReconcileResult summarizes one reconciliation pass
type ReconcileResult struct {
	Retried   int
	Confirmed int
	Failed    int
	Skipped   int
}

// Reconcile resubmits failed legs and pending legs untouched since staleBefore,
// up to limit rows, skipping legs that reached the attempt ceiling. Legs
// claimed or settled by another caller during the pass count as Skipped.
func (d *Dispatcher) Reconcile(ctx context.Context, staleBefore time.Time, limit int) (ReconcileResult, error) {
	var res ReconcileResult

	legs, err := d.tx.Repos().Settlements.ListRetryable(ctx, staleBefore, d.cfg.MaxAttempts, limit)
	if err != nil {
		return res, errors.Wrap(err, "list retryable settlements")
	}

	for _, s := range legs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		out, attempted, err := d.dispatch(ctx, s)
		if err != nil || !attempted {
			res.Skipped++
			if err != nil && !errors.Is(err, errors.ErrLockHeld) {
				d.log.Warnw("Reconcile skipped settlement leg", "settlement_id", s.ID, "error", err)
			}
			continue
		}
		res.Retried++
		if out.Settled() {
			res.Confirmed++
		} else {
			res.Failed++
		}
	}

	if res.Retried > 0 || res.Skipped > 0 {
		d.log.Infow("Settlement reconciliation pass",
			"retried", res.Retried,
			"confirmed", res.Confirmed,
			"failed", res.Failed,
			"skipped", res.Skipped,
		)
	}
	if d.alerter != nil {
		if err := d.alerter.ReconciliationSummary(ctx, res.Retried, res.Confirmed, res.Failed); err != nil {
			d.log.Warnw("Failed to send reconciliation summary", "error", err)
		}
	}
	return res, nil
}

// Get returns one settlement leg
func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	return d.tx.Repos().Settlements.GetByID(ctx, id)
}

// List returns legs in status, or all legs when status is empty
func (d *Dispatcher) List(ctx context.Context, status settlement.Status, limit int) ([]*settlement.Settlement, error) {
	if status != "" && !status.Valid() {
		return nil, errors.NewValidationError("status", "unknown settlement status", status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return d.tx.Repos().Settlements.ListByStatus(ctx, status, limit)
}

// ListByReference returns the legs settling one transfer record or distribution
func (d *Dispatcher) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]*settlement.Settlement, error) {
	return d.tx.Repos().Settlements.ListByReference(ctx, referenceID)
}

func (d *Dispatcher) submit(ctx context.Context, s *settlement.Settlement) (string, error) {
	switch s.Kind {
	case settlement.KindTokenTransfer:
		return d.adapter.SubmitTokenTransfer(ctx, s.TokenRef, s.From, s.To, s.Amount)
	case settlement.KindCurrencyTransfer:
		return d.adapter.SubmitCurrencyTransfer(ctx, s.To, s.Amount)
	default:
		return "", settlement.NewFailure(string(s.Kind), "unknown settlement kind", nil)
	}
}

// record writes the attempt onto the stored row. The stored attempt counter and
// version win; a leg another process confirmed in the meantime is left alone.
func (d *Dispatcher) record(ctx context.Context, attempt *settlement.Settlement) error {
	return d.retry.Do(ctx, func() error {
		err := d.tx.WithinTx(ctx, func(ctx context.Context, repos ledger.Repositories) error {
			stored, err := repos.Settlements.GetByID(ctx, attempt.ID)
			if err != nil {
				return err
			}
			if stored.Status == settlement.StatusConfirmed {
				*attempt = *stored
				return nil
			}

			at := *attempt.LastAttemptAt
			if attempt.Status == settlement.StatusConfirmed {
				stored.MarkConfirmed(attempt.TxRef, at)
			} else {
				stored.MarkFailed(attempt.FailureReason, at)
			}
			if err := repos.Settlements.Update(ctx, stored); err != nil {
				return err
			}
			if err := repos.Holdings.RecordTransferSettlement(ctx, stored.ID, stored.Status, stored.TxRef); err != nil {
				return errors.Wrap(err, "record transfer settlement")
			}
			*attempt = *stored
			return nil
		})
		if retry.IsConflict(err) {
			metrics.RecordVersionConflict("record_settlement")
		}
		return err
	})
}

func (d *Dispatcher) afterAttempt(ctx context.Context, s *settlement.Settlement) {
	eventType := ledger.EventSettlementConfirmed
	if s.Status != settlement.StatusConfirmed {
		eventType = ledger.EventSettlementFailed

		d.log.Warnw("Settlement leg failed",
			"settlement_id", s.ID,
			"kind", s.Kind,
			"purpose", s.Purpose,
			"holder_id", s.HolderID,
			"attempts", s.Attempts,
			"reason", s.FailureReason,
		)
		if d.alerter != nil {
			if err := d.alerter.SettlementFailed(ctx, s); err != nil {
				d.log.Warnw("Failed to send settlement alert", "settlement_id", s.ID, "error", err)
			}
		}
		if s.Attempts >= d.cfg.MaxAttempts {
			d.log.Errorw("Settlement leg exhausted retries",
				"settlement_id", s.ID,
				"attempts", s.Attempts,
				"error", errors.Wrap(errors.ErrSettlementFailed, s.FailureReason),
			)
		}
	}

	e := ledger.NewEvent(eventType, s.PoolID, s.HolderID, s.ReferenceID, s.Amount)
	e.Detail = s.TxRef
	if s.Status != settlement.StatusConfirmed {
		e.Detail = s.FailureReason
	}
	if err := d.events.Publish(ctx, e); err != nil {
		d.log.Warnw("Failed to publish settlement event", "settlement_id", s.ID, "error", err)
	}
}

func failureReason(err error) string {
	var f *settlement.Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return err.Error()
}
