package dividend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"rwaledger/internal/domain/access"
	"rwaledger/internal/domain/distribution"
	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/metrics"
	"rwaledger/internal/services/holdings"
	poolsvc "rwaledger/internal/services/pool"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// Settler submits a committed settlement leg
type Settler interface {
	Dispatch(ctx context.Context, s *settlement.Settlement) settlement.Outcome
}

// Config holds distribution engine settings
type Config struct {
	// CurrencyScale is the number of decimal places payouts are rounded down to
	CurrencyScale int32
	// ExecuteParallelism bounds concurrent per-recipient accruals
	ExecuteParallelism int
	// ExecuteLockTTL bounds how long one execution may hold the distribution lock
	ExecuteLockTTL time.Duration
}

// Service creates, executes and settles pro-rata dividend distributions
type Service struct {
	ledger  *holdings.Ledger
	settler Settler
	auth    access.Authorizer
	locker  ledger.Locker
	cache   ledger.Cache
	events  ledger.EventPublisher
	cfg     Config
	log     *logger.Logger
}

// NewService creates a new dividend service
func NewService(
	l *holdings.Ledger,
	settler Settler,
	auth access.Authorizer,
	locker ledger.Locker,
	cache ledger.Cache,
	events ledger.EventPublisher,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.ExecuteParallelism <= 0 {
		cfg.ExecuteParallelism = 8
	}
	if cfg.ExecuteLockTTL <= 0 {
		cfg.ExecuteLockTTL = 10 * time.Minute
	}
	return &Service{
		ledger:  l,
		settler: settler,
		auth:    auth,
		locker:  locker,
		cache:   cache,
		events:  events,
		cfg:     cfg,
		log:     log.Component("dividend_service"),
	}
}

// CreateInput describes a distribution to schedule
type CreateInput struct {
	PoolID           uuid.UUID       `json:"pool_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	RecordDate       time.Time       `json:"record_date"`
	DistributionDate time.Time       `json:"distribution_date"`
}

// Create snapshots the holdings eligible at the record date and schedules a
// PENDING distribution with every recipient's amount frozen.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (d *distribution.Distribution, err error) {
	start := time.Now()
	defer func() { metrics.RecordOperation("create_distribution", errors.CodeOf(err), time.Since(start)) }()

	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}
	if in.RecordDate.IsZero() {
		return nil, errors.NewValidationError("record_date", "required", in.RecordDate)
	}
	if in.DistributionDate.IsZero() {
		in.DistributionDate = in.RecordDate
	}
	if in.DistributionDate.Before(in.RecordDate) {
		return nil, errors.NewValidationError("distribution_date", "must not precede the record date", in.DistributionDate)
	}

	err = s.ledger.Atomic(ctx, "create_distribution", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, in.PoolID)
		if err != nil {
			return err
		}
		if p.Status != pool.PoolActive {
			return errors.Wrapf(errors.ErrInvalidState, "pool %s is %s", p.ID, p.Status)
		}

		hs, err := repos.Holdings.ListByPool(ctx, p.ID)
		if err != nil {
			return errors.Wrap(err, "list holdings")
		}
		entitlements := make([]distribution.Entitlement, 0, len(hs))
		for _, h := range hs {
			if h.EligibleAt(in.RecordDate) {
				entitlements = append(entitlements, distribution.Entitlement{
					HolderID:  h.HolderID,
					HoldingID: h.ID,
					Tokens:    h.TotalTokens,
				})
			}
		}

		sched, err := distribution.ComputeSchedule(in.TotalAmount, entitlements, s.cfg.CurrencyScale)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		d = distribution.New(p.ID, in.TotalAmount, in.RecordDate, in.DistributionDate, sched, actor, now)
		if err := repos.Distributions.Create(ctx, d); err != nil {
			return err
		}
		// Bumping the pool version serializes this with a concurrent close,
		// suspend or mature, which checks for in-flight distributions.
		p.UpdatedAt = now
		return repos.Pools.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Distribution created",
		"distribution_id", d.ID,
		"pool_id", d.PoolID,
		"total", d.TotalAmount,
		"recipients", d.RecipientCount,
		"remainder", d.RoundingRemainder,
		"actor", actor,
	)
	s.publish(ctx, ledger.EventDistributionCreated, d.PoolID, "", d.ID, d.TotalAmount, actor)
	s.invalidate(ctx, d.PoolID)
	return d, nil
}

// ExecutionResult reports what one execution run did
type ExecutionResult struct {
	Distribution *distribution.Distribution `json:"distribution"`
	Accrued      int                        `json:"accrued"`
	Settlements  []settlement.Outcome       `json:"settlements"`
	Failed       int                        `json:"failed_settlements"`
}

// Execute moves a due PENDING distribution to DISTRIBUTING with a single
// compare-and-set, accrues every recipient and pays them out, then marks it
// DISTRIBUTED. Only one of several concurrent calls gets past the transition.
func (s *Service) Execute(ctx context.Context, actor string, id uuid.UUID) (res *ExecutionResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordOperation("execute_distribution", errors.CodeOf(err), time.Since(start)) }()

	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.ledger.Atomic(ctx, "start_distribution", func(ctx context.Context, repos ledger.Repositories) error {
		d, err := repos.Distributions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if d.Status == distribution.StatusPending && !d.Due(now) {
			return errors.Wrapf(errors.ErrInvalidState, "distribution %s is not due until %s", d.ID, d.DistributionDate.Format(time.RFC3339))
		}
		if err := d.TransitionTo(distribution.StatusDistributing, now); err != nil {
			return err
		}
		if err := repos.Distributions.Update(ctx, d); err != nil {
			return err
		}
		return repos.Distributions.AppendAudit(ctx, d.Record(distribution.ActionExecuting, actor, "", now))
	})
	if err != nil {
		return nil, err
	}

	return s.run(ctx, actor, id)
}

// RetryExecution resumes a distribution left DISTRIBUTING by an interrupted
// execution. Recipients already accrued are skipped.
func (s *Service) RetryExecution(ctx context.Context, actor string, id uuid.UUID) (*ExecutionResult, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.ledger.Repos().Distributions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != distribution.StatusDistributing {
		return nil, errors.Wrapf(errors.ErrInvalidState, "distribution %s is %s", d.ID, d.Status)
	}
	return s.run(ctx, actor, id)
}

func (s *Service) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	unlock, err := s.locker.TryLock(ctx, "distribution:execute:"+id.String(), s.cfg.ExecuteLockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warnw("Failed to release distribution lock", "distribution_id", id, "error", err)
		}
	}, nil
}

// run is the idempotent body of an execution. Accrual errors leave the
// distribution DISTRIBUTING for RetryExecution; settlement failures do not.
func (s *Service) run(ctx context.Context, actor string, id uuid.UUID) (*ExecutionResult, error) {
	d, err := s.ledger.Repos().Distributions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		accrued  int
		outcomes []settlement.Outcome
		failures []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ExecuteParallelism)
	for _, r := range d.Recipients {
		if r.Accrued {
			continue
		}
		g.Go(func() error {
			leg, applied, err := s.accrue(gctx, d.PoolID, r)
			if err != nil {
				return errors.Wrapf(err, "accrue %s", r.HolderID)
			}
			if !applied {
				return nil
			}

			mu.Lock()
			accrued++
			mu.Unlock()
			if leg == nil {
				return nil
			}

			out := s.settler.Dispatch(gctx, leg)
			mu.Lock()
			outcomes = append(outcomes, out)
			if !out.Settled() {
				failures = append(failures, fmt.Sprintf("%s: %s", r.HolderID, out.Warning))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Errorw("Distribution execution interrupted, retry required",
			"distribution_id", id,
			"accrued", accrued,
			"error", err,
		)
		return nil, err
	}

	var final *distribution.Distribution
	err = s.ledger.Atomic(ctx, "finish_distribution", func(ctx context.Context, repos ledger.Repositories) error {
		cur, err := repos.Distributions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status == distribution.StatusDistributed {
			final = cur
			return nil
		}
		now := time.Now().UTC()
		if err := cur.TransitionTo(distribution.StatusDistributed, now); err != nil {
			return err
		}
		cur.MarkAccrued()
		if err := repos.Distributions.Update(ctx, cur); err != nil {
			return err
		}

		p, err := repos.Pools.GetByID(ctx, cur.PoolID)
		if err != nil {
			return err
		}
		p.RecordDividends(cur.PaidTotal())
		p.UpdatedAt = now
		if err := repos.Pools.Update(ctx, p); err != nil {
			return err
		}

		entries := []distribution.AuditEntry{
			cur.Record(distribution.ActionAccrued, actor, fmt.Sprintf("%d recipients", len(cur.Recipients)), now),
		}
		for _, f := range failures {
			entries = append(entries, cur.Record(distribution.ActionSettlementFailed, actor, f, now))
		}
		entries = append(entries, cur.Record(distribution.ActionDistributed, actor, cur.PaidTotal().String(), now))
		for _, e := range entries {
			if err := repos.Distributions.AppendAudit(ctx, e); err != nil {
				return err
			}
		}
		final = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Distribution executed",
		"distribution_id", id,
		"pool_id", final.PoolID,
		"accrued", accrued,
		"failed_settlements", len(failures),
		"actor", actor,
	)
	s.publish(ctx, ledger.EventDistributionExecuted, final.PoolID, "", final.ID, final.PaidTotal(), actor)
	s.invalidate(ctx, final.PoolID)

	return &ExecutionResult{
		Distribution: final,
		Accrued:      accrued,
		Settlements:  outcomes,
		Failed:       len(failures),
	}, nil
}

// accrue credits one recipient in its own transaction. The payout leg is
// created only by the transaction that performs the accrual.
func (s *Service) accrue(ctx context.Context, poolID uuid.UUID, r distribution.Recipient) (*settlement.Settlement, bool, error) {
	var (
		leg     *settlement.Settlement
		applied bool
	)
	err := s.ledger.Atomic(ctx, "accrue_dividend", func(ctx context.Context, repos ledger.Repositories) error {
		leg, applied = nil, false

		var legID *uuid.UUID
		candidate := settlement.NewCurrencyTransfer(settlement.PurposeDividend, poolID, r.HolderID, r.DividendAmount, r.DistributionID)
		if r.DividendAmount.IsPositive() {
			legID = &candidate.ID
		}

		ok, err := s.ledger.AccrueDividend(ctx, repos, r, legID, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := repos.Distributions.MarkRecipientAccrued(ctx, r.DistributionID, r.HolderID); err != nil {
			return errors.Wrap(err, "mark recipient accrued")
		}
		if !ok {
			return nil
		}
		applied = true
		if legID == nil {
			return nil
		}
		if err := repos.Settlements.Create(ctx, candidate); err != nil {
			return errors.Wrap(err, "create settlement")
		}
		leg = candidate
		return nil
	})
	return leg, applied, err
}

// ClaimResult is returned by Claim
type ClaimResult struct {
	DistributionID uuid.UUID        `json:"distribution_id"`
	HolderID       string           `json:"holder_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Holding        *holding.Holding `json:"holding"`
	ClaimedAt      time.Time        `json:"claimed_at"`
}

// Claim marks holderID's dividend from a DISTRIBUTED distribution as claimed.
// The recipient row is flipped conditionally so two concurrent claims cannot
// both succeed.
func (s *Service) Claim(ctx context.Context, id uuid.UUID, holderID string) (res *ClaimResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordOperation("claim_dividend", errors.CodeOf(err), time.Since(start)) }()

	var poolID uuid.UUID
	err = s.ledger.Atomic(ctx, "claim_dividend", func(ctx context.Context, repos ledger.Repositories) error {
		d, err := repos.Distributions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if d.Status != distribution.StatusDistributed {
			return errors.Wrapf(errors.ErrInvalidState, "distribution %s is %s", d.ID, d.Status)
		}
		r, ok := d.Recipient(holderID)
		if !ok {
			return errors.Wrapf(errors.ErrRecipientNotFound, "holder %s in distribution %s", holderID, d.ID)
		}
		if r.Claimed {
			return errors.Wrapf(errors.ErrAlreadyClaimed, "holder %s in distribution %s", holderID, d.ID)
		}

		now := time.Now().UTC()
		if err := repos.Distributions.MarkRecipientClaimed(ctx, d.ID, holderID, now); err != nil {
			return err
		}
		d.RecordClaim(r.DividendAmount, now)
		if err := repos.Distributions.Update(ctx, d); err != nil {
			return err
		}
		h, err := s.ledger.ClaimDividend(ctx, repos, *r, now)
		if err != nil {
			return err
		}
		if err := repos.Distributions.AppendAudit(ctx, d.Record(distribution.ActionClaimed, holderID, r.DividendAmount.String(), now)); err != nil {
			return err
		}

		poolID = d.PoolID
		res = &ClaimResult{
			DistributionID: d.ID,
			HolderID:       holderID,
			Amount:         r.DividendAmount,
			Holding:        h,
			ClaimedAt:      now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Dividend claimed", "distribution_id", id, "holder_id", holderID, "amount", res.Amount)
	metrics.DividendsClaimed.WithLabelValues(poolID.String()).Add(res.Amount.InexactFloat64())
	s.publish(ctx, ledger.EventDividendClaimed, poolID, holderID, id, res.Amount, holderID)
	s.invalidate(ctx, poolID)
	return res, nil
}

// Cancel cancels a PENDING distribution
func (s *Service) Cancel(ctx context.Context, actor string, id uuid.UUID) (*distribution.Distribution, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}

	var d *distribution.Distribution
	err := s.ledger.Atomic(ctx, "cancel_distribution", func(ctx context.Context, repos ledger.Repositories) error {
		cur, err := repos.Distributions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := cur.TransitionTo(distribution.StatusCancelled, now); err != nil {
			return err
		}
		if err := repos.Distributions.Update(ctx, cur); err != nil {
			return err
		}
		if err := repos.Distributions.AppendAudit(ctx, cur.Record(distribution.ActionCancelled, actor, "", now)); err != nil {
			return err
		}
		d = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Distribution cancelled", "distribution_id", id, "actor", actor)
	s.publish(ctx, ledger.EventDistributionCancelled, d.PoolID, "", d.ID, d.TotalAmount, actor)
	s.invalidate(ctx, d.PoolID)
	return d, nil
}

// Get returns a distribution with its recipients and audit trail
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*distribution.Distribution, error) {
	return s.ledger.Repos().Distributions.GetByID(ctx, id)
}

// ListByPool returns a pool's distributions
func (s *Service) ListByPool(ctx context.Context, poolID uuid.UUID) ([]*distribution.Distribution, error) {
	if _, err := s.ledger.Repos().Pools.GetByID(ctx, poolID); err != nil {
		return nil, err
	}
	return s.ledger.Repos().Distributions.ListByPool(ctx, poolID)
}

func (s *Service) publish(ctx context.Context, t ledger.EventType, poolID uuid.UUID, holderID string, refID uuid.UUID, amount decimal.Decimal, actor string) {
	e := ledger.NewEvent(t, poolID, holderID, refID, amount)
	e.Actor = actor
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warnw("Failed to publish distribution event", "type", t, "distribution_id", refID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, poolID uuid.UUID) {
	if err := poolsvc.InvalidateStats(ctx, s.cache, poolID); err != nil {
		s.log.Warnw("Failed to invalidate pool stats", "pool_id", poolID, "error", err)
	}
}
