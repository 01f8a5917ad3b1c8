package pool

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/access"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/services/holdings"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// Config holds pool registry settings
type Config struct {
	LaunchLockTTL     time.Duration
	StatsCacheTTL     time.Duration
	SettlementTimeout time.Duration
}

// Service manages the pool lifecycle and its read models
type Service struct {
	ledger  *holdings.Ledger
	adapter settlement.Adapter
	auth    access.Authorizer
	locker  ledger.Locker
	cache   ledger.Cache
	events  ledger.EventPublisher
	cfg     Config
	log     *logger.Logger
}

// NewService creates a new pool service
func NewService(
	l *holdings.Ledger,
	adapter settlement.Adapter,
	auth access.Authorizer,
	locker ledger.Locker,
	cache ledger.Cache,
	events ledger.EventPublisher,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.LaunchLockTTL <= 0 {
		cfg.LaunchLockTTL = time.Minute
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = 30 * time.Second
	}
	if cfg.SettlementTimeout <= 0 {
		cfg.SettlementTimeout = 20 * time.Second
	}
	return &Service{
		ledger:  l,
		adapter: adapter,
		auth:    auth,
		locker:  locker,
		cache:   cache,
		events:  events,
		cfg:     cfg,
		log:     log.Component("pool_service"),
	}
}

// AssetInput describes an underlying asset
type AssetInput struct {
	Name      string          `json:"name"`
	Valuation decimal.Decimal `json:"valuation"`
}

// CreateInput holds the terms of a new pool
type CreateInput struct {
	Name              string          `json:"name"`
	Symbol            string          `json:"symbol"`
	Description       string          `json:"description"`
	TokenSupply       decimal.Decimal `json:"token_supply"`
	TokenPrice        decimal.Decimal `json:"token_price"`
	MinimumInvestment decimal.Decimal `json:"minimum_investment"`
	Assets            []AssetInput    `json:"assets"`
}

// Validate checks the pool terms
func (in CreateInput) Validate() error {
	merr := &errors.MultiError{}
	if strings.TrimSpace(in.Name) == "" {
		merr.Add(errors.NewValidationError("name", "required", in.Name))
	}
	if strings.TrimSpace(in.Symbol) == "" {
		merr.Add(errors.NewValidationError("symbol", "required", in.Symbol))
	}
	if !in.TokenSupply.IsPositive() || !in.TokenSupply.Equal(in.TokenSupply.Floor()) {
		merr.Add(errors.NewValidationError("token_supply", "must be a positive whole number", in.TokenSupply))
	}
	if !in.TokenPrice.IsPositive() {
		merr.Add(errors.NewValidationError("token_price", "must be positive", in.TokenPrice))
	}
	if in.MinimumInvestment.IsNegative() {
		merr.Add(errors.NewValidationError("minimum_investment", "must not be negative", in.MinimumInvestment))
	}
	for _, a := range in.Assets {
		if err := a.validate(); err != nil {
			merr.Add(err)
		}
	}
	return merr.ToError()
}

func (a AssetInput) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.NewValidationError("asset.name", "required", a.Name)
	}
	if a.Valuation.IsNegative() {
		return errors.NewValidationError("asset.valuation", "must not be negative", a.Valuation)
	}
	return nil
}

// Create registers a DRAFT pool
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (*pool.Pool, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &pool.Pool{
		ID:                        uuid.New(),
		Name:                      strings.TrimSpace(in.Name),
		Symbol:                    strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Description:               in.Description,
		Status:                    pool.PoolDraft,
		TokenSupply:               in.TokenSupply,
		TokenPrice:                in.TokenPrice,
		MinimumInvestment:         in.MinimumInvestment,
		TotalInvested:             decimal.Zero,
		TotalTokensIssued:         decimal.Zero,
		TotalDividendsDistributed: decimal.Zero,
		Assets:                    make(pool.UnderlyingAssets, 0, len(in.Assets)),
		CreatedBy:                 actor,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	for _, a := range in.Assets {
		p.Assets = append(p.Assets, pool.UnderlyingAsset{ID: uuid.New(), Name: a.Name, Valuation: a.Valuation})
	}

	err := s.ledger.Atomic(ctx, "create_pool", func(ctx context.Context, repos ledger.Repositories) error {
		return repos.Pools.Create(ctx, p)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	s.log.Infow("Pool created", "pool_id", p.ID, "symbol", p.Symbol, "actor", actor)
	return p, nil
}

// Launch binds the pool's external token and activates it. The pool needs at
// least one validated asset. When binding fails the pool stays DRAFT.
func (s *Service) Launch(ctx context.Context, actor string, poolID uuid.UUID) (*pool.Pool, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}

	unlock, err := s.locker.TryLock(ctx, "pool:launch:"+poolID.String(), s.cfg.LaunchLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warnw("Failed to release launch lock", "pool_id", poolID, "error", err)
		}
	}()

	p, err := s.ledger.Repos().Pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != pool.PoolDraft {
		return nil, errors.Wrapf(errors.ErrInvalidState, "pool %s is %s", p.ID, p.Status)
	}
	if !p.HasValidatedAsset() {
		return nil, errors.Wrapf(errors.ErrInvalidState, "pool %s has no validated underlying asset", p.ID)
	}

	bindCtx, cancel := context.WithTimeout(ctx, s.cfg.SettlementTimeout)
	defer cancel()
	tokenRef, err := s.adapter.BindNewToken(bindCtx, settlement.TokenParams{
		PoolID: p.ID,
		Name:   p.Name,
		Symbol: p.Symbol,
		Supply: p.TokenSupply,
	})
	if err != nil {
		s.log.Warnw("Token binding failed, pool stays draft", "pool_id", p.ID, "error", err)
		return nil, errors.Wrap(err, "bind token")
	}

	var launched *pool.Pool
	err = s.ledger.Atomic(ctx, "launch_pool", func(ctx context.Context, repos ledger.Repositories) error {
		cur, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if err := cur.TransitionTo(pool.PoolActive); err != nil {
			return err
		}
		now := time.Now().UTC()
		cur.ExternalTokenRef = tokenRef
		cur.LaunchedAt = &now
		cur.UpdatedAt = now
		if err := repos.Pools.Update(ctx, cur); err != nil {
			return err
		}
		launched = cur
		return nil
	})
	if err != nil {
		s.log.Errorw("Token bound but pool activation failed",
			"pool_id", poolID,
			"token_ref", tokenRef,
			"error", err,
		)
		return nil, errors.Wrap(err, "activate pool")
	}

	s.log.Infow("Pool launched", "pool_id", launched.ID, "token_ref", tokenRef, "actor", actor)
	s.publish(ctx, ledger.EventPoolLaunched, launched, actor, tokenRef)
	s.invalidate(ctx, launched.ID)
	return launched, nil
}

// Close stops new investment. Fails while a distribution is pending or executing.
func (s *Service) Close(ctx context.Context, actor string, poolID uuid.UUID) (*pool.Pool, error) {
	return s.transition(ctx, actor, poolID, pool.PoolClosed, true)
}

// Suspend halts investment and transfers. Fails while a distribution is pending or executing.
func (s *Service) Suspend(ctx context.Context, actor string, poolID uuid.UUID) (*pool.Pool, error) {
	return s.transition(ctx, actor, poolID, pool.PoolSuspended, true)
}

// Resume reactivates a suspended pool
func (s *Service) Resume(ctx context.Context, actor string, poolID uuid.UUID) (*pool.Pool, error) {
	p, err := s.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != pool.PoolSuspended {
		return nil, errors.Wrapf(errors.ErrInvalidState, "pool %s is %s, not suspended", p.ID, p.Status)
	}
	return s.transition(ctx, actor, poolID, pool.PoolActive, false)
}

// Mature moves the pool to its terminal state
func (s *Service) Mature(ctx context.Context, actor string, poolID uuid.UUID) (*pool.Pool, error) {
	return s.transition(ctx, actor, poolID, pool.PoolMatured, true)
}

func (s *Service) transition(ctx context.Context, actor string, poolID uuid.UUID, next pool.PoolStatus, requireIdle bool) (*pool.Pool, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}

	var out *pool.Pool
	err := s.ledger.Atomic(ctx, "pool_"+string(next), func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if requireIdle {
			n, err := repos.Distributions.CountInFlight(ctx, poolID)
			if err != nil {
				return errors.Wrap(err, "count in-flight distributions")
			}
			if n > 0 {
				return errors.Wrapf(errors.ErrInvalidState, "pool %s has %d distribution(s) in flight", poolID, n)
			}
		}
		if err := p.TransitionTo(next); err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		if err := repos.Pools.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Pool status changed", "pool_id", poolID, "status", next, "actor", actor)
	s.invalidate(ctx, poolID)
	return out, nil
}

// UpdatePrice sets the token price of an ACTIVE pool and revalues its holdings
func (s *Service) UpdatePrice(ctx context.Context, actor string, poolID uuid.UUID, price decimal.Decimal) (*pool.Pool, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, errors.NewValidationError("token_price", "must be positive", price)
	}

	var (
		out     *pool.Pool
		updated int
	)
	err := s.ledger.Atomic(ctx, "update_price", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if p.Status != pool.PoolActive {
			return errors.Wrapf(errors.ErrInvalidState, "pool %s is %s", p.ID, p.Status)
		}
		now := time.Now().UTC()
		p.TokenPrice = price
		p.UpdatedAt = now
		if err := repos.Pools.Update(ctx, p); err != nil {
			return err
		}
		if updated, err = s.ledger.Revalue(ctx, repos, p, now); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Pool price updated", "pool_id", poolID, "price", price, "holdings_revalued", updated, "actor", actor)
	s.invalidate(ctx, poolID)
	return out, nil
}

// AddAsset attaches an unvalidated underlying asset to a DRAFT or ACTIVE pool
func (s *Service) AddAsset(ctx context.Context, actor string, poolID uuid.UUID, in AssetInput) (*pool.UnderlyingAsset, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	asset := pool.UnderlyingAsset{ID: uuid.New(), Name: strings.TrimSpace(in.Name), Valuation: in.Valuation}
	err := s.ledger.Atomic(ctx, "add_asset", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if p.Status != pool.PoolDraft && p.Status != pool.PoolActive {
			return errors.Wrapf(errors.ErrInvalidState, "pool %s is %s", p.ID, p.Status)
		}
		p.Assets = append(p.Assets, asset)
		p.UpdatedAt = time.Now().UTC()
		return repos.Pools.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, poolID)
	return &asset, nil
}

// ValidateAsset marks an underlying asset as validated
func (s *Service) ValidateAsset(ctx context.Context, actor string, poolID, assetID uuid.UUID) (*pool.Pool, error) {
	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}

	var out *pool.Pool
	err := s.ledger.Atomic(ctx, "validate_asset", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		found := false
		for i := range p.Assets {
			if p.Assets[i].ID == assetID {
				p.Assets[i].Validated = true
				found = true
			}
		}
		if !found {
			return errors.Wrapf(errors.ErrNotFound, "asset %s in pool %s", assetID, poolID)
		}
		p.UpdatedAt = time.Now().UTC()
		if err := repos.Pools.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Underlying asset validated", "pool_id", poolID, "asset_id", assetID, "actor", actor)
	s.invalidate(ctx, poolID)
	return out, nil
}

// Get returns one pool
func (s *Service) Get(ctx context.Context, poolID uuid.UUID) (*pool.Pool, error) {
	return s.ledger.Repos().Pools.GetByID(ctx, poolID)
}

// List returns pools, optionally filtered by status
func (s *Service) List(ctx context.Context, status pool.PoolStatus) ([]*pool.Pool, error) {
	if status != "" && !status.Valid() {
		return nil, errors.NewValidationError("status", "unknown pool status", status)
	}
	return s.ledger.Repos().Pools.List(ctx, status)
}

func (s *Service) invalidate(ctx context.Context, poolID uuid.UUID) {
	if err := InvalidateStats(ctx, s.cache, poolID); err != nil {
		s.log.Warnw("Failed to invalidate pool stats", "pool_id", poolID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, t ledger.EventType, p *pool.Pool, actor, detail string) {
	e := ledger.NewEvent(t, p.ID, "", p.ID, p.TokenSupply)
	e.Actor = actor
	e.Detail = detail
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warnw("Failed to publish pool event", "pool_id", p.ID, "type", t, "error", err)
	}
}
