package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"rwaledger/internal/domain/pool"
	"rwaledger/pkg/errors"
)

// Compile-time check
var _ pool.Repository = (*PoolRepository)(nil)

// PoolRepository implements pool.Repository using sqlx
type PoolRepository struct {
	db DBTX
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db DBTX) *PoolRepository {
	return &PoolRepository{db: db}
}

// Create inserts a new pool
func (r *PoolRepository) Create(ctx context.Context, p *pool.Pool) error {
	query := `
		INSERT INTO pools (
			id, name, symbol, description, status,
			token_supply, token_price, minimum_investment,
			total_invested, total_investors, total_tokens_issued, total_dividends_distributed,
			external_token_ref, assets, created_by, launched_at,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Symbol, p.Description, p.Status,
		p.TokenSupply, p.TokenPrice, p.MinimumInvestment,
		p.TotalInvested, p.TotalInvestors, p.TotalTokensIssued, p.TotalDividendsDistributed,
		p.ExternalTokenRef, p.Assets, p.CreatedBy, p.LaunchedAt,
		p.Version, p.CreatedAt, p.UpdatedAt,
	)
	return mapInsertErr(err, "pool")
}

// GetByID retrieves a pool by ID
func (r *PoolRepository) GetByID(ctx context.Context, id uuid.UUID) (*pool.Pool, error) {
	var p pool.Pool

	err := r.db.GetContext(ctx, &p, `SELECT * FROM pools WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrPoolNotFound, "pool %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pool")
	}

	return &p, nil
}

// List returns pools, optionally filtered by status
func (r *PoolRepository) List(ctx context.Context, status pool.PoolStatus) ([]*pool.Pool, error) {
	var pools []*pool.Pool

	query := `
		SELECT * FROM pools
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &pools, query, string(status)); err != nil {
		return nil, errors.Wrap(err, "failed to list pools")
	}

	return pools, nil
}

// Update persists p when p.Version is current and bumps the version
func (r *PoolRepository) Update(ctx context.Context, p *pool.Pool) error {
	query := `
		UPDATE pools SET
			name = $3, symbol = $4, description = $5, status = $6,
			token_supply = $7, token_price = $8, minimum_investment = $9,
			total_invested = $10, total_investors = $11,
			total_tokens_issued = $12, total_dividends_distributed = $13,
			external_token_ref = $14, assets = $15, launched_at = $16,
			updated_at = $17,
			version = version + 1
		WHERE id = $1 AND version = $2`

	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.Version,
		p.Name, p.Symbol, p.Description, p.Status,
		p.TokenSupply, p.TokenPrice, p.MinimumInvestment,
		p.TotalInvested, p.TotalInvestors,
		p.TotalTokensIssued, p.TotalDividendsDistributed,
		p.ExternalTokenRef, p.Assets, p.LaunchedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update pool")
	}

	if err := versionedUpdate(ctx, r.db, "pools", p.ID, result, errors.Wrapf(errors.ErrPoolNotFound, "pool %s", p.ID)); err != nil {
		return err
	}
	p.Version++
	return nil
}
