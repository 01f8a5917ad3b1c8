package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/distribution"
	"rwaledger/pkg/errors"
)

// Compile-time check
var _ distribution.Repository = (*DistributionRepository)(nil)

// DistributionRepository implements distribution.Repository using sqlx
type DistributionRepository struct {
	db DBTX
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(db DBTX) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// Create inserts the distribution, its recipients and its audit trail.
// Callers run it inside a transaction.
func (r *DistributionRepository) Create(ctx context.Context, d *distribution.Distribution) error {
	query := `
		INSERT INTO distributions (
			id, pool_id, total_amount, per_token_rate, total_tokens_eligible, rounding_remainder,
			record_date, distribution_date,
			total_claimed, total_unclaimed, claim_count, recipient_count,
			status, created_by, executed_at,
			version, created_at, updated_at
		) VALUES (
			:id, :pool_id, :total_amount, :per_token_rate, :total_tokens_eligible, :rounding_remainder,
			:record_date, :distribution_date,
			:total_claimed, :total_unclaimed, :claim_count, :recipient_count,
			:status, :created_by, :executed_at,
			:version, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return mapInsertErr(err, "distribution")
	}

	recipientQuery := `
		INSERT INTO distribution_recipients (
			distribution_id, holder_id, holding_id, tokens, dividend_amount, accrued, claimed, claimed_at
		) VALUES (
			:distribution_id, :holder_id, :holding_id, :tokens, :dividend_amount, :accrued, :claimed, :claimed_at
		)`

	for i := range d.Recipients {
		if _, err := r.db.NamedExecContext(ctx, recipientQuery, &d.Recipients[i]); err != nil {
			return mapInsertErr(err, "distribution recipient")
		}
	}

	for _, e := range d.Audit {
		if err := r.AppendAudit(ctx, e); err != nil {
			return err
		}
	}

	return nil
}

// GetByID retrieves a distribution with recipients and audit trail
func (r *DistributionRepository) GetByID(ctx context.Context, id uuid.UUID) (*distribution.Distribution, error) {
	var d distribution.Distribution

	err := r.db.GetContext(ctx, &d, `SELECT * FROM distributions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrDistributionNotFound, "distribution %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get distribution")
	}

	if err := r.loadChildren(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DistributionRepository) loadChildren(ctx context.Context, d *distribution.Distribution) error {
	recipientQuery := `
		SELECT * FROM distribution_recipients
		WHERE distribution_id = $1
		ORDER BY holder_id`

	if err := r.db.SelectContext(ctx, &d.Recipients, recipientQuery, d.ID); err != nil {
		return errors.Wrap(err, "failed to load recipients")
	}

	auditQuery := `
		SELECT * FROM distribution_audit
		WHERE distribution_id = $1
		ORDER BY at`

	if err := r.db.SelectContext(ctx, &d.Audit, auditQuery, d.ID); err != nil {
		return errors.Wrap(err, "failed to load audit trail")
	}
	return nil
}

// ListByPool returns a pool's distributions oldest first
func (r *DistributionRepository) ListByPool(ctx context.Context, poolID uuid.UUID) ([]*distribution.Distribution, error) {
	var list []*distribution.Distribution

	query := `SELECT * FROM distributions WHERE pool_id = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &list, query, poolID); err != nil {
		return nil, errors.Wrap(err, "failed to list distributions")
	}

	for _, d := range list {
		if err := r.loadChildren(ctx, d); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// CountInFlight counts PENDING and DISTRIBUTING distributions of a pool
func (r *DistributionRepository) CountInFlight(ctx context.Context, poolID uuid.UUID) (int, error) {
	var n int

	query := `
		SELECT COUNT(*) FROM distributions
		WHERE pool_id = $1 AND status IN ($2, $3)`

	err := r.db.GetContext(ctx, &n, query, poolID, distribution.StatusPending, distribution.StatusDistributing)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count in-flight distributions")
	}
	return n, nil
}

// Update persists scalar fields when d.Version is current and bumps the version
func (r *DistributionRepository) Update(ctx context.Context, d *distribution.Distribution) error {
	query := `
		UPDATE distributions SET
			status = :status,
			total_claimed = :total_claimed,
			total_unclaimed = :total_unclaimed,
			claim_count = :claim_count,
			executed_at = :executed_at,
			updated_at = :updated_at,
			version = version + 1
		WHERE id = :id AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, d)
	if err != nil {
		return errors.Wrap(err, "failed to update distribution")
	}

	if err := versionedUpdate(ctx, r.db, "distributions", d.ID, result, errors.Wrapf(errors.ErrDistributionNotFound, "distribution %s", d.ID)); err != nil {
		return err
	}
	d.Version++
	return nil
}

// GetRecipient retrieves one entitlement row
func (r *DistributionRepository) GetRecipient(ctx context.Context, distributionID uuid.UUID, holderID string) (*distribution.Recipient, error) {
	var rec distribution.Recipient

	query := `SELECT * FROM distribution_recipients WHERE distribution_id = $1 AND holder_id = $2`

	err := r.db.GetContext(ctx, &rec, query, distributionID, holderID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrRecipientNotFound, "holder %s in distribution %s", holderID, distributionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recipient")
	}

	return &rec, nil
}

// MarkRecipientAccrued flags the recipient as credited
func (r *DistributionRepository) MarkRecipientAccrued(ctx context.Context, distributionID uuid.UUID, holderID string) error {
	query := `
		UPDATE distribution_recipients SET accrued = TRUE
		WHERE distribution_id = $1 AND holder_id = $2`

	result, err := r.db.ExecContext(ctx, query, distributionID, holderID)
	if err != nil {
		return errors.Wrap(err, "failed to mark recipient accrued")
	}
	return expectOne(result, errors.Wrapf(errors.ErrRecipientNotFound, "holder %s in distribution %s", holderID, distributionID))
}

// MarkRecipientClaimed flips claimed only while it is still false
func (r *DistributionRepository) MarkRecipientClaimed(ctx context.Context, distributionID uuid.UUID, holderID string, at time.Time) error {
	query := `
		UPDATE distribution_recipients SET claimed = TRUE, claimed_at = $3
		WHERE distribution_id = $1 AND holder_id = $2 AND claimed = FALSE`

	result, err := r.db.ExecContext(ctx, query, distributionID, holderID, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark recipient claimed")
	}

	err = expectOne(result, errors.ErrAlreadyClaimed)
	if !errors.Is(err, errors.ErrAlreadyClaimed) {
		return err
	}
	if _, err := r.GetRecipient(ctx, distributionID, holderID); err != nil {
		return err
	}
	return errors.Wrapf(errors.ErrAlreadyClaimed, "holder %s in distribution %s", holderID, distributionID)
}

// AppendAudit appends an audit entry
func (r *DistributionRepository) AppendAudit(ctx context.Context, e distribution.AuditEntry) error {
	query := `
		INSERT INTO distribution_audit (id, distribution_id, action, actor, note, at)
		VALUES (:id, :distribution_id, :action, :actor, :note, :at)`

	_, err := r.db.NamedExecContext(ctx, query, e)
	return mapInsertErr(err, "audit entry")
}
