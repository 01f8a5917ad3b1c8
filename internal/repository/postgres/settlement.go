package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
)

// Compile-time check
var _ settlement.Repository = (*SettlementRepository)(nil)

// SettlementRepository implements settlement.Repository using sqlx
type SettlementRepository struct {
	db DBTX
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db DBTX) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create inserts a settlement leg
func (r *SettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	query := `
		INSERT INTO settlements (
			id, kind, purpose, pool_id, holder_id,
			from_account, to_account, amount, token_ref, reference_id,
			status, tx_ref, failure_reason, attempts, last_attempt_at,
			version, created_at, updated_at
		) VALUES (
			:id, :kind, :purpose, :pool_id, :holder_id,
			:from_account, :to_account, :amount, :token_ref, :reference_id,
			:status, :tx_ref, :failure_reason, :attempts, :last_attempt_at,
			:version, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, s)
	return mapInsertErr(err, "settlement")
}

// GetByID retrieves a settlement leg
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	var s settlement.Settlement

	err := r.db.GetContext(ctx, &s, `SELECT * FROM settlements WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrSettlementNotFound, "settlement %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get settlement")
	}

	return &s, nil
}

// Update persists the outcome fields when s.Version is current and bumps the version
func (r *SettlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	query := `
		UPDATE settlements SET
			status = :status,
			tx_ref = :tx_ref,
			failure_reason = :failure_reason,
			attempts = :attempts,
			last_attempt_at = :last_attempt_at,
			updated_at = :updated_at,
			version = version + 1
		WHERE id = :id AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, s)
	if err != nil {
		return errors.Wrap(err, "failed to update settlement")
	}

	if err := versionedUpdate(ctx, r.db, "settlements", s.ID, result, errors.Wrapf(errors.ErrSettlementNotFound, "settlement %s", s.ID)); err != nil {
		return err
	}
	s.Version++
	return nil
}

// ListRetryable returns failed and stale pending legs, oldest first
func (r *SettlementRepository) ListRetryable(ctx context.Context, staleBefore time.Time, maxAttempts int, limit int) ([]*settlement.Settlement, error) {
	var list []*settlement.Settlement

	query := `
		SELECT * FROM settlements
		WHERE attempts < $1
		  AND (status = $2 OR (status = $3 AND updated_at < $4))
		ORDER BY created_at
		LIMIT NULLIF($5, 0)`

	err := r.db.SelectContext(ctx, &list, query,
		maxAttempts, settlement.StatusFailed, settlement.StatusPending, staleBefore, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list retryable settlements")
	}

	return list, nil
}

// ListByStatus returns legs in status, or all legs when status is empty
func (r *SettlementRepository) ListByStatus(ctx context.Context, status settlement.Status, limit int) ([]*settlement.Settlement, error) {
	var list []*settlement.Settlement

	query := `
		SELECT * FROM settlements
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at
		LIMIT NULLIF($2, 0)`

	if err := r.db.SelectContext(ctx, &list, query, string(status), limit); err != nil {
		return nil, errors.Wrap(err, "failed to list settlements")
	}

	return list, nil
}

// ListByReference returns the legs settling one transfer or distribution
func (r *SettlementRepository) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]*settlement.Settlement, error) {
	var list []*settlement.Settlement

	query := `SELECT * FROM settlements WHERE reference_id = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &list, query, referenceID); err != nil {
		return nil, errors.Wrap(err, "failed to list settlements by reference")
	}

	return list, nil
}

// CountByPool counts a pool's legs per status
func (r *SettlementRepository) CountByPool(ctx context.Context, poolID uuid.UUID) (map[settlement.Status]int64, error) {
	var rows []struct {
		Status settlement.Status `db:"status"`
		Count  int64             `db:"count"`
	}

	query := `
		SELECT status, COUNT(*) AS count
		FROM settlements
		WHERE pool_id = $1
		GROUP BY status`

	if err := r.db.SelectContext(ctx, &rows, query, poolID); err != nil {
		return nil, errors.Wrap(err, "failed to count settlements")
	}

	counts := make(map[settlement.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
