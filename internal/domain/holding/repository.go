package holding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/settlement"
)

// Repository defines the interface for holding data access.
// Writes go through the holdings ledger service only.
type Repository interface {
	Create(ctx context.Context, h *Holding) error
	GetByID(ctx context.Context, id uuid.UUID) (*Holding, error)
	GetByHolderAndPool(ctx context.Context, holderID string, poolID uuid.UUID) (*Holding, error)
	ListByPool(ctx context.Context, poolID uuid.UUID) ([]*Holding, error)
	ListByHolder(ctx context.Context, holderID string) ([]*Holding, error)
	// Update persists scalar fields when h.Version matches and increments it
	Update(ctx context.Context, h *Holding) error

	AppendTransfer(ctx context.Context, rec *TransferRecord) error
	ListTransfers(ctx context.Context, holdingID uuid.UUID, limit int) ([]*TransferRecord, error)
	// RecordTransferSettlement writes the settlement outcome on every record linked to settlementID
	RecordTransferSettlement(ctx context.Context, settlementID uuid.UUID, status settlement.Status, txRef string) error

	// AppendDividend fails with ErrAlreadyExists when the holding already accrued the distribution
	AppendDividend(ctx context.Context, rec *DividendRecord) error
	GetDividend(ctx context.Context, holdingID, distributionID uuid.UUID) (*DividendRecord, error)
	MarkDividendClaimed(ctx context.Context, holdingID, distributionID uuid.UUID, at time.Time) error
	ListDividends(ctx context.Context, holdingID uuid.UUID) ([]*DividendRecord, error)

	CreateStake(ctx context.Context, s *StakeRecord) error
	ListStakes(ctx context.Context, holdingID uuid.UUID) ([]*StakeRecord, error)
	// CloseStake fails with ErrNotActiveOrNotFound unless the stake exists, belongs to holdingID and is active
	CloseStake(ctx context.Context, holdingID, stakeID uuid.UUID, at time.Time) (*StakeRecord, error)
}
