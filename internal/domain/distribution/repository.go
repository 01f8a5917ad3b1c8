package distribution

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for distribution data access
type Repository interface {
	// Create inserts the distribution with its recipients and audit entries
	Create(ctx context.Context, d *Distribution) error
	// GetByID loads recipients and audit entries
	GetByID(ctx context.Context, id uuid.UUID) (*Distribution, error)
	ListByPool(ctx context.Context, poolID uuid.UUID) ([]*Distribution, error)
	CountInFlight(ctx context.Context, poolID uuid.UUID) (int, error)
	// Update persists scalar fields when d.Version matches and increments it
	Update(ctx context.Context, d *Distribution) error

	GetRecipient(ctx context.Context, distributionID uuid.UUID, holderID string) (*Recipient, error)
	MarkRecipientAccrued(ctx context.Context, distributionID uuid.UUID, holderID string) error
	// MarkRecipientClaimed flips claimed only when it is still false; ErrAlreadyClaimed otherwise
	MarkRecipientClaimed(ctx context.Context, distributionID uuid.UUID, holderID string, at time.Time) error

	AppendAudit(ctx context.Context, e AuditEntry) error
}
