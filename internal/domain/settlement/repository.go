package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for settlement outbox access
type Repository interface {
	Create(ctx context.Context, s *Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Settlement, error)
	// Update is version-checked like the other ledger repositories
	Update(ctx context.Context, s *Settlement) error
	// ListRetryable returns FAILED rows and PENDING rows last touched before staleBefore,
	// with fewer than maxAttempts attempts, oldest first.
	ListRetryable(ctx context.Context, staleBefore time.Time, maxAttempts int, limit int) ([]*Settlement, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Settlement, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID) ([]*Settlement, error)
	CountByPool(ctx context.Context, poolID uuid.UUID) (map[Status]int64, error)
}
