package pool

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for pool data access
type Repository interface {
	Create(ctx context.Context, p *Pool) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pool, error)
	// List returns all pools, or only those in status when it is non-empty
	List(ctx context.Context, status PoolStatus) ([]*Pool, error)
	// Update persists p when p.Version matches the stored version and increments it
	Update(ctx context.Context, p *Pool) error
}
