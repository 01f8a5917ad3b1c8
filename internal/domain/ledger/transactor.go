package ledger

import (
	"context"

	"rwaledger/internal/domain/distribution"
	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
)

// Repositories groups the ledger repositories bound to one unit of work
type Repositories struct {
	Pools         pool.Repository
	Holdings      holding.Repository
	Distributions distribution.Repository
	Settlements   settlement.Repository
}

// Transactor runs fn inside a single atomic unit of work.
// If fn returns an error every write made through repos is discarded.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Repos returns repositories outside any transaction, for reads and single-row writes
	Repos() Repositories
}
