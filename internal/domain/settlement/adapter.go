package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TokenParams describes the token to bind when a pool launches
type TokenParams struct {
	PoolID uuid.UUID
	Name   string
	Symbol string
	Supply decimal.Decimal
}

// Adapter is the boundary to the external settlement network.
// Implementations never hold authoritative state; every method returns an opaque
// transaction or token reference, or a *Failure.
type Adapter interface {
	// SubmitTokenTransfer moves amount pool tokens between two accounts.
	// An empty from means the treasury account.
	SubmitTokenTransfer(ctx context.Context, tokenRef, from, to string, amount decimal.Decimal) (string, error)

	// SubmitCurrencyTransfer pays amount of the settlement currency from the treasury to to
	SubmitCurrencyTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)

	// BindNewToken creates the external token for a pool and returns its reference
	BindNewToken(ctx context.Context, params TokenParams) (string, error)
}
