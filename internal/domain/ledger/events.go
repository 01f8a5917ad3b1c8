package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a committed ledger fact
type EventType string

const (
	EventPoolLaunched          EventType = "pool.launched"
	EventInvestmentRecorded    EventType = "investment.recorded"
	EventDistributionCreated   EventType = "distribution.created"
	EventDistributionExecuted  EventType = "distribution.executed"
	EventDistributionCancelled EventType = "distribution.cancelled"
	EventDividendClaimed       EventType = "dividend.claimed"
	EventTokensTransferred     EventType = "tokens.transferred"
	EventTokensDistributed     EventType = "tokens.distributed"
	EventSettlementConfirmed   EventType = "settlement.confirmed"
	EventSettlementFailed      EventType = "settlement.failed"
)

// Event is published after the transaction that produced it commits
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        EventType       `json:"type"`
	PoolID      uuid.UUID       `json:"pool_id"`
	HolderID    string          `json:"holder_id,omitempty"`
	ReferenceID uuid.UUID       `json:"reference_id"`
	Amount      decimal.Decimal `json:"amount"`
	Actor       string          `json:"actor,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewEvent stamps an event with an id and the current time
func NewEvent(t EventType, poolID uuid.UUID, holderID string, referenceID uuid.UUID, amount decimal.Decimal) Event {
	return Event{
		ID:          uuid.New(),
		Type:        t,
		PoolID:      poolID,
		HolderID:    holderID,
		ReferenceID: referenceID,
		Amount:      amount,
		OccurredAt:  time.Now().UTC(),
	}
}

// EventPublisher delivers ledger events. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
