package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/pkg/errors"
)

// Settlement is the outbox row for one external transfer leg.
// It is written PENDING in the same transaction as the ledger change it settles
// and moved to CONFIRMED or FAILED after the adapter call returns.
type Settlement struct {
	ID      uuid.UUID `db:"id" json:"id"`
	Kind    Kind      `db:"kind" json:"kind"`
	Purpose Purpose   `db:"purpose" json:"purpose"`

	PoolID   uuid.UUID `db:"pool_id" json:"pool_id"`
	HolderID string    `db:"holder_id" json:"holder_id"`

	From     string          `db:"from_account" json:"from_account"`
	To       string          `db:"to_account" json:"to_account"`
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	TokenRef string          `db:"token_ref" json:"token_ref"` // empty for currency transfers

	// Transfer record id or distribution id this leg settles
	ReferenceID uuid.UUID `db:"reference_id" json:"reference_id"`

	Status        Status     `db:"status" json:"status"`
	TxRef         string     `db:"tx_ref" json:"tx_ref"`
	FailureReason string     `db:"failure_reason" json:"failure_reason"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at"`

	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewTokenTransfer builds a pending token transfer leg
func NewTokenTransfer(purpose Purpose, poolID uuid.UUID, holderID, tokenRef, from, to string, amount decimal.Decimal, referenceID uuid.UUID) *Settlement {
	now := time.Now().UTC()
	return &Settlement{
		ID:          uuid.New(),
		Kind:        KindTokenTransfer,
		Purpose:     purpose,
		PoolID:      poolID,
		HolderID:    holderID,
		From:        from,
		To:          to,
		Amount:      amount,
		TokenRef:    tokenRef,
		ReferenceID: referenceID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewCurrencyTransfer builds a pending currency payout leg
func NewCurrencyTransfer(purpose Purpose, poolID uuid.UUID, holderID string, amount decimal.Decimal, referenceID uuid.UUID) *Settlement {
	now := time.Now().UTC()
	return &Settlement{
		ID:          uuid.New(),
		Kind:        KindCurrencyTransfer,
		Purpose:     purpose,
		PoolID:      poolID,
		HolderID:    holderID,
		To:          holderID,
		Amount:      amount,
		ReferenceID: referenceID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkConfirmed records a confirmed attempt
func (s *Settlement) MarkConfirmed(txRef string, at time.Time) {
	s.Status = StatusConfirmed
	s.TxRef = txRef
	s.FailureReason = ""
	s.recordAttempt(at)
}

// MarkFailed records a failed attempt
func (s *Settlement) MarkFailed(reason string, at time.Time) {
	s.Status = StatusFailed
	s.TxRef = ""
	s.FailureReason = reason
	s.recordAttempt(at)
}

func (s *Settlement) recordAttempt(at time.Time) {
	s.Attempts++
	s.LastAttemptAt = &at
	s.UpdatedAt = at
}

// Outcome summarizes a settlement leg for the caller of a ledger operation
func (s *Settlement) Outcome() Outcome {
	o := Outcome{SettlementID: s.ID, Status: s.Status, TxRef: s.TxRef}
	switch s.Status {
	case StatusFailed:
		o.Warning = fmt.Sprintf("ledger committed; on-chain settlement failed: %s", s.FailureReason)
	case StatusPending:
		o.Warning = "ledger committed; on-chain settlement pending"
	}
	return o
}

// Outcome is the settlement half of the dual-track result of a ledger operation
type Outcome struct {
	SettlementID uuid.UUID `json:"settlement_id"`
	Status       Status    `json:"status"`
	TxRef        string    `json:"tx_ref,omitempty"`
	Warning      string    `json:"warning,omitempty"`
}

// Settled is true when the external leg confirmed
func (o Outcome) Settled() bool {
	return o.Status == StatusConfirmed
}

// Kind distinguishes token and currency legs
type Kind string

const (
	KindTokenTransfer    Kind = "token_transfer"
	KindCurrencyTransfer Kind = "currency_transfer"
)

// Purpose names the ledger operation that produced the leg
type Purpose string

const (
	PurposeInvestment Purpose = "investment"
	PurposeDividend   Purpose = "dividend"
	PurposeTransfer   Purpose = "transfer"
	PurposeDistribute Purpose = "distribute"
)

// Status of a settlement leg
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Valid checks if status is valid
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}

// Failure is returned by adapters when the external leg did not confirm
type Failure struct {
	Op     string
	Reason string
	Err    error
}

// NewFailure creates a settlement failure
func NewFailure(op, reason string, err error) *Failure {
	return &Failure{Op: op, Reason: reason, Err: err}
}

// Error implements the error interface
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("settlement %s failed: %s: %v", f.Op, f.Reason, f.Err)
	}
	return fmt.Sprintf("settlement %s failed: %s", f.Op, f.Reason)
}

// Unwrap makes errors.Is(err, errors.ErrSettlementFailed) hold
func (f *Failure) Unwrap() []error {
	if f.Err != nil {
		return []error{errors.ErrSettlementFailed, f.Err}
	}
	return []error{errors.ErrSettlementFailed}
}
