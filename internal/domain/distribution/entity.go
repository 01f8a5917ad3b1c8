package distribution

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/pkg/errors"
)

// Distribution is a pro-rata dividend payout over a record-date snapshot
type Distribution struct {
	ID     uuid.UUID `db:"id" json:"id"`
	PoolID uuid.UUID `db:"pool_id" json:"pool_id"`

	TotalAmount         decimal.Decimal `db:"total_amount" json:"total_amount"`
	PerTokenRate        decimal.Decimal `db:"per_token_rate" json:"per_token_rate"` // frozen at creation
	TotalTokensEligible decimal.Decimal `db:"total_tokens_eligible" json:"total_tokens_eligible"`
	RoundingRemainder   decimal.Decimal `db:"rounding_remainder" json:"rounding_remainder"`

	RecordDate       time.Time `db:"record_date" json:"record_date"`
	DistributionDate time.Time `db:"distribution_date" json:"distribution_date"`

	TotalClaimed   decimal.Decimal `db:"total_claimed" json:"total_claimed"`
	TotalUnclaimed decimal.Decimal `db:"total_unclaimed" json:"total_unclaimed"`
	ClaimCount     int64           `db:"claim_count" json:"claim_count"`
	RecipientCount int64           `db:"recipient_count" json:"recipient_count"`

	Status     Status     `db:"status" json:"status"`
	CreatedBy  string     `db:"created_by" json:"created_by"`
	ExecutedAt *time.Time `db:"executed_at" json:"executed_at"`

	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Recipients []Recipient  `db:"-" json:"recipients,omitempty"`
	Audit      []AuditEntry `db:"-" json:"audit,omitempty"`
}

// Recipient is one holder's frozen entitlement
type Recipient struct {
	DistributionID uuid.UUID       `db:"distribution_id" json:"distribution_id"`
	HolderID       string          `db:"holder_id" json:"holder_id"`
	HoldingID      uuid.UUID       `db:"holding_id" json:"holding_id"`
	Tokens         decimal.Decimal `db:"tokens" json:"tokens"`
	DividendAmount decimal.Decimal `db:"dividend_amount" json:"dividend_amount"`
	Accrued        bool            `db:"accrued" json:"accrued"`
	Claimed        bool            `db:"claimed" json:"claimed"`
	ClaimedAt      *time.Time      `db:"claimed_at" json:"claimed_at"`
}

// AuditEntry is an append-only record of an action on a distribution
type AuditEntry struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DistributionID uuid.UUID `db:"distribution_id" json:"distribution_id"`
	Action         Action    `db:"action" json:"action"`
	Actor          string    `db:"actor" json:"actor"`
	Note           string    `db:"note" json:"note"`
	At             time.Time `db:"at" json:"at"`
}

// Action names an audited step
type Action string

const (
	ActionCreated          Action = "created"
	ActionExecuting        Action = "execution_started"
	ActionAccrued          Action = "accrued"
	ActionDistributed      Action = "distributed"
	ActionClaimed          Action = "claimed"
	ActionCancelled        Action = "cancelled"
	ActionSettlementFailed Action = "settlement_failed"
)

// Entitlement is a snapshot row: one eligible holding at the record date
type Entitlement struct {
	HolderID  string
	HoldingID uuid.UUID
	Tokens    decimal.Decimal
}

// Schedule is the computed payout table
type Schedule struct {
	PerTokenRate        decimal.Decimal
	TotalTokensEligible decimal.Decimal
	Recipients          []Recipient
	RoundingRemainder   decimal.Decimal
}

// ComputeSchedule splits total pro rata over entitlements.
// Each amount is rounded down to scale decimal places; the undistributed
// remainder is reported rather than assigned to any recipient.
func ComputeSchedule(total decimal.Decimal, entitlements []Entitlement, scale int32) (*Schedule, error) {
	if !total.IsPositive() {
		return nil, errors.NewValidationError("total_amount", "must be positive", total)
	}

	eligible := make([]Entitlement, 0, len(entitlements))
	totalTokens := decimal.Zero
	for _, e := range entitlements {
		if !e.Tokens.IsPositive() {
			continue
		}
		eligible = append(eligible, e)
		totalTokens = totalTokens.Add(e.Tokens)
	}
	if len(eligible) == 0 {
		return nil, errors.ErrNoEligibleHolders
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].HolderID < eligible[j].HolderID })

	s := &Schedule{
		PerTokenRate:        total.Div(totalTokens),
		TotalTokensEligible: totalTokens,
		Recipients:          make([]Recipient, 0, len(eligible)),
	}

	paid := decimal.Zero
	for _, e := range eligible {
		amount := total.Mul(e.Tokens).Div(totalTokens).RoundFloor(scale)
		paid = paid.Add(amount)
		s.Recipients = append(s.Recipients, Recipient{
			HolderID:       e.HolderID,
			HoldingID:      e.HoldingID,
			Tokens:         e.Tokens,
			DividendAmount: amount,
		})
	}
	s.RoundingRemainder = total.Sub(paid)
	return s, nil
}

// New creates a PENDING distribution from a computed schedule
func New(poolID uuid.UUID, total decimal.Decimal, recordDate, distributionDate time.Time, s *Schedule, actor string, now time.Time) *Distribution {
	d := &Distribution{
		ID:                  uuid.New(),
		PoolID:              poolID,
		TotalAmount:         total,
		PerTokenRate:        s.PerTokenRate,
		TotalTokensEligible: s.TotalTokensEligible,
		RoundingRemainder:   s.RoundingRemainder,
		RecordDate:          recordDate,
		DistributionDate:    distributionDate,
		TotalClaimed:        decimal.Zero,
		TotalUnclaimed:      decimal.Zero,
		RecipientCount:      int64(len(s.Recipients)),
		Status:              StatusPending,
		CreatedBy:           actor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	d.Recipients = make([]Recipient, len(s.Recipients))
	for i, r := range s.Recipients {
		r.DistributionID = d.ID
		d.Recipients[i] = r
	}
	d.Record(ActionCreated, actor, "", now)
	return d
}

// Record appends an audit entry and returns it for persistence
func (d *Distribution) Record(action Action, actor, note string, at time.Time) AuditEntry {
	e := AuditEntry{
		ID:             uuid.New(),
		DistributionID: d.ID,
		Action:         action,
		Actor:          actor,
		Note:           note,
		At:             at,
	}
	d.Audit = append(d.Audit, e)
	return e
}

// TransitionTo moves the distribution to next if the lifecycle allows it
func (d *Distribution) TransitionTo(next Status, at time.Time) error {
	if !d.Status.CanTransitionTo(next) {
		return errors.Wrapf(errors.ErrInvalidState, "distribution %s: %s -> %s", d.ID, d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = at
	if next == StatusDistributed {
		d.ExecutedAt = &at
	}
	return nil
}

// Due reports whether the distribution date has been reached
func (d *Distribution) Due(now time.Time) bool {
	return !now.Before(d.DistributionDate)
}

// PaidTotal sums the recipient amounts
func (d *Distribution) PaidTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range d.Recipients {
		sum = sum.Add(r.DividendAmount)
	}
	return sum
}

// MarkAccrued sets unclaimed to the paid total once accrual completes
func (d *Distribution) MarkAccrued() {
	d.TotalUnclaimed = d.PaidTotal().Sub(d.TotalClaimed)
}

// RecordClaim moves amount from unclaimed to claimed
func (d *Distribution) RecordClaim(amount decimal.Decimal, at time.Time) {
	d.TotalClaimed = d.TotalClaimed.Add(amount)
	d.TotalUnclaimed = decimal.Max(d.TotalUnclaimed.Sub(amount), decimal.Zero)
	d.ClaimCount++
	d.UpdatedAt = at
}

// Recipient returns the entitlement row for holderID
func (d *Distribution) Recipient(holderID string) (*Recipient, bool) {
	for i := range d.Recipients {
		if d.Recipients[i].HolderID == holderID {
			return &d.Recipients[i], true
		}
	}
	return nil, false
}

// Status of a distribution
type Status string

const (
	StatusPending      Status = "pending"
	StatusDistributing Status = "distributing"
	StatusDistributed  Status = "distributed"
	StatusCancelled    Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusDistributing, StatusCancelled},
	StatusDistributing: {StatusDistributed},
}

// CanTransitionTo reports whether s -> next is a lifecycle edge
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InFlight is true while the distribution still blocks pool close or suspend
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusDistributing
}

// Valid checks if status is valid
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDistributing, StatusDistributed, StatusCancelled:
		return true
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}
