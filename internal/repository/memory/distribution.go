package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/distribution"
	"rwaledger/pkg/errors"
)

type distributionRepository struct {
	s *session
}

func (st *state) assemble(d distribution.Distribution) *distribution.Distribution {
	d.Recipients = append([]distribution.Recipient(nil), st.recipients[d.ID]...)
	d.Audit = append([]distribution.AuditEntry(nil), st.audit[d.ID]...)
	return &d
}

// Create inserts a distribution with its recipients and audit trail
func (r *distributionRepository) Create(ctx context.Context, d *distribution.Distribution) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.distributions[d.ID]; ok {
			return errors.Wrapf(errors.ErrAlreadyExists, "distribution %s", d.ID)
		}
		row := *d
		row.Recipients, row.Audit = nil, nil
		st.distributions[d.ID] = row
		st.recipients[d.ID] = append([]distribution.Recipient(nil), d.Recipients...)
		st.audit[d.ID] = append([]distribution.AuditEntry(nil), d.Audit...)
		return nil
	})
}

// GetByID retrieves a distribution with recipients and audit trail
func (r *distributionRepository) GetByID(ctx context.Context, id uuid.UUID) (*distribution.Distribution, error) {
	var out *distribution.Distribution
	err := r.s.with(func(st *state) error {
		d, ok := st.distributions[id]
		if !ok {
			return errors.Wrapf(errors.ErrDistributionNotFound, "distribution %s", id)
		}
		out = st.assemble(d)
		return nil
	})
	return out, err
}

// ListByPool returns a pool's distributions oldest first
func (r *distributionRepository) ListByPool(ctx context.Context, poolID uuid.UUID) ([]*distribution.Distribution, error) {
	var out []*distribution.Distribution
	err := r.s.with(func(st *state) error {
		for _, d := range st.distributions {
			if d.PoolID == poolID {
				out = append(out, st.assemble(d))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// CountInFlight counts PENDING and DISTRIBUTING distributions of a pool
func (r *distributionRepository) CountInFlight(ctx context.Context, poolID uuid.UUID) (int, error) {
	n := 0
	err := r.s.with(func(st *state) error {
		for _, d := range st.distributions {
			if d.PoolID == poolID && d.Status.InFlight() {
				n++
			}
		}
		return nil
	})
	return n, err
}

// Update stores scalar fields if the version is current
func (r *distributionRepository) Update(ctx context.Context, d *distribution.Distribution) error {
	return r.s.with(func(st *state) error {
		cur, ok := st.distributions[d.ID]
		if !ok {
			return errors.Wrapf(errors.ErrDistributionNotFound, "distribution %s", d.ID)
		}
		if cur.Version != d.Version {
			return errors.Wrapf(errors.ErrVersionConflict, "distribution %s at version %d", d.ID, d.Version)
		}
		row := *d
		row.Recipients, row.Audit = nil, nil
		row.Version++
		st.distributions[d.ID] = row
		d.Version = row.Version
		return nil
	})
}

func (st *state) recipient(distributionID uuid.UUID, holderID string) (*distribution.Recipient, error) {
	list := st.recipients[distributionID]
	for i := range list {
		if list[i].HolderID == holderID {
			return &list[i], nil
		}
	}
	return nil, errors.Wrapf(errors.ErrRecipientNotFound, "holder %s in distribution %s", holderID, distributionID)
}

// GetRecipient retrieves one entitlement row
func (r *distributionRepository) GetRecipient(ctx context.Context, distributionID uuid.UUID, holderID string) (*distribution.Recipient, error) {
	var out distribution.Recipient
	err := r.s.with(func(st *state) error {
		rec, err := st.recipient(distributionID, holderID)
		if err != nil {
			return err
		}
		out = *rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRecipientAccrued flags the recipient as credited
func (r *distributionRepository) MarkRecipientAccrued(ctx context.Context, distributionID uuid.UUID, holderID string) error {
	return r.s.with(func(st *state) error {
		rec, err := st.recipient(distributionID, holderID)
		if err != nil {
			return err
		}
		rec.Accrued = true
		return nil
	})
}

// MarkRecipientClaimed flips claimed when it is still false
func (r *distributionRepository) MarkRecipientClaimed(ctx context.Context, distributionID uuid.UUID, holderID string, at time.Time) error {
	return r.s.with(func(st *state) error {
		rec, err := st.recipient(distributionID, holderID)
		if err != nil {
			return err
		}
		if rec.Claimed {
			return errors.Wrapf(errors.ErrAlreadyClaimed, "holder %s in distribution %s", holderID, distributionID)
		}
		rec.Claimed = true
		rec.ClaimedAt = &at
		return nil
	})
}

// AppendAudit appends an audit entry
func (r *distributionRepository) AppendAudit(ctx context.Context, e distribution.AuditEntry) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.distributions[e.DistributionID]; !ok {
			return errors.Wrapf(errors.ErrDistributionNotFound, "distribution %s", e.DistributionID)
		}
		st.audit[e.DistributionID] = append(st.audit[e.DistributionID], e)
		return nil
	})
}
