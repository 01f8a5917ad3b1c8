package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
)

type settlementRepository struct {
	s *session
}

// Create inserts a settlement leg
func (r *settlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.settlements[s.ID]; ok {
			return errors.Wrapf(errors.ErrAlreadyExists, "settlement %s", s.ID)
		}
		st.settlements[s.ID] = *s
		return nil
	})
}

// GetByID retrieves a settlement leg
func (r *settlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	var out *settlement.Settlement
	err := r.s.with(func(st *state) error {
		s, ok := st.settlements[id]
		if !ok {
			return errors.Wrapf(errors.ErrSettlementNotFound, "settlement %s", id)
		}
		out = &s
		return nil
	})
	return out, err
}

// Update stores s if its version is current
func (r *settlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	return r.s.with(func(st *state) error {
		cur, ok := st.settlements[s.ID]
		if !ok {
			return errors.Wrapf(errors.ErrSettlementNotFound, "settlement %s", s.ID)
		}
		if cur.Version != s.Version {
			return errors.Wrapf(errors.ErrVersionConflict, "settlement %s at version %d", s.ID, s.Version)
		}
		next := *s
		next.Version++
		st.settlements[s.ID] = next
		s.Version = next.Version
		return nil
	})
}

// ListRetryable returns failed and stale pending legs, oldest first
func (r *settlementRepository) ListRetryable(ctx context.Context, staleBefore time.Time, maxAttempts int, limit int) ([]*settlement.Settlement, error) {
	out, err := r.filter(func(s *settlement.Settlement) bool {
		if s.Attempts >= maxAttempts {
			return false
		}
		return s.Status == settlement.StatusFailed ||
			(s.Status == settlement.StatusPending && s.UpdatedAt.Before(staleBefore))
	})
	return truncate(out, limit), err
}

// ListByStatus returns legs in status, or all legs when status is empty
func (r *settlementRepository) ListByStatus(ctx context.Context, status settlement.Status, limit int) ([]*settlement.Settlement, error) {
	out, err := r.filter(func(s *settlement.Settlement) bool {
		return status == "" || s.Status == status
	})
	return truncate(out, limit), err
}

// ListByReference returns the legs settling one transfer or distribution
func (r *settlementRepository) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]*settlement.Settlement, error) {
	return r.filter(func(s *settlement.Settlement) bool { return s.ReferenceID == referenceID })
}

// CountByPool counts a pool's legs per status
func (r *settlementRepository) CountByPool(ctx context.Context, poolID uuid.UUID) (map[settlement.Status]int64, error) {
	counts := make(map[settlement.Status]int64)
	err := r.s.with(func(st *state) error {
		for _, s := range st.settlements {
			if s.PoolID == poolID {
				counts[s.Status]++
			}
		}
		return nil
	})
	return counts, err
}

func (r *settlementRepository) filter(match func(s *settlement.Settlement) bool) ([]*settlement.Settlement, error) {
	var out []*settlement.Settlement
	err := r.s.with(func(st *state) error {
		for _, s := range st.settlements {
			s := s
			if match(&s) {
				out = append(out, &s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func truncate(list []*settlement.Settlement, limit int) []*settlement.Settlement {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}
