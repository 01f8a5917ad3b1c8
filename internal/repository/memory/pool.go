package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"rwaledger/internal/domain/pool"
	"rwaledger/pkg/errors"
)

type poolRepository struct {
	s *session
}

func copyPool(p pool.Pool) *pool.Pool {
	p.Assets = append(pool.UnderlyingAssets(nil), p.Assets...)
	return &p
}

// Create inserts a new pool
func (r *poolRepository) Create(ctx context.Context, p *pool.Pool) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.pools[p.ID]; ok {
			return errors.Wrapf(errors.ErrAlreadyExists, "pool %s", p.ID)
		}
		st.pools[p.ID] = *copyPool(*p)
		return nil
	})
}

// GetByID retrieves a pool by ID
func (r *poolRepository) GetByID(ctx context.Context, id uuid.UUID) (*pool.Pool, error) {
	var out *pool.Pool
	err := r.s.with(func(st *state) error {
		p, ok := st.pools[id]
		if !ok {
			return errors.Wrapf(errors.ErrPoolNotFound, "pool %s", id)
		}
		out = copyPool(p)
		return nil
	})
	return out, err
}

// List returns pools ordered by creation time
func (r *poolRepository) List(ctx context.Context, status pool.PoolStatus) ([]*pool.Pool, error) {
	var out []*pool.Pool
	err := r.s.with(func(st *state) error {
		for _, p := range st.pools {
			if status != "" && p.Status != status {
				continue
			}
			out = append(out, copyPool(p))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// Update stores p if its version is current
func (r *poolRepository) Update(ctx context.Context, p *pool.Pool) error {
	return r.s.with(func(st *state) error {
		cur, ok := st.pools[p.ID]
		if !ok {
			return errors.Wrapf(errors.ErrPoolNotFound, "pool %s", p.ID)
		}
		if cur.Version != p.Version {
			return errors.Wrapf(errors.ErrVersionConflict, "pool %s at version %d", p.ID, p.Version)
		}
		next := copyPool(*p)
		next.Version++
		st.pools[p.ID] = *next
		p.Version = next.Version
		return nil
	})
}
