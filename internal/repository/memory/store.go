// Package memory is an in-process implementation of the ledger repositories.
// It backs the service, worker and API tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"rwaledger/internal/domain/distribution"
	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
)

type holdingKey struct {
	holderID string
	poolID   uuid.UUID
}

type dividendKey struct {
	holdingID      uuid.UUID
	distributionID uuid.UUID
}

type state struct {
	pools map[uuid.UUID]pool.Pool

	holdings  map[uuid.UUID]holding.Holding
	byHolder  map[holdingKey]uuid.UUID
	transfers []holding.TransferRecord
	dividends map[dividendKey]holding.DividendRecord
	stakes    map[uuid.UUID]holding.StakeRecord

	distributions map[uuid.UUID]distribution.Distribution
	recipients    map[uuid.UUID][]distribution.Recipient
	audit         map[uuid.UUID][]distribution.AuditEntry

	settlements map[uuid.UUID]settlement.Settlement
}

func newState() *state {
	return &state{
		pools:         make(map[uuid.UUID]pool.Pool),
		holdings:      make(map[uuid.UUID]holding.Holding),
		byHolder:      make(map[holdingKey]uuid.UUID),
		dividends:     make(map[dividendKey]holding.DividendRecord),
		stakes:        make(map[uuid.UUID]holding.StakeRecord),
		distributions: make(map[uuid.UUID]distribution.Distribution),
		recipients:    make(map[uuid.UUID][]distribution.Recipient),
		audit:         make(map[uuid.UUID][]distribution.AuditEntry),
		settlements:   make(map[uuid.UUID]settlement.Settlement),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.pools {
		v.Assets = append(pool.UnderlyingAssets(nil), v.Assets...)
		c.pools[k] = v
	}
	for k, v := range s.holdings {
		c.holdings[k] = v
	}
	for k, v := range s.byHolder {
		c.byHolder[k] = v
	}
	c.transfers = append([]holding.TransferRecord(nil), s.transfers...)
	for k, v := range s.dividends {
		c.dividends[k] = v
	}
	for k, v := range s.stakes {
		c.stakes[k] = v
	}
	for k, v := range s.distributions {
		c.distributions[k] = v
	}
	for k, v := range s.recipients {
		c.recipients[k] = append([]distribution.Recipient(nil), v...)
	}
	for k, v := range s.audit {
		c.audit[k] = append([]distribution.AuditEntry(nil), v...)
	}
	for k, v := range s.settlements {
		c.settlements[k] = v
	}
	return c
}

// Store holds all ledger state in memory
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{st: newState()}
}

// session routes repository calls either to the live state under the store
// lock, or to a transaction's private copy.
type session struct {
	store *Store
	tx    *state
}

func (s *session) with(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return fn(s.store.st)
}

func (s *session) repos() ledger.Repositories {
	return ledger.Repositories{
		Pools:         &poolRepository{s},
		Holdings:      &holdingRepository{s},
		Distributions: &distributionRepository{s},
		Settlements:   &settlementRepository{s},
	}
}

// Transactor implements ledger.Transactor.
// Transactions are serialized; a transaction works on a copy of the state
// that replaces the live state only when fn returns nil.
type Transactor struct {
	store *Store
}

// NewTransactor creates a transactor over store
func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

// WithinTx implements ledger.Transactor. Calling Repos() from inside fn deadlocks.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := t.store.st.clone()
	sess := &session{store: t.store, tx: work}
	if err := fn(ctx, sess.repos()); err != nil {
		return err
	}
	t.store.st = work
	return nil
}

// Repos implements ledger.Transactor
func (t *Transactor) Repos() ledger.Repositories {
	return (&session{store: t.store}).repos()
}

var _ ledger.Transactor = (*Transactor)(nil)
