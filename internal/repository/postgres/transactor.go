package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"rwaledger/internal/domain/ledger"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// Transactor implements ledger.Transactor on a sqlx connection pool
type Transactor struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewTransactor creates a transactor over db
func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db, log: logger.Get().Component("transactor")}
}

// NewRepositories binds every ledger repository to db
func NewRepositories(db DBTX) ledger.Repositories {
	return ledger.Repositories{
		Pools:         NewPoolRepository(db),
		Holdings:      NewHoldingRepository(db),
		Distributions: NewDistributionRepository(db),
		Settlements:   NewSettlementRepository(db),
	}
}

// WithinTx runs fn in a READ COMMITTED transaction. Lost updates are
// prevented by the version checks in each repository.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ledger.Repositories) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				t.log.Warnw("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// Repos implements ledger.Transactor
func (t *Transactor) Repos() ledger.Repositories {
	return NewRepositories(t.db)
}

var _ ledger.Transactor = (*Transactor)(nil)
