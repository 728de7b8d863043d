package repository

import (
	"context"
	"database/sql"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same repository
// code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore bundles the MySQL repositories behind the TxStore contract.
type SQLStore struct {
	*SectorRepo
	*SpotRepo
	*SessionRepo

	db   *sql.DB
	inTx bool
}

// NewSQLStore returns a store bound to the given database.
func NewSQLStore(db *sql.DB) *SQLStore { return bind(db, db, false) }

func bind(db *sql.DB, q querier, inTx bool) *SQLStore {
	return &SQLStore{
		SectorRepo:  &SectorRepo{db: q},
		SpotRepo:    &SpotRepo{db: q},
		SessionRepo: &SessionRepo{db: q},
		db:          db,
		inTx:        inTx,
	}
}

// WithinTx runs fn inside a READ COMMITTED transaction.  READ COMMITTED
// matters: the allocator re-reads the first free spot after losing a race
// and must see rows committed by the winner, which a REPEATABLE READ
// snapshot would hide.  Nested calls reuse the running transaction.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, bind(s.db, tx, true)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
