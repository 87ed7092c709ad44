// Package pg implements the pool, treasury, governance and federation
// contracts over PostgreSQL through database/sql with the pgx driver.
// Ledger appends and proposal settlement run in serializable transactions;
// serialization failures are retried a bounded number of times.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrConflict is returned when a transaction keeps losing serialization
// races after all retries.
var ErrConflict = errors.New("transaction conflict, retry the request")

const maxTxRetries = 3

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// The domain contracts reuse method names (Close, Overview), so each one is
// carried by its own view over the shared handle. pool.Store stays on Store
// itself: its methods are what the views promote.
type (
	TreasuryStore   struct{ *Store }
	GovernanceStore struct{ *Store }
	FederationStore struct{ *Store }
)

func (s *Store) Treasury() TreasuryStore { return TreasuryStore{s} }

func (s *Store) Governance() GovernanceStore { return GovernanceStore{s} }

func (s *Store) Federations() FederationStore { return FederationStore{s} }

// withSerializable runs fn inside a serializable transaction, retrying on
// serialization failures and deadlocks (SQLSTATE 40001, 40P01).
func (s *Store) withSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		err = fn(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
		} else {
			_ = tx.Rollback()
		}
		if !isRetryable(err) {
			return err
		}
	}
	return ErrConflict
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
