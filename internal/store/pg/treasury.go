package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"commonpool.org/internal/ids"
	"commonpool.org/internal/pool"
	"commonpool.org/internal/treasury"
)

var _ treasury.Service = TreasuryStore{}

const entryColumns = `
	id, pool_id, kind, amount, currency, description, created_by, created_at, balance_after`

func scanEntry(row interface{ Scan(...any) error }) (treasury.Entry, error) {
	var e treasury.Entry
	var kind string
	err := row.Scan(&e.ID, &e.PoolID, &kind, &e.Amount, &e.Currency,
		&e.Description, &e.CreatedBy, &e.CreatedAt, &e.BalanceAfter)
	if err != nil {
		return treasury.Entry{}, err
	}
	e.Kind = treasury.Kind(kind)
	return e, nil
}

// Record appends one ledger entry. The pool row is locked for the duration
// of the transaction so the prior-balance read and the insert are atomic:
// the balance_after chain can never fork under concurrent writers.
func (s TreasuryStore) Record(ctx context.Context, poolID, actorID string, kind treasury.Kind, amount int64, currency, description string) (treasury.Entry, error) {
	if kind != treasury.KindContribution && kind != treasury.KindExpense {
		return treasury.Entry{}, treasury.ErrInvalidKind
	}
	if amount <= 0 {
		return treasury.Entry{}, treasury.ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = treasury.DefaultCurrency
	}
	if len(currency) > 8 {
		return treasury.Entry{}, treasury.ErrInvalidCurrency
	}

	member, err := s.GetMember(ctx, poolID, actorID)
	if err != nil {
		return treasury.Entry{}, err
	}
	if !member.IsAdmin() {
		return treasury.Entry{}, pool.ErrPermissionDenied
	}

	var entry treasury.Entry
	err = s.withSerializable(ctx, func(tx *sql.Tx) error {
		var frozen bool
		err := tx.QueryRowContext(ctx, `select frozen from pools where id=$1 for update`, poolID).Scan(&frozen)
		if err == sql.ErrNoRows {
			return pool.ErrNotFound
		}
		if err != nil {
			return err
		}
		if frozen {
			return pool.ErrFrozen
		}

		var prior int64
		err = tx.QueryRowContext(ctx, `
			select balance_after from treasury_entries
			where pool_id=$1
			order by created_at desc, id desc
			limit 1
		`, poolID).Scan(&prior)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		signed := amount
		if kind == treasury.KindExpense {
			if amount > prior {
				return treasury.ErrInsufficientFunds
			}
			signed = -amount
		}

		entry = treasury.Entry{
			ID:           ids.New(),
			PoolID:       poolID,
			Kind:         kind,
			Amount:       signed,
			Currency:     currency,
			Description:  strings.TrimSpace(description),
			CreatedBy:    actorID,
			CreatedAt:    time.Now().UTC(),
			BalanceAfter: prior + signed,
		}
		_, err = tx.ExecContext(ctx, `
			insert into treasury_entries(id, pool_id, kind, amount, currency, description, created_by, created_at, balance_after)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, entry.ID, entry.PoolID, string(entry.Kind), entry.Amount, entry.Currency,
			entry.Description, entry.CreatedBy, entry.CreatedAt, entry.BalanceAfter)
		return err
	})
	if err != nil {
		return treasury.Entry{}, err
	}

	if kind == treasury.KindContribution {
		_ = s.IncrementCounter(ctx, poolID, actorID, pool.CounterContributionScore)
	}
	return entry, nil
}

func (s TreasuryStore) Summarize(ctx context.Context, poolID string) (treasury.Summary, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return treasury.Summary{}, err
	}
	var sum treasury.Summary
	err := s.db.QueryRowContext(ctx, `
		select
			coalesce(sum(amount) filter (where kind='contribution'), 0),
			coalesce(-sum(amount) filter (where kind='expense'), 0),
			coalesce((select balance_after from treasury_entries
				where pool_id=$1 order by created_at desc, id desc limit 1), 0),
			count(*)
		from treasury_entries where pool_id=$1
	`, poolID).Scan(&sum.TotalContributions, &sum.TotalExpenses, &sum.Balance, &sum.EntryCount)
	if err != nil {
		return treasury.Summary{}, err
	}
	return sum, nil
}

func (s TreasuryStore) Overview(ctx context.Context, poolID string, limit int) (treasury.Overview, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	sum, err := s.Summarize(ctx, poolID)
	if err != nil {
		return treasury.Overview{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select`+entryColumns+` from treasury_entries
		where pool_id=$1
		order by created_at desc, id desc
		limit $2
	`, poolID, limit)
	if err != nil {
		return treasury.Overview{}, err
	}
	defer rows.Close()

	recent := make([]treasury.Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return treasury.Overview{}, err
		}
		recent = append(recent, e)
	}
	if err := rows.Err(); err != nil {
		return treasury.Overview{}, err
	}
	return treasury.Overview{
		Balance:            sum.Balance,
		TotalContributions: sum.TotalContributions,
		TotalExpenses:      sum.TotalExpenses,
		Recent:             recent,
	}, nil
}

func (s TreasuryStore) ListEntries(ctx context.Context, poolID string, limit int) ([]treasury.Entry, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select * from (
			select`+entryColumns+` from treasury_entries
			where pool_id=$1
			order by created_at desc, id desc
			limit $2
		) window_rows order by created_at asc, id asc
	`, poolID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []treasury.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
