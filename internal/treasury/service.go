package treasury

import (
	"context"
	"strings"
	"sync"
	"time"

	"commonpool.org/internal/pool"
)

// Service defines ledger operations for a pool treasury.
//
// Record applies the sign itself: callers always pass a positive amount and
// the kind decides whether it credits or debits the pool. The read of the
// prior balance and the append of the new entry happen under a single
// per-pool isolation boundary, so two concurrent writers can never compute
// the same prior balance.
type Service interface {
	Record(ctx context.Context, poolID, actorID string, kind Kind, amount int64, currency, description string) (Entry, error)
	Summarize(ctx context.Context, poolID string) (Summary, error)
	Overview(ctx context.Context, poolID string, limit int) (Overview, error)
	ListEntries(ctx context.Context, poolID string, limit int) ([]Entry, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu      sync.Mutex
	pools   pool.Store
	entries map[string][]Entry // poolID -> ordered append-only log
	now     func() time.Time
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates a fresh treasury ledger backed by the given pool store.
func NewInMemory(pools pool.Store) *InMemory {
	return &InMemory{
		pools:   pools,
		entries: make(map[string][]Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) Record(ctx context.Context, poolID, actorID string, kind Kind, amount int64, currency, description string) (Entry, error) {
	if kind != KindContribution && kind != KindExpense {
		return Entry{}, ErrInvalidKind
	}
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) > 8 {
		return Entry{}, ErrInvalidCurrency
	}

	p, err := s.pools.GetPool(ctx, poolID)
	if err != nil {
		return Entry{}, err
	}
	if p.Frozen {
		return Entry{}, pool.ErrFrozen
	}
	member, err := s.pools.GetMember(ctx, poolID, actorID)
	if err != nil {
		return Entry{}, err
	}
	if !member.IsAdmin() {
		return Entry{}, pool.ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.entries[poolID]
	var prior int64
	if len(log) > 0 {
		prior = log[len(log)-1].BalanceAfter
	}

	signed := amount
	if kind == KindExpense {
		if amount > prior {
			return Entry{}, ErrInsufficientFunds
		}
		signed = -amount
	}

	e := Entry{
		ID:           newID(),
		PoolID:       poolID,
		Kind:         kind,
		Amount:       signed,
		Currency:     currency,
		Description:  strings.TrimSpace(description),
		CreatedBy:    actorID,
		CreatedAt:    s.now(),
		BalanceAfter: prior + signed,
	}
	s.entries[poolID] = append(log, e)

	if kind == KindContribution {
		// Counts contributions, not amounts: the reputation input should not
		// reward raw wealth. The counter is denormalized and best-effort.
		_ = s.pools.IncrementCounter(ctx, poolID, actorID, pool.CounterContributionScore)
	}
	return e, nil
}

func (s *InMemory) Summarize(ctx context.Context, poolID string) (Summary, error) {
	if _, err := s.pools.GetPool(ctx, poolID); err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fold(s.entries[poolID]), nil
}

func (s *InMemory) Overview(ctx context.Context, poolID string, limit int) (Overview, error) {
	if _, err := s.pools.GetPool(ctx, poolID); err != nil {
		return Overview{}, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.entries[poolID]
	sum := fold(log)
	recent := make([]Entry, 0, limit)
	for i := len(log) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, log[i])
	}
	return Overview{
		Balance:            sum.Balance,
		TotalContributions: sum.TotalContributions,
		TotalExpenses:      sum.TotalExpenses,
		Recent:             recent,
	}, nil
}

func (s *InMemory) ListEntries(ctx context.Context, poolID string, limit int) ([]Entry, error) {
	if _, err := s.pools.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.entries[poolID]
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]Entry, len(log))
	copy(out, log)
	return out, nil
}

// fold derives the summary by replaying the full log. The stored balanceAfter
// chain must always agree with this fold.
func fold(log []Entry) Summary {
	var sum Summary
	for _, e := range log {
		switch e.Kind {
		case KindContribution:
			sum.TotalContributions += e.Amount
		case KindExpense:
			sum.TotalExpenses += -e.Amount
		}
	}
	if n := len(log); n > 0 {
		sum.Balance = log[n-1].BalanceAfter
	}
	sum.EntryCount = len(log)
	return sum
}
