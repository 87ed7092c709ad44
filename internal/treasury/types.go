package treasury

import (
	"errors"
	"time"

	"commonpool.org/internal/ids"
)

// DefaultCurrency is applied when the caller does not specify one.
const DefaultCurrency = "INR"

// Kind distinguishes money coming in from money going out.
type Kind string

const (
	KindContribution Kind = "contribution"
	KindExpense      Kind = "expense"
)

// Entry is one immutable record in a pool's append-only treasury ledger.
// Amount is signed minor units (negative for expenses). BalanceAfter is the
// running balance immediately following this entry, so the full sequence
// forms a prefix-sum chain starting at zero.
type Entry struct {
	ID           string    `json:"id"`
	PoolID       string    `json:"pool_id"`
	Kind         Kind      `json:"kind"`
	Amount       int64     `json:"amount"` // minor units, no floats
	Currency     string    `json:"currency"`
	Description  string    `json:"description"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	BalanceAfter int64     `json:"balance_after"`
}

// Summary is the fold over a pool's full ledger history.
type Summary struct {
	TotalContributions int64 `json:"total_contributions"`
	TotalExpenses      int64 `json:"total_expenses"`
	Balance            int64 `json:"balance"`
	EntryCount         int   `json:"entry_count"`
}

// Overview combines the current balance with a bounded recent-entries window.
type Overview struct {
	Balance            int64   `json:"balance"`
	TotalContributions int64   `json:"total_contributions"`
	TotalExpenses      int64   `json:"total_expenses"`
	Recent             []Entry `json:"recent"`
}

var (
	ErrInvalidAmount     = errors.New("amount must be > 0")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidKind       = errors.New("invalid entry kind")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

func newID() string {
	return ids.New()
}
