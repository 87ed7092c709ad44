package federation

import (
	"errors"
	"time"

	"commonpool.org/internal/ids"
)

// Kind classifies federation ledger entries. Only pool contributions are
// produced by this engine today; the other kinds exist for imported history.
type Kind string

const (
	KindPoolContribution Kind = "pool_contribution"
	KindExpense          Kind = "expense"
	KindDistribution     Kind = "distribution"
)

// GovernanceModel selects how member pools weigh in on federation decisions.
type GovernanceModel string

const (
	ModelEqual    GovernanceModel = "equal"
	ModelWeighted GovernanceModel = "weighted"
)

// Federation is a group of pools sharing a war chest.
type Federation struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	MemberPools     []string        `json:"member_pools"`
	GovernanceModel GovernanceModel `json:"governance_model"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Entry is the federation-scope analogue of a treasury entry, tagged with the
// source pool that sent the contribution. The balanceAfter chain works the
// same way as the pool ledger.
type Entry struct {
	ID           string    `json:"id"`
	FederationID string    `json:"federation_id"`
	PoolID       string    `json:"pool_id"`
	Kind         Kind      `json:"kind"`
	Amount       int64     `json:"amount"` // minor units
	Description  string    `json:"description"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	BalanceAfter int64     `json:"balance_after"`
}

// PoolSummary is the member-pool detail returned by Overview.
type PoolSummary struct {
	PoolID      string `json:"pool_id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// Overview is the aggregation contract: balance plus a bounded recent window.
type Overview struct {
	Federation  Federation    `json:"federation"`
	MemberPools []PoolSummary `json:"member_pools"`
	Balance     int64         `json:"balance"`
	Recent      []Entry       `json:"recent"`
}

var (
	ErrNotFound      = errors.New("federation not found")
	ErrAlreadyMember = errors.New("pool is already a member of this federation")
	ErrInvalidAmount = errors.New("amount must be > 0")
	ErrInvalidInput  = errors.New("title and description are required")
)

func newID() string {
	return ids.New()
}
