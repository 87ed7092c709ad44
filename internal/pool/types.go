// Package pool holds the collaborator contract the governance and treasury
// engines consume: pool metadata, membership records and the denormalized
// counters the engines increment. Pool lifecycle itself (creation, tier
// changes, freezing) is owned elsewhere.
package pool

import (
	"errors"
	"time"

	"commonpool.org/internal/feature"
)

// Role is a member's role within one pool.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// GovernanceSettings control how proposals in a pool are decided.
type GovernanceSettings struct {
	ApprovalThreshold        int  `json:"approval_threshold"` // percent, 0-100
	VotingDurationDays       int  `json:"voting_duration_days"`
	AllowReputationWeighting bool `json:"allow_reputation_weighting"`
}

const (
	defaultApprovalThreshold  = 51
	defaultVotingDurationDays = 7
)

// Normalized fills unset settings with platform defaults.
func (g GovernanceSettings) Normalized() GovernanceSettings {
	if g.ApprovalThreshold <= 0 || g.ApprovalThreshold > 100 {
		g.ApprovalThreshold = defaultApprovalThreshold
	}
	if g.VotingDurationDays <= 0 {
		g.VotingDurationDays = defaultVotingDurationDays
	}
	return g
}

// Pool is a governed community aggregate.
type Pool struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Tier        feature.Tier       `json:"tier"`
	OwnerID     string             `json:"owner_id"`
	MemberCount int                `json:"member_count"`
	Frozen      bool               `json:"frozen"`
	Governance  GovernanceSettings `json:"governance"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Member is a per-(pool, user) record. ReputationScore is recomputed by the
// reputation engine; the governance and treasury engines only read it and
// bump the participation counters.
type Member struct {
	PoolID              string    `json:"pool_id"`
	UserID              string    `json:"user_id"`
	Role                Role      `json:"role"`
	ReputationScore     int       `json:"reputation_score"`
	ContributionScore   int       `json:"contribution_score"`
	VotingParticipation int       `json:"voting_participation"`
	ProposalAccuracy    int       `json:"proposal_accuracy"`
	JoinedAt            time.Time `json:"joined_at"`
}

// IsAdmin reports whether the member may perform admin-level operations.
func (m Member) IsAdmin() bool {
	return m.Role == RoleAdmin || m.Role == RoleOwner
}

// Counter names the denormalized member counters the core increments.
type Counter string

const (
	CounterContributionScore   Counter = "contribution_score"
	CounterVotingParticipation Counter = "voting_participation"
)

var (
	ErrNotFound         = errors.New("pool not found")
	ErrMemberNotFound   = errors.New("not a member of this pool")
	ErrFrozen           = errors.New("pool is frozen")
	ErrPermissionDenied = errors.New("insufficient role for this operation")
)
