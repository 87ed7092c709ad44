package governance

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"time"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/ids"
)

// Status is the proposal lifecycle state. Active is the only non-terminal
// state; transitions are one-way and written exactly once.
type Status string

const (
	StatusActive   Status = "active"
	StatusPassed   Status = "passed"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Choice is a single voter's position. Abstain consumes the voter's slot but
// does not move either tally.
type Choice string

const (
	ChoiceFor     Choice = "for"
	ChoiceAgainst Choice = "against"
	ChoiceAbstain Choice = "abstain"
)

// ParseChoice validates a raw vote string.
func ParseChoice(raw string) (Choice, error) {
	switch Choice(raw) {
	case ChoiceFor, ChoiceAgainst, ChoiceAbstain:
		return Choice(raw), nil
	default:
		return "", ErrInvalidChoice
	}
}

// Trigger records which path resolved a proposal.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Proposal is mutable until it reaches a terminal status.
// TotalEligibleVoters and ExpiresAt are frozen at creation: later membership
// or settings changes affect only proposals created afterwards.
type Proposal struct {
	ID                   string    `json:"id"`
	PoolID               string    `json:"pool_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	CreatedBy            string    `json:"created_by"`
	Status               Status    `json:"status"`
	VotesFor             int       `json:"votes_for"`
	VotesAgainst         int       `json:"votes_against"`
	WeightedVotesFor     float64   `json:"weighted_votes_for"`
	WeightedVotesAgainst float64   `json:"weighted_votes_against"`
	TotalEligibleVoters  int       `json:"total_eligible_voters"`
	CreatedAt            time.Time `json:"created_at"`
	ExpiresAt            time.Time `json:"expires_at"`
}

// Vote is immutable once cast. Weight is captured at cast time and never
// recomputed, even if the voter's reputation changes afterwards.
type Vote struct {
	ProposalID string    `json:"proposal_id"`
	PoolID     string    `json:"pool_id"`
	VoterID    string    `json:"voter_id"`
	Choice     Choice    `json:"choice"`
	Weight     float64   `json:"weight"`
	CastAt     time.Time `json:"cast_at"`
}

// Outcome describes one resolution decision.
type Outcome struct {
	ProposalID      string  `json:"proposal_id"`
	PoolID          string  `json:"pool_id"`
	Status          Status  `json:"status"`
	ApprovalPercent float64 `json:"approval_percent"`
	Threshold       int     `json:"threshold"`
	Trigger         Trigger `json:"trigger"`
}

var (
	ErrNotFound       = errors.New("proposal not found")
	ErrProposalClosed = errors.New("proposal is no longer active")
	ErrVotingEnded    = errors.New("voting period has ended")
	ErrAlreadyVoted   = errors.New("already voted on this proposal")
	ErrInvalidChoice  = errors.New("vote must be for, against or abstain")
	ErrInvalidInput   = errors.New("title and description are required")
	ErrNotExpired     = errors.New("proposal has not reached its deadline")
)

// VoteWeight derives the tally weight for one voter. Weighting only applies
// when the tier enables it and the voter has a reputation score; the clamp
// keeps any single voter within 4x of a baseline member.
func VoteWeight(tier feature.Tier, reputationScore int) float64 {
	if !feature.IsEnabled(tier, feature.ReputationWeightedVoting) || reputationScore <= 0 {
		return 1
	}
	w := float64(reputationScore) / 50
	return math.Max(0.5, math.Min(2.0, w))
}

var htmlTags = regexp.MustCompile(`<[^>]*>`)

// Sanitize strips markup from user-supplied text before storage.
func Sanitize(s string) string {
	return strings.TrimSpace(htmlTags.ReplaceAllString(s, ""))
}

func newID() string {
	return ids.New()
}
