package governance

import (
	"context"
	"sync"
	"time"

	"commonpool.org/internal/pool"
)

// Service owns the proposal lifecycle: creation, vote casting, manual closing
// and deadline-driven auto-closing. Manual and scheduled resolution share one
// state-transition path guarded by an atomic "still active" precondition, so
// a racing admin and scheduler settle a proposal exactly once.
type Service interface {
	CreateProposal(ctx context.Context, poolID, actorID, title, description string) (Proposal, error)
	CastVote(ctx context.Context, poolID, proposalID, voterID string, choice Choice) (Vote, error)
	Close(ctx context.Context, poolID, proposalID, actorID string) (Outcome, error)
	ResolveAllExpired(ctx context.Context) ([]Outcome, error)
	GetProposal(ctx context.Context, poolID, proposalID string) (Proposal, error)
	ListProposals(ctx context.Context, poolID string, status Status) ([]Proposal, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu        sync.Mutex
	pools     pool.Store
	proposals map[string]*Proposal           // proposalID -> proposal
	byPool    map[string][]string            // poolID -> ordered proposal ids
	votes     map[string]map[string]Vote     // proposalID -> voterID -> vote
	now       func() time.Time
}

var _ Service = (*InMemory)(nil)

// Option configures InMemory.
type Option func(*InMemory)

// WithClock overrides the wall clock, used by expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *InMemory) { s.now = now }
}

// NewInMemory creates a fresh proposal store backed by the given pool store.
func NewInMemory(pools pool.Store, opts ...Option) *InMemory {
	s := &InMemory{
		pools:     pools,
		proposals: make(map[string]*Proposal),
		byPool:    make(map[string][]string),
		votes:     make(map[string]map[string]Vote),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) CreateProposal(ctx context.Context, poolID, actorID, title, description string) (Proposal, error) {
	title = Sanitize(title)
	description = Sanitize(description)
	if title == "" || description == "" {
		return Proposal{}, ErrInvalidInput
	}

	p, err := s.pools.GetPool(ctx, poolID)
	if err != nil {
		return Proposal{}, err
	}
	if p.Frozen {
		return Proposal{}, pool.ErrFrozen
	}
	if _, err := s.pools.GetMember(ctx, poolID, actorID); err != nil {
		return Proposal{}, err
	}

	settings := p.Governance.Normalized()
	now := s.now()
	prop := Proposal{
		ID:                  newID(),
		PoolID:              poolID,
		Title:               title,
		Description:         description,
		CreatedBy:           actorID,
		Status:              StatusActive,
		TotalEligibleVoters: p.MemberCount,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(settings.VotingDurationDays) * 24 * time.Hour),
	}

	s.mu.Lock()
	s.proposals[prop.ID] = &prop
	s.byPool[poolID] = append(s.byPool[poolID], prop.ID)
	s.votes[prop.ID] = make(map[string]Vote)
	s.mu.Unlock()

	return prop, nil
}

func (s *InMemory) CastVote(ctx context.Context, poolID, proposalID, voterID string, choice Choice) (Vote, error) {
	if _, err := ParseChoice(string(choice)); err != nil {
		return Vote{}, err
	}

	p, err := s.pools.GetPool(ctx, poolID)
	if err != nil {
		return Vote{}, err
	}
	if p.Frozen {
		return Vote{}, pool.ErrFrozen
	}
	member, err := s.pools.GetMember(ctx, poolID, voterID)
	if err != nil {
		return Vote{}, err
	}
	weight := VoteWeight(p.Tier, member.ReputationScore)

	s.mu.Lock()
	prop, ok := s.proposals[proposalID]
	if !ok || prop.PoolID != poolID {
		s.mu.Unlock()
		return Vote{}, ErrNotFound
	}
	if prop.Status != StatusActive {
		s.mu.Unlock()
		return Vote{}, ErrProposalClosed
	}
	// Expiry is a wall-clock comparison, not the stored status: a proposal
	// the scheduler has not flipped yet still rejects late votes.
	now := s.now()
	if !now.Before(prop.ExpiresAt) {
		s.mu.Unlock()
		return Vote{}, ErrVotingEnded
	}
	if _, voted := s.votes[proposalID][voterID]; voted {
		s.mu.Unlock()
		return Vote{}, ErrAlreadyVoted
	}

	v := Vote{
		ProposalID: proposalID,
		PoolID:     poolID,
		VoterID:    voterID,
		Choice:     choice,
		Weight:     weight,
		CastAt:     now,
	}
	s.votes[proposalID][voterID] = v
	switch choice {
	case ChoiceFor:
		prop.VotesFor++
		prop.WeightedVotesFor += weight
	case ChoiceAgainst:
		prop.VotesAgainst++
		prop.WeightedVotesAgainst += weight
	}
	s.mu.Unlock()

	// Denormalized counter, best effort.
	_ = s.pools.IncrementCounter(ctx, poolID, voterID, pool.CounterVotingParticipation)
	return v, nil
}

// Close resolves a proposal manually. Requires an admin or owner role.
func (s *InMemory) Close(ctx context.Context, poolID, proposalID, actorID string) (Outcome, error) {
	p, err := s.pools.GetPool(ctx, poolID)
	if err != nil {
		return Outcome{}, err
	}
	if p.Frozen {
		return Outcome{}, pool.ErrFrozen
	}
	member, err := s.pools.GetMember(ctx, poolID, actorID)
	if err != nil {
		return Outcome{}, err
	}
	if !member.IsAdmin() {
		return Outcome{}, pool.ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.proposals[proposalID]
	if !ok || prop.PoolID != poolID {
		return Outcome{}, ErrNotFound
	}
	return s.resolveLocked(prop, p, TriggerManual)
}

// ResolveAllExpired settles every active proposal whose deadline has passed.
// Safe to re-run on overlapping windows: a proposal already settled by either
// path is skipped by the status precondition.
func (s *InMemory) ResolveAllExpired(ctx context.Context) ([]Outcome, error) {
	pools, err := s.pools.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var outcomes []Outcome
	for _, p := range pools {
		s.mu.Lock()
		for _, id := range s.byPool[p.ID] {
			prop := s.proposals[id]
			if prop.Status != StatusActive || now.Before(prop.ExpiresAt) {
				continue
			}
			out, err := s.resolveLocked(prop, p, TriggerScheduled)
			if err != nil {
				continue
			}
			outcomes = append(outcomes, out)
		}
		s.mu.Unlock()
	}
	return outcomes, nil
}

// resolveLocked applies the one-way status transition. Callers hold s.mu.
func (s *InMemory) resolveLocked(prop *Proposal, p pool.Pool, trigger Trigger) (Outcome, error) {
	if prop.Status != StatusActive {
		return Outcome{}, ErrProposalClosed
	}
	threshold := p.Governance.Normalized().ApprovalThreshold
	forTotal, total := Tally(*prop, p.Tier)
	approval := Approval(forTotal, total)
	prop.Status = Decide(approval, threshold, trigger)
	return Outcome{
		ProposalID:      prop.ID,
		PoolID:          prop.PoolID,
		Status:          prop.Status,
		ApprovalPercent: approval,
		Threshold:       threshold,
		Trigger:         trigger,
	}, nil
}

func (s *InMemory) GetProposal(ctx context.Context, poolID, proposalID string) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.proposals[proposalID]
	if !ok || prop.PoolID != poolID {
		return Proposal{}, ErrNotFound
	}
	return *prop, nil
}

// ListProposals returns a pool's proposals, newest last. An empty status
// matches all.
func (s *InMemory) ListProposals(ctx context.Context, poolID string, status Status) ([]Proposal, error) {
	if _, err := s.pools.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Proposal
	for _, id := range s.byPool[poolID] {
		prop := s.proposals[id]
		if status != "" && prop.Status != status {
			continue
		}
		out = append(out, *prop)
	}
	return out, nil
}

// ListVotes returns the votes cast on a proposal.
func (s *InMemory) ListVotes(ctx context.Context, poolID, proposalID string) ([]Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.proposals[proposalID]
	if !ok || prop.PoolID != poolID {
		return nil, ErrNotFound
	}
	out := make([]Vote, 0, len(s.votes[proposalID]))
	for _, v := range s.votes[proposalID] {
		out = append(out, v)
	}
	return out, nil
}
