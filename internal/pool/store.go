package pool

import (
	"context"
	"sync"
)

// Store is the narrow read/increment contract the engines depend on.
type Store interface {
	GetPool(ctx context.Context, poolID string) (Pool, error)
	ListPools(ctx context.Context) ([]Pool, error)
	GetMember(ctx context.Context, poolID, userID string) (Member, error)
	ListMembers(ctx context.Context, poolID string) ([]Member, error)
	IncrementCounter(ctx context.Context, poolID, userID string, c Counter) error
	SetReputation(ctx context.Context, poolID, userID string, score int) error
}

// InMemory implements Store for tests and single-process deployments.
type InMemory struct {
	mu      sync.RWMutex
	pools   map[string]Pool
	members map[string]map[string]Member // poolID -> userID -> member
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty in-process store.
func NewInMemory() *InMemory {
	return &InMemory{
		pools:   make(map[string]Pool),
		members: make(map[string]map[string]Member),
	}
}

// Put inserts or replaces a pool record.
func (s *InMemory) Put(p Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.ID] = p
}

// PutMember inserts or replaces a membership record.
func (s *InMemory) PutMember(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.members[m.PoolID]
	if !ok {
		byUser = make(map[string]Member)
		s.members[m.PoolID] = byUser
	}
	byUser[m.UserID] = m
	if p, ok := s.pools[m.PoolID]; ok {
		p.MemberCount = len(byUser)
		s.pools[m.PoolID] = p
	}
}

func (s *InMemory) GetPool(ctx context.Context, poolID string) (Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[poolID]
	if !ok {
		return Pool{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemory) ListPools(ctx context.Context) ([]Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p)
	}
	return out, nil
}

func (s *InMemory) GetMember(ctx context.Context, poolID, userID string) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.pools[poolID]; !ok {
		return Member{}, ErrNotFound
	}
	m, ok := s.members[poolID][userID]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return m, nil
}

func (s *InMemory) ListMembers(ctx context.Context, poolID string) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.pools[poolID]; !ok {
		return nil, ErrNotFound
	}
	byUser := s.members[poolID]
	out := make([]Member, 0, len(byUser))
	for _, m := range byUser {
		out = append(out, m)
	}
	return out, nil
}

func (s *InMemory) IncrementCounter(ctx context.Context, poolID, userID string, c Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[poolID][userID]
	if !ok {
		return ErrMemberNotFound
	}
	switch c {
	case CounterContributionScore:
		m.ContributionScore++
	case CounterVotingParticipation:
		m.VotingParticipation++
	default:
		return ErrMemberNotFound
	}
	s.members[poolID][userID] = m
	return nil
}

func (s *InMemory) SetReputation(ctx context.Context, poolID, userID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[poolID][userID]
	if !ok {
		return ErrMemberNotFound
	}
	m.ReputationScore = score
	s.members[poolID][userID] = m
	return nil
}
