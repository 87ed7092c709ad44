package federation

import (
	"context"
	"strings"
	"sync"
	"time"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/pool"
)

// Service manages federation groups and their shared war chest. Every
// operation is gated through the feature resolver against the acting pool's
// tier; there is no tier check anywhere else.
type Service interface {
	Create(ctx context.Context, actorID, initialPoolID, title, description string, model GovernanceModel) (Federation, error)
	Join(ctx context.Context, federationID, poolID, actorID string) error
	Contribute(ctx context.Context, federationID, poolID, actorID string, amount int64, description string) (Entry, error)
	Get(ctx context.Context, federationID string) (Federation, error)
	Overview(ctx context.Context, federationID string, limit int) (Overview, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu          sync.Mutex
	pools       pool.Store
	federations map[string]*Federation
	entries     map[string][]Entry // federationID -> ordered log
	now         func() time.Time
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty federation registry.
func NewInMemory(pools pool.Store) *InMemory {
	return &InMemory{
		pools:       pools,
		federations: make(map[string]*Federation),
		entries:     make(map[string][]Entry),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// requireOwner checks the actor owns a pool entitled to the given feature.
func (s *InMemory) requireOwner(ctx context.Context, poolID, actorID string, f feature.Feature) (pool.Pool, error) {
	p, err := s.pools.GetPool(ctx, poolID)
	if err != nil {
		return pool.Pool{}, err
	}
	if !feature.IsEnabled(p.Tier, f) {
		return pool.Pool{}, feature.ErrNotEntitled
	}
	member, err := s.pools.GetMember(ctx, poolID, actorID)
	if err != nil {
		return pool.Pool{}, err
	}
	if member.Role != pool.RoleOwner {
		return pool.Pool{}, pool.ErrPermissionDenied
	}
	return p, nil
}

func (s *InMemory) Create(ctx context.Context, actorID, initialPoolID, title, description string, model GovernanceModel) (Federation, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return Federation{}, ErrInvalidInput
	}
	if model == "" {
		model = ModelEqual
	}
	if _, err := s.requireOwner(ctx, initialPoolID, actorID, feature.FederationAccess); err != nil {
		return Federation{}, err
	}

	fed := Federation{
		ID:              newID(),
		Title:           title,
		Description:     description,
		MemberPools:     []string{initialPoolID},
		GovernanceModel: model,
		CreatedBy:       actorID,
		CreatedAt:       s.now(),
	}
	s.mu.Lock()
	s.federations[fed.ID] = &fed
	s.mu.Unlock()
	return fed, nil
}

func (s *InMemory) Join(ctx context.Context, federationID, poolID, actorID string) error {
	if _, err := s.requireOwner(ctx, poolID, actorID, feature.FederationAccess); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fed, ok := s.federations[federationID]
	if !ok {
		return ErrNotFound
	}
	for _, id := range fed.MemberPools {
		if id == poolID {
			return ErrAlreadyMember
		}
	}
	fed.MemberPools = append(fed.MemberPools, poolID)
	return nil
}

func (s *InMemory) Contribute(ctx context.Context, federationID, poolID, actorID string, amount int64, description string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	if _, err := s.requireOwner(ctx, poolID, actorID, feature.SharedWarChest); err != nil {
		return Entry{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "War chest contribution"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.federations[federationID]; !ok {
		return Entry{}, ErrNotFound
	}

	log := s.entries[federationID]
	var prior int64
	if len(log) > 0 {
		prior = log[len(log)-1].BalanceAfter
	}
	e := Entry{
		ID:           newID(),
		FederationID: federationID,
		PoolID:       poolID,
		Kind:         KindPoolContribution,
		Amount:       amount,
		Description:  description,
		CreatedBy:    actorID,
		CreatedAt:    s.now(),
		BalanceAfter: prior + amount,
	}
	s.entries[federationID] = append(log, e)
	return e, nil
}

func (s *InMemory) Get(ctx context.Context, federationID string) (Federation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fed, ok := s.federations[federationID]
	if !ok {
		return Federation{}, ErrNotFound
	}
	out := *fed
	out.MemberPools = append([]string(nil), fed.MemberPools...)
	return out, nil
}

func (s *InMemory) Overview(ctx context.Context, federationID string, limit int) (Overview, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	fed, err := s.Get(ctx, federationID)
	if err != nil {
		return Overview{}, err
	}

	s.mu.Lock()
	log := s.entries[federationID]
	var balance int64
	if len(log) > 0 {
		balance = log[len(log)-1].BalanceAfter
	}
	recent := make([]Entry, 0, limit)
	for i := len(log) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, log[i])
	}
	s.mu.Unlock()

	summaries := make([]PoolSummary, 0, len(fed.MemberPools))
	for _, id := range fed.MemberPools {
		p, err := s.pools.GetPool(ctx, id)
		if err != nil {
			continue
		}
		summaries = append(summaries, PoolSummary{PoolID: p.ID, Name: p.Name, MemberCount: p.MemberCount})
	}

	return Overview{
		Federation:  fed,
		MemberPools: summaries,
		Balance:     balance,
		Recent:      recent,
	}, nil
}
