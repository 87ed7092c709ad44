// Package reputation recomputes member reputation scores in bulk from the
// denormalized participation counters. It is driven by the scheduler; the
// governance engine only ever reads the resulting score.
package reputation

import (
	"context"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/pool"
)

const (
	weightContribution  = 0.4
	weightParticipation = 0.3
	weightAccuracy      = 0.3
	maxScore            = 100
)

// Engine recalculates reputation for every pool whose tier uses it.
type Engine struct {
	pools pool.Store
}

// New creates a reputation engine over the given pool store.
func New(pools pool.Store) *Engine {
	return &Engine{pools: pools}
}

// RecalculateAll normalizes each member's counters against the pool maximum
// and blends them into a 0-100 score. Pools whose tier does not enable
// weighted voting are skipped entirely. Returns the number of members updated.
// Idempotent: re-running without counter changes writes the same scores.
func (e *Engine) RecalculateAll(ctx context.Context) (int, error) {
	pools, err := e.pools.ListPools(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, p := range pools {
		if !feature.IsEnabled(p.Tier, feature.ReputationWeightedVoting) {
			continue
		}
		members, err := e.pools.ListMembers(ctx, p.ID)
		if err != nil {
			return updated, err
		}
		maxContrib, maxVoting, maxAccuracy := 1, 1, 1
		for _, m := range members {
			maxContrib = max(maxContrib, m.ContributionScore)
			maxVoting = max(maxVoting, m.VotingParticipation)
			maxAccuracy = max(maxAccuracy, m.ProposalAccuracy)
		}
		for _, m := range members {
			score := Score(
				float64(m.ContributionScore)/float64(maxContrib),
				float64(m.VotingParticipation)/float64(maxVoting),
				float64(m.ProposalAccuracy)/float64(maxAccuracy),
			)
			if err := e.pools.SetReputation(ctx, p.ID, m.UserID, score); err != nil {
				return updated, err
			}
			updated++
		}
	}
	return updated, nil
}

// Score blends normalized (0-1) components into the capped 0-100 score.
func Score(contribution, participation, accuracy float64) int {
	raw := contribution*100*weightContribution +
		participation*100*weightParticipation +
		accuracy*100*weightAccuracy
	score := int(raw + 0.5)
	if score > maxScore {
		score = maxScore
	}
	return score
}
