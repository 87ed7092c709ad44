package reputation

import (
	"context"
	"testing"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/pool"
)

func TestScoreBlend(t *testing.T) {
	if got := Score(1, 1, 1); got != 100 {
		t.Fatalf("top of every component must score 100, got %d", got)
	}
	if got := Score(0, 0, 0); got != 0 {
		t.Fatalf("zero counters must score 0, got %d", got)
	}
	// 0.5*40 + 1*30 + 0*30 = 50
	if got := Score(0.5, 1, 0); got != 50 {
		t.Fatalf("blend mismatch: got %d, want 50", got)
	}
}

func TestRecalculateAllSkipsFreePools(t *testing.T) {
	pools := pool.NewInMemory()
	pools.Put(pool.Pool{ID: "free", Tier: feature.TierFree})
	pools.PutMember(pool.Member{PoolID: "free", UserID: "a", Role: pool.RoleMember, ContributionScore: 10})

	pools.Put(pool.Pool{ID: "pro", Tier: feature.TierPro})
	pools.PutMember(pool.Member{PoolID: "pro", UserID: "b", Role: pool.RoleMember, ContributionScore: 10, VotingParticipation: 5, ProposalAccuracy: 2})
	pools.PutMember(pool.Member{PoolID: "pro", UserID: "c", Role: pool.RoleMember, ContributionScore: 5})

	e := New(pools)
	n, err := e.RecalculateAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("only pro pool members should update, got %d", n)
	}

	ctx := context.Background()
	a, _ := pools.GetMember(ctx, "free", "a")
	if a.ReputationScore != 0 {
		t.Fatalf("free pool member must be untouched, got %d", a.ReputationScore)
	}
	// b tops every component -> 100.
	b, _ := pools.GetMember(ctx, "pro", "b")
	if b.ReputationScore != 100 {
		t.Fatalf("expected 100, got %d", b.ReputationScore)
	}
	// c: contribution 5/10 -> 0.5*40 = 20, rest zero.
	c, _ := pools.GetMember(ctx, "pro", "c")
	if c.ReputationScore != 20 {
		t.Fatalf("expected 20, got %d", c.ReputationScore)
	}
}

func TestRecalculateAllIdempotent(t *testing.T) {
	pools := pool.NewInMemory()
	pools.Put(pool.Pool{ID: "pro", Tier: feature.TierPro})
	pools.PutMember(pool.Member{PoolID: "pro", UserID: "b", Role: pool.RoleMember, ContributionScore: 3})

	e := New(pools)
	if _, err := e.RecalculateAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _ := pools.GetMember(context.Background(), "pro", "b")
	if _, err := e.RecalculateAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	second, _ := pools.GetMember(context.Background(), "pro", "b")
	if first.ReputationScore != second.ReputationScore {
		t.Fatalf("recalc must be stable: %d then %d", first.ReputationScore, second.ReputationScore)
	}
}
