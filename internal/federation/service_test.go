package federation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/pool"
)

func newTestPools() *pool.InMemory {
	pools := pool.NewInMemory()
	pools.Put(pool.Pool{ID: "fed-pool", Name: "Fed Pool", Tier: feature.TierFederation})
	pools.PutMember(pool.Member{PoolID: "fed-pool", UserID: "owner", Role: pool.RoleOwner})
	pools.PutMember(pool.Member{PoolID: "fed-pool", UserID: "admin", Role: pool.RoleAdmin})

	pools.Put(pool.Pool{ID: "fed-pool-2", Name: "Second", Tier: feature.TierFederation})
	pools.PutMember(pool.Member{PoolID: "fed-pool-2", UserID: "owner2", Role: pool.RoleOwner})

	pools.Put(pool.Pool{ID: "pro-pool", Name: "Pro Pool", Tier: feature.TierPro})
	pools.PutMember(pool.Member{PoolID: "pro-pool", UserID: "owner3", Role: pool.RoleOwner})
	return pools
}

func TestCreateRequiresTierAndOwner(t *testing.T) {
	pools := newTestPools()
	s := NewInMemory(pools)
	ctx := context.Background()

	if _, err := s.Create(ctx, "owner3", "pro-pool", "t", "d", ModelEqual); !errors.Is(err, feature.ErrNotEntitled) {
		t.Fatalf("pro tier must not create federations, got %v", err)
	}
	if _, err := s.Create(ctx, "admin", "fed-pool", "t", "d", ModelEqual); !errors.Is(err, pool.ErrPermissionDenied) {
		t.Fatalf("admin role must not suffice, got %v", err)
	}

	fed, err := s.Create(ctx, "owner", "fed-pool", "Legal Defense", "Shared war chest", "")
	if err != nil {
		t.Fatal(err)
	}
	if fed.GovernanceModel != ModelEqual {
		t.Fatalf("default model should be equal, got %s", fed.GovernanceModel)
	}
	if len(fed.MemberPools) != 1 || fed.MemberPools[0] != "fed-pool" {
		t.Fatalf("initial pool not registered: %v", fed.MemberPools)
	}
}

func TestJoinDuplicateConflicts(t *testing.T) {
	pools := newTestPools()
	s := NewInMemory(pools)
	ctx := context.Background()

	fed, _ := s.Create(ctx, "owner", "fed-pool", "t", "d", ModelEqual)
	if err := s.Join(ctx, fed.ID, "fed-pool-2", "owner2"); err != nil {
		t.Fatal(err)
	}
	if err := s.Join(ctx, fed.ID, "fed-pool-2", "owner2"); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	if err := s.Join(ctx, "missing", "fed-pool-2", "owner2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContributeBuildsBalanceChain(t *testing.T) {
	pools := newTestPools()
	s := NewInMemory(pools)
	ctx := context.Background()
	fed, _ := s.Create(ctx, "owner", "fed-pool", "t", "d", ModelEqual)
	_ = s.Join(ctx, fed.ID, "fed-pool-2", "owner2")

	e1, err := s.Contribute(ctx, fed.ID, "fed-pool", "owner", 5000, "")
	if err != nil {
		t.Fatal(err)
	}
	if e1.BalanceAfter != 5000 || e1.PoolID != "fed-pool" {
		t.Fatalf("unexpected entry: %+v", e1)
	}
	e2, err := s.Contribute(ctx, fed.ID, "fed-pool-2", "owner2", 2500, "quarterly")
	if err != nil {
		t.Fatal(err)
	}
	if e2.BalanceAfter != 7500 {
		t.Fatalf("chain broken: %+v", e2)
	}

	if _, err := s.Contribute(ctx, fed.ID, "fed-pool", "owner", 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := s.Contribute(ctx, fed.ID, "pro-pool", "owner3", 100, ""); !errors.Is(err, feature.ErrNotEntitled) {
		t.Fatalf("war chest requires federation tier, got %v", err)
	}
}

func TestConcurrentContributionsSerialize(t *testing.T) {
	pools := newTestPools()
	s := NewInMemory(pools)
	ctx := context.Background()
	fed, _ := s.Create(ctx, "owner", "fed-pool", "t", "d", ModelEqual)

	var wg sync.WaitGroup
	const n = 40
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Contribute(ctx, fed.ID, "fed-pool", "owner", 100, ""); err != nil {
				t.Errorf("contribute: %v", err)
			}
		}()
	}
	wg.Wait()

	ov, err := s.Overview(ctx, fed.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	if ov.Balance != 100*n {
		t.Fatalf("lost update: balance %d, want %d", ov.Balance, 100*n)
	}
}

func TestOverviewWindowAndPools(t *testing.T) {
	pools := newTestPools()
	s := NewInMemory(pools)
	ctx := context.Background()
	fed, _ := s.Create(ctx, "owner", "fed-pool", "t", "d", ModelEqual)
	_ = s.Join(ctx, fed.ID, "fed-pool-2", "owner2")

	for i := 0; i < 25; i++ {
		if _, err := s.Contribute(ctx, fed.ID, "fed-pool", "owner", 10, ""); err != nil {
			t.Fatal(err)
		}
	}
	ov, err := s.Overview(ctx, fed.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ov.Recent) != 20 {
		t.Fatalf("default recent window should be 20, got %d", len(ov.Recent))
	}
	if len(ov.MemberPools) != 2 {
		t.Fatalf("expected 2 member pools, got %+v", ov.MemberPools)
	}
	if ov.Recent[0].BalanceAfter != 250 {
		t.Fatalf("recent not newest-first: %+v", ov.Recent[0])
	}
}
