package governance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/pool"
)

type fixture struct {
	pools *pool.InMemory
	svc   *InMemory
	clock *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newFixture(t *testing.T, tier feature.Tier) *fixture {
	t.Helper()
	pools := pool.NewInMemory()
	pools.Put(pool.Pool{
		ID:   "p1",
		Name: "Tenants Union",
		Tier: tier,
		Governance: pool.GovernanceSettings{
			ApprovalThreshold:  51,
			VotingDurationDays: 7,
		},
	})
	pools.PutMember(pool.Member{PoolID: "p1", UserID: "owner", Role: pool.RoleOwner})
	for _, uid := range []string{"u1", "u2", "u3", "u4", "u5"} {
		pools.PutMember(pool.Member{PoolID: "p1", UserID: uid, Role: pool.RoleMember})
	}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return &fixture{
		pools: pools,
		svc:   NewInMemory(pools, WithClock(clock.Now)),
		clock: clock,
	}
}

func TestCreateProposalSnapshotsEligibleVotersAndExpiry(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()

	prop, err := f.svc.CreateProposal(ctx, "p1", "u1", "Repaint lobby", "Use treasury funds")
	if err != nil {
		t.Fatal(err)
	}
	if prop.Status != StatusActive {
		t.Fatalf("new proposal must be active, got %s", prop.Status)
	}
	if prop.TotalEligibleVoters != 6 {
		t.Fatalf("expected 6 eligible voters, got %d", prop.TotalEligibleVoters)
	}
	wantExpiry := f.clock.Now().Add(7 * 24 * time.Hour)
	if !prop.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry %v, want %v", prop.ExpiresAt, wantExpiry)
	}

	// Later member growth must not change the snapshot.
	f.pools.PutMember(pool.Member{PoolID: "p1", UserID: "late", Role: pool.RoleMember})
	got, _ := f.svc.GetProposal(ctx, "p1", prop.ID)
	if got.TotalEligibleVoters != 6 {
		t.Fatalf("snapshot must be frozen, got %d", got.TotalEligibleVoters)
	}
}

func TestCreateProposalValidation(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()

	if _, err := f.svc.CreateProposal(ctx, "p1", "u1", "  ", "desc"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.CreateProposal(ctx, "p1", "stranger", "t", "d"); !errors.Is(err, pool.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	prop, err := f.svc.CreateProposal(ctx, "p1", "u1", "<b>Bold</b> move", "plain")
	if err != nil {
		t.Fatal(err)
	}
	if prop.Title != "Bold move" {
		t.Fatalf("markup not stripped: %q", prop.Title)
	}
}

func TestCastVoteAndTallies(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")

	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u1", ChoiceFor); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u2", ChoiceAgainst); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u3", ChoiceAbstain); err != nil {
		t.Fatal(err)
	}

	got, _ := f.svc.GetProposal(ctx, "p1", prop.ID)
	if got.VotesFor != 1 || got.VotesAgainst != 1 {
		t.Fatalf("unexpected tallies: %+v", got)
	}
	// Abstain holds the slot without moving tallies.
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u3", ChoiceFor); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("abstain must consume the vote slot, got %v", err)
	}

	m, _ := f.pools.GetMember(ctx, "p1", "u1")
	if m.VotingParticipation != 1 {
		t.Fatalf("participation not incremented: %d", m.VotingParticipation)
	}
}

func TestDuplicateVoteRejected(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")

	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u1", ChoiceFor); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u1", ChoiceAgainst); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	got, _ := f.svc.GetProposal(ctx, "p1", prop.ID)
	if got.VotesFor != 1 || got.VotesAgainst != 0 {
		t.Fatalf("second vote must not overwrite: %+v", got)
	}
}

func TestConcurrentDuplicateVotes(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.CastVote(ctx, "p1", prop.ID, "u2", ChoiceFor)
		}()
	}
	wg.Wait()

	got, _ := f.svc.GetProposal(ctx, "p1", prop.ID)
	if got.VotesFor != 1 {
		t.Fatalf("exactly one vote must persist, got %d", got.VotesFor)
	}
	votes, _ := f.svc.ListVotes(ctx, "p1", prop.ID)
	if len(votes) != 1 {
		t.Fatalf("exactly one vote record, got %d", len(votes))
	}
}

func TestVoteRejectedAfterWallClockExpiry(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")

	// Deadline passes but no scheduler has flipped the status yet.
	f.clock.Advance(8 * 24 * time.Hour)
	got, _ := f.svc.GetProposal(ctx, "p1", prop.ID)
	if got.Status != StatusActive {
		t.Fatalf("status should still read active, got %s", got.Status)
	}
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u2", ChoiceFor); !errors.Is(err, ErrVotingEnded) {
		t.Fatalf("expected ErrVotingEnded, got %v", err)
	}
}

func TestVoteWeightClamp(t *testing.T) {
	cases := []struct {
		tier feature.Tier
		rep  int
		want float64
	}{
		{feature.TierPro, 150, 2.0},
		{feature.TierPro, 10, 0.5},
		{feature.TierPro, 50, 1.0},
		{feature.TierPro, 75, 1.5},
		{feature.TierPro, 0, 1.0},  // no score yet -> baseline
		{feature.TierFree, 150, 1.0}, // tier not entitled
	}
	for _, c := range cases {
		if got := VoteWeight(c.tier, c.rep); got != c.want {
			t.Fatalf("VoteWeight(%s, %d) = %v, want %v", c.tier, c.rep, got, c.want)
		}
	}
}

func TestWeightedVoteCaptured(t *testing.T) {
	f := newFixture(t, feature.TierPro)
	ctx := context.Background()
	f.pools.PutMember(pool.Member{PoolID: "p1", UserID: "heavy", Role: pool.RoleMember, ReputationScore: 150})

	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")
	v, err := f.svc.CastVote(ctx, "p1", prop.ID, "heavy", ChoiceFor)
	if err != nil {
		t.Fatal(err)
	}
	if v.Weight != 2.0 {
		t.Fatalf("weight %v, want 2.0", v.Weight)
	}

	// Reputation changes after the cast must not affect the stored vote.
	_ = f.pools.SetReputation(ctx, "p1", "heavy", 1)
	votes, _ := f.svc.ListVotes(ctx, "p1", prop.ID)
	if votes[0].Weight != 2.0 {
		t.Fatalf("vote weight must be a snapshot, got %v", votes[0].Weight)
	}
	got, _ := f.svc.GetProposal(ctx, "p1", prop.ID)
	if got.WeightedVotesFor != 2.0 || got.VotesFor != 1 {
		t.Fatalf("unexpected tallies: %+v", got)
	}
}

func vote(t *testing.T, f *fixture, propID string, forVoters, againstVoters []string) {
	t.Helper()
	ctx := context.Background()
	for _, u := range forVoters {
		if _, err := f.svc.CastVote(ctx, "p1", propID, u, ChoiceFor); err != nil {
			t.Fatal(err)
		}
	}
	for _, u := range againstVoters {
		if _, err := f.svc.CastVote(ctx, "p1", propID, u, ChoiceAgainst); err != nil {
			t.Fatal(err)
		}
	}
}

func TestManualCloseMeetsThreshold(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")
	vote(t, f, prop.ID, []string{"u1", "u2", "u3"}, []string{"u4", "u5"})

	out, err := f.svc.Close(ctx, "p1", prop.ID, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusPassed {
		t.Fatalf("60%% approval at threshold 51 must pass, got %s", out.Status)
	}
	if out.ApprovalPercent != 60.0 {
		t.Fatalf("approval %v, want 60.0", out.ApprovalPercent)
	}
}

func TestManualCloseBelowThresholdRejects(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")
	vote(t, f, prop.ID, []string{"u1", "u2"}, []string{"u3", "u4", "u5"})

	out, err := f.svc.Close(ctx, "p1", prop.ID, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusRejected {
		t.Fatalf("manual close below threshold must reject, got %s", out.Status)
	}
}

func TestScheduledResolveBelowThresholdExpires(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")
	vote(t, f, prop.ID, []string{"u1", "u2"}, []string{"u3", "u4", "u5"})

	f.clock.Advance(8 * 24 * time.Hour)
	outs, err := f.svc.ResolveAllExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected one resolution, got %d", len(outs))
	}
	if outs[0].Status != StatusExpired {
		t.Fatalf("deadline miss below threshold must expire, got %s", outs[0].Status)
	}
	if outs[0].Trigger != TriggerScheduled {
		t.Fatalf("trigger %s", outs[0].Trigger)
	}
}

func TestScheduledResolveCleanPassIsPassed(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")
	vote(t, f, prop.ID, []string{"u1", "u2", "u3"}, []string{"u4"})

	f.clock.Advance(8 * 24 * time.Hour)
	outs, _ := f.svc.ResolveAllExpired(ctx)
	if len(outs) != 1 || outs[0].Status != StatusPassed {
		t.Fatalf("clean pass on auto-close must be passed, got %+v", outs)
	}
}

func TestResolveAllExpiredSkipsUnexpiredAndIsIdempotent(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	early, _ := f.svc.CreateProposal(ctx, "p1", "u1", "early", "d")
	f.clock.Advance(3 * 24 * time.Hour)
	late, _ := f.svc.CreateProposal(ctx, "p1", "u1", "late", "d")

	f.clock.Advance(5 * 24 * time.Hour) // early past deadline, late not
	outs, _ := f.svc.ResolveAllExpired(ctx)
	if len(outs) != 1 || outs[0].ProposalID != early.ID {
		t.Fatalf("only the expired proposal must resolve: %+v", outs)
	}

	// Overlapping re-run is a no-op.
	outs, _ = f.svc.ResolveAllExpired(ctx)
	if len(outs) != 0 {
		t.Fatalf("re-run must resolve nothing, got %+v", outs)
	}

	got, _ := f.svc.GetProposal(ctx, "p1", late.ID)
	if got.Status != StatusActive {
		t.Fatalf("unexpired proposal touched: %s", got.Status)
	}
}

func TestCloseIdempotentUnderManualScheduledRace(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")
	vote(t, f, prop.ID, []string{"u1"}, nil)
	f.clock.Advance(8 * 24 * time.Hour)

	var wg sync.WaitGroup
	results := make(chan Status, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if out, err := f.svc.Close(ctx, "p1", prop.ID, "owner"); err == nil {
			results <- out.Status
		}
	}()
	go func() {
		defer wg.Done()
		outs, _ := f.svc.ResolveAllExpired(ctx)
		for _, out := range outs {
			results <- out.Status
		}
	}()
	wg.Wait()
	close(results)

	var wins int
	for range results {
		wins++
	}
	if wins != 1 {
		t.Fatalf("status must transition exactly once, got %d winners", wins)
	}

	if _, err := f.svc.Close(ctx, "p1", prop.ID, "owner"); !errors.Is(err, ErrProposalClosed) {
		t.Fatalf("second close must fail cleanly, got %v", err)
	}
}

func TestCloseRequiresAdmin(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")

	if _, err := f.svc.Close(ctx, "p1", prop.ID, "u2"); !errors.Is(err, pool.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestNoVotesResolvesToZeroApproval(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")

	out, err := f.svc.Close(ctx, "p1", prop.ID, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if out.ApprovalPercent != 0 || out.Status != StatusRejected {
		t.Fatalf("no votes must be 0%% and rejected, got %+v", out)
	}
}

func TestTallySelectionFollowsTierAtResolutionTime(t *testing.T) {
	f := newFixture(t, feature.TierPro)
	ctx := context.Background()
	f.pools.PutMember(pool.Member{PoolID: "p1", UserID: "heavy", Role: pool.RoleMember, ReputationScore: 150})

	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")
	// Weighted: 2.0 for vs 1.0+1.0 against -> 50%, fails at 51.
	// Raw: 1 for vs 2 against -> 33%, also fails, but distinguishable below.
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "heavy", ChoiceFor); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u2", ChoiceAgainst); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u3", ChoiceAgainst); err != nil {
		t.Fatal(err)
	}

	// Downgrade before resolution: raw counts become authoritative.
	p, _ := f.pools.GetPool(ctx, "p1")
	p.Tier = feature.TierFree
	f.pools.Put(p)

	out, err := f.svc.Close(ctx, "p1", prop.ID, "owner")
	if err != nil {
		t.Fatal(err)
	}
	wantApproval := 100.0 / 3.0
	if diff := out.ApprovalPercent - wantApproval; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("approval %v, want raw-count %v", out.ApprovalPercent, wantApproval)
	}
}

func TestFrozenPoolRejectsGovernanceWrites(t *testing.T) {
	f := newFixture(t, feature.TierFree)
	ctx := context.Background()
	prop, _ := f.svc.CreateProposal(ctx, "p1", "u1", "t", "d")

	p, _ := f.pools.GetPool(ctx, "p1")
	p.Frozen = true
	f.pools.Put(p)

	if _, err := f.svc.CreateProposal(ctx, "p1", "u1", "t2", "d2"); !errors.Is(err, pool.ErrFrozen) {
		t.Fatalf("expected ErrFrozen on create, got %v", err)
	}
	if _, err := f.svc.CastVote(ctx, "p1", prop.ID, "u2", ChoiceFor); !errors.Is(err, pool.ErrFrozen) {
		t.Fatalf("expected ErrFrozen on vote, got %v", err)
	}
	if _, err := f.svc.GetProposal(ctx, "p1", prop.ID); err != nil {
		t.Fatalf("reads must still work: %v", err)
	}
}
