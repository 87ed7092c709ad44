package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/federation"
	"commonpool.org/internal/governance"
	"commonpool.org/internal/httpapi"
	"commonpool.org/internal/obs"
	"commonpool.org/internal/pool"
	"commonpool.org/internal/reputation"
	"commonpool.org/internal/scheduler"
	"commonpool.org/internal/store/pg"
	"commonpool.org/internal/stream"
	"commonpool.org/internal/treasury"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		probe httpapi.ReadyProbe
		deps  httpapi.Deps
		pools pool.Store
	)
	events := stream.New()

	// With a DSN all engines run on PostgreSQL; without one the process is
	// self-contained and in-memory, which is what local development wants.
	if dsn := os.Getenv("COMMONPOOL_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		probe = httpapi.ReadyProbe{DB: store.DB()}
		pools = store
		deps = httpapi.Deps{
			Pools:       store,
			Treasury:    store.Treasury(),
			Governance:  store.Governance(),
			Federations: store.Federations(),
			Events:      events,
		}
	} else {
		mem := pool.NewInMemory()
		seedDemoPools(mem)
		pools = mem
		deps = httpapi.Deps{
			Pools:       mem,
			Treasury:    treasury.NewInMemory(mem),
			Governance:  governance.NewInMemory(mem),
			Federations: federation.NewInMemory(mem),
			Events:      events,
		}
	}

	api := httpapi.New(probe, version, deps)

	sched := scheduler.New(deps.Governance, reputation.New(pools))
	if os.Getenv("COMMONPOOL_CRON_DISABLED") == "" {
		if err := sched.Start(); err != nil {
			log.Fatalf("start scheduler: %v", err)
		}
	}

	addr := os.Getenv("COMMONPOOL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting commonpool-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if os.Getenv("COMMONPOOL_CRON_DISABLED") == "" {
		sched.Stop()
	}
	log.Println("Stopped")
}

// seedDemoPools mirrors ops/migrations/seeds so the in-memory mode starts
// with something to poke at.
func seedDemoPools(mem *pool.InMemory) {
	now := time.Now().UTC()
	mem.Put(pool.Pool{
		ID:      "demo-garden",
		Name:    "Community Garden",
		Tier:    feature.TierPro,
		OwnerID: "demo-owner",
		Governance: pool.GovernanceSettings{
			ApprovalThreshold:        51,
			VotingDurationDays:       7,
			AllowReputationWeighting: true,
		},
		CreatedAt: now,
	})
	mem.Put(pool.Pool{
		ID:      "demo-library",
		Name:    "Tool Library",
		Tier:    feature.TierFederation,
		OwnerID: "demo-owner",
		Governance: pool.GovernanceSettings{
			ApprovalThreshold:        60,
			VotingDurationDays:       5,
			AllowReputationWeighting: true,
		},
		CreatedAt: now,
	})
	for _, m := range []pool.Member{
		{PoolID: "demo-garden", UserID: "demo-owner", Role: pool.RoleOwner},
		{PoolID: "demo-garden", UserID: "demo-admin", Role: pool.RoleAdmin},
		{PoolID: "demo-garden", UserID: "demo-member", Role: pool.RoleMember},
		{PoolID: "demo-library", UserID: "demo-owner", Role: pool.RoleOwner},
		{PoolID: "demo-library", UserID: "demo-member", Role: pool.RoleMember},
	} {
		m.JoinedAt = now
		mem.PutMember(m)
	}
}
