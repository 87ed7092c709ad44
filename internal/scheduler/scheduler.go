// Package scheduler runs the background jobs that keep governance and
// reputation state current: expired proposals are settled hourly and
// reputation scores are recomputed daily.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"commonpool.org/internal/audit"
	"commonpool.org/internal/governance"
	"commonpool.org/internal/obs"
	"commonpool.org/internal/reputation"
)

const (
	resolveSpec = "0 0 * * * *" // top of every hour
	recalcSpec  = "0 30 3 * * *"

	runTimeout = 5 * time.Minute
)

// Scheduler owns the cron runner and the job wiring.
type Scheduler struct {
	cron       *cron.Cron
	governance governance.Service
	reputation *reputation.Engine
	logger     *log.Logger
}

func New(gov governance.Service, rep *reputation.Engine) *Scheduler {
	logger := obs.Logger()
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logger))),
	)
	return &Scheduler{cron: c, governance: gov, reputation: rep, logger: logger}
}

// Start registers the jobs and launches the runner. Call Stop to drain.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(resolveSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		s.ResolvePass(ctx)
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(recalcSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		s.RecalcPass(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ResolvePass settles every proposal whose voting deadline has passed.
// Each settlement is audited and counted; failures are logged and the
// pass continues so one bad pool cannot starve the rest.
func (s *Scheduler) ResolvePass(ctx context.Context) int {
	outcomes, err := s.governance.ResolveAllExpired(ctx)
	if err != nil {
		s.logger.Printf(`{"type":"scheduler","job":"resolve_expired","error":%q}`, err.Error())
		return 0
	}
	for _, out := range outcomes {
		obs.ObserveResolution(string(out.Trigger), string(out.Status))
		_ = audit.Log(ctx, out.PoolID, audit.ActionProposalAutoClosed, audit.SystemActor,
			"proposal", out.ProposalID, map[string]any{
				"status":           out.Status,
				"approval_percent": out.ApprovalPercent,
				"threshold":        out.Threshold,
			})
	}
	if len(outcomes) > 0 {
		s.logger.Printf(`{"type":"scheduler","job":"resolve_expired","resolved":%d}`, len(outcomes))
	}
	return len(outcomes)
}

// RecalcPass recomputes reputation scores for pools whose tier carries
// weighted voting.
func (s *Scheduler) RecalcPass(ctx context.Context) int {
	n, err := s.reputation.RecalculateAll(ctx)
	if err != nil {
		s.logger.Printf(`{"type":"scheduler","job":"reputation_recalc","error":%q}`, err.Error())
		return 0
	}
	s.logger.Printf(`{"type":"scheduler","job":"reputation_recalc","updated":%d}`, n)
	return n
}
