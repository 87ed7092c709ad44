package governance

import "commonpool.org/internal/feature"

// Tally returns the authoritative (for, for+against) pair for a proposal.
// The tier is the pool's tier at resolution time, not at creation: a tier
// downgrade between creation and resolution changes which tally counts.
func Tally(p Proposal, tier feature.Tier) (forTotal, total float64) {
	if feature.IsEnabled(tier, feature.ReputationWeightedVoting) {
		return p.WeightedVotesFor, p.WeightedVotesFor + p.WeightedVotesAgainst
	}
	return float64(p.VotesFor), float64(p.VotesFor + p.VotesAgainst)
}

// Approval converts a tally into a percentage. No non-abstaining votes means 0.
func Approval(forTotal, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return forTotal / total * 100
}

// Decide maps an approval percentage to the terminal status for a trigger.
// A clean pass is passed on either path; only the failure path distinguishes
// deliberate rejection (manual) from lapsing at the deadline (scheduled).
func Decide(approval float64, threshold int, trigger Trigger) Status {
	if approval >= float64(threshold) {
		return StatusPassed
	}
	if trigger == TriggerScheduled {
		return StatusExpired
	}
	return StatusRejected
}
