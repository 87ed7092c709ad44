// Package feature resolves subscription tiers into capability sets.
// It is the single authority on entitlement: every weighting, federation
// or analytics decision must go through IsEnabled rather than comparing
// tier strings ad hoc.
package feature

import (
	"errors"
	"sort"
)

// Tier is a pool subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierFederation Tier = "federation"
)

// Feature is a named capability gated by tier.
type Feature string

const (
	ReputationWeightedVoting Feature = "reputationWeightedVoting"
	AdvancedAnalytics        Feature = "advancedAnalytics"
	CostProjection           Feature = "costProjection"
	PrivatePools             Feature = "privatePools"
	CustomGovernance         Feature = "customGovernance"
	DataExport               Feature = "dataExport"
	FederationAccess         Feature = "federationAccess"
	SharedWarChest           Feature = "sharedWarChest"
	InterPoolVoting          Feature = "interPoolVoting"
	FederationAnalytics      Feature = "federationAnalytics"
)

// ErrNotEntitled indicates the operation requires a higher subscription tier.
var ErrNotEntitled = errors.New("feature requires a higher subscription tier")

// Set maps features to their enabled state for one tier.
type Set map[Feature]bool

// The mapping is static data, not behavior: a table, not a type switch.
var tierSets = map[Tier]Set{
	TierFree: {
		ReputationWeightedVoting: false,
		AdvancedAnalytics:        false,
		CostProjection:           false,
		PrivatePools:             false,
		CustomGovernance:         false,
		DataExport:               false,
		FederationAccess:         false,
		SharedWarChest:           false,
		InterPoolVoting:          false,
		FederationAnalytics:      false,
	},
	TierPro: {
		ReputationWeightedVoting: true,
		AdvancedAnalytics:        true,
		CostProjection:           true,
		PrivatePools:             true,
		CustomGovernance:         true,
		DataExport:               true,
		FederationAccess:         false,
		SharedWarChest:           false,
		InterPoolVoting:          false,
		FederationAnalytics:      false,
	},
	TierFederation: {
		ReputationWeightedVoting: true,
		AdvancedAnalytics:        true,
		CostProjection:           true,
		PrivatePools:             true,
		CustomGovernance:         true,
		DataExport:               true,
		FederationAccess:         true,
		SharedWarChest:           true,
		InterPoolVoting:          true,
		FederationAnalytics:      true,
	},
}

// FlagsFor returns the capability set for a tier. Unknown tiers resolve to
// the free set: entitlement fails closed, never open.
func FlagsFor(tier Tier) Set {
	src, ok := tierSets[tier]
	if !ok {
		src = tierSets[TierFree]
	}
	out := make(Set, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// IsEnabled reports whether a feature is available on the given tier.
func IsEnabled(tier Tier, f Feature) bool {
	src, ok := tierSets[tier]
	if !ok {
		src = tierSets[TierFree]
	}
	return src[f]
}

// Enabled returns the sorted names of all features available on the tier.
func Enabled(tier Tier) []Feature {
	set := FlagsFor(tier)
	var out []Feature
	for f, on := range set {
		if on {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseTier normalizes a raw tier string. Unknown values map to free.
func ParseTier(raw string) Tier {
	switch Tier(raw) {
	case TierPro:
		return TierPro
	case TierFederation:
		return TierFederation
	default:
		return TierFree
	}
}
