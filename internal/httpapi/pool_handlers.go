package httpapi

import (
	"net/http"

	"commonpool.org/internal/feature"
)

func (a *API) handlePoolsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	pools, err := a.pools.ListPools(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": pools})
}

func (a *API) getPool(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, err := a.pools.GetPool(r.Context(), poolID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	members, err := a.pools.ListMembers(r.Context(), poolID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": members})
}

// poolFeatures resolves the acting pool's tier into its feature flags.
func (a *API) poolFeatures(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, err := a.pools.GetPool(r.Context(), poolID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":  p.ID,
		"tier":     p.Tier,
		"features": feature.FlagsFor(p.Tier),
	})
}
