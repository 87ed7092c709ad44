package httpapi

import (
	"net/http"
	"strings"

	"commonpool.org/internal/feature"
)

// handleTierFeatures serves /v1/tiers/{tier}/features. Unknown tiers resolve
// to the free set, so the endpoint never 404s on tier name.
func (a *API) handleTierFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tiers/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "features" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	tier := feature.ParseTier(parts[0])
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":     tier,
		"features": feature.FlagsFor(tier),
		"enabled":  feature.Enabled(tier),
	})
}
