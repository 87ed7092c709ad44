// Package httpapi exposes the pool, treasury, governance and federation
// engines over JSON HTTP. Routing uses a plain ServeMux with manual path
// parsing; every mutating route requires a bearer token.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"commonpool.org/internal/federation"
	"commonpool.org/internal/governance"
	"commonpool.org/internal/obs"
	"commonpool.org/internal/pool"
	"commonpool.org/internal/stream"
	"commonpool.org/internal/treasury"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. It holds no domain state of its own.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	pools       pool.Store
	treasury    treasury.Service
	governance  governance.Service
	federations federation.Service
	events      *stream.Stream

	rateBurst  int
	ratePerSec int
}

// Deps bundles the engines the API fronts.
type Deps struct {
	Pools       pool.Store
	Treasury    treasury.Service
	Governance  governance.Service
	Federations federation.Service
	Events      *stream.Stream
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     version,
		pools:       deps.Pools,
		treasury:    deps.Treasury,
		governance:  deps.Governance,
		federations: deps.Federations,
		events:      deps.Events,
		rateBurst:   50,
		ratePerSec:  25,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/pools", a.handlePoolsCollection)
	a.mux.HandleFunc("/v1/pools/", a.handlePoolSubtree)

	a.mux.HandleFunc("/v1/federations", a.handleFederationsCollection)
	a.mux.HandleFunc("/v1/federations/", a.handleFederationSubtree)

	a.mux.HandleFunc("/v1/tiers/", a.handleTierFeatures)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wires the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// handlePoolSubtree dispatches /v1/pools/{poolID}[/...] by hand.
func (a *API) handlePoolSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/pools/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(rest, "/")
	poolID := parts[0]
	if poolID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case len(parts) == 1:
		a.getPool(w, r, poolID)
	case len(parts) == 2 && parts[1] == "members":
		a.listMembers(w, r, poolID)
	case len(parts) == 2 && parts[1] == "features":
		a.poolFeatures(w, r, poolID)
	case len(parts) == 2 && parts[1] == "events":
		a.poolEvents(w, r, poolID)
	case parts[1] == "treasury":
		a.handleTreasury(w, r, poolID, parts[2:])
	case parts[1] == "proposals":
		a.handleProposals(w, r, poolID, parts[2:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// handleFederationSubtree dispatches /v1/federations/{id}[/...].
func (a *API) handleFederationSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/federations/")
	parts := strings.Split(rest, "/")
	fedID := parts[0]
	if fedID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case len(parts) == 1:
		a.getFederation(w, r, fedID)
	case len(parts) == 2 && parts[1] == "join":
		a.joinFederation(w, r, fedID)
	case len(parts) == 2 && parts[1] == "contributions":
		a.federationContribute(w, r, fedID)
	case len(parts) == 2 && parts[1] == "overview":
		a.federationOverview(w, r, fedID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
