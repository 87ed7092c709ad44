package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"commonpool.org/internal/audit"
	"commonpool.org/internal/federation"
)

type createFederationRequest struct {
	PoolID          string `json:"pool_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	GovernanceModel string `json:"governance_model"`
}

type federationPoolRequest struct {
	PoolID string `json:"pool_id"`
}

type federationContributionRequest struct {
	PoolID      string `json:"pool_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (a *API) handleFederationsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req createFederationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	model := federation.GovernanceModel(strings.ToLower(strings.TrimSpace(req.GovernanceModel)))
	if model == "" {
		model = federation.ModelEqual
	}

	fed, err := a.federations.Create(r.Context(), actor, req.PoolID, req.Title, req.Description, model)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.Log(r.Context(), req.PoolID, audit.ActionFederationCreated, actor, "federation", fed.ID, map[string]any{
		"title":            fed.Title,
		"governance_model": fed.GovernanceModel,
	})

	w.Header().Set("Location", "/v1/federations/"+fed.ID)
	writeJSON(w, http.StatusCreated, fed)
}

func (a *API) getFederation(w http.ResponseWriter, r *http.Request, fedID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	fed, err := a.federations.Get(r.Context(), fedID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fed)
}

func (a *API) joinFederation(w http.ResponseWriter, r *http.Request, fedID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req federationPoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.federations.Join(r.Context(), fedID, req.PoolID, actor); err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.Log(r.Context(), req.PoolID, audit.ActionFederationJoined, actor, "federation", fedID, nil)

	writeJSON(w, http.StatusOK, map[string]any{"status": "joined"})
}

func (a *API) federationContribute(w http.ResponseWriter, r *http.Request, fedID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req federationContributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := a.federations.Contribute(r.Context(), fedID, req.PoolID, actor, req.Amount, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.Log(r.Context(), req.PoolID, audit.ActionFederationContribution, actor, "federation_entry", entry.ID, map[string]any{
		"amount":        strconv.FormatInt(req.Amount, 10),
		"balance_after": strconv.FormatInt(entry.BalanceAfter, 10),
	})

	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) federationOverview(w http.ResponseWriter, r *http.Request, fedID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ov, err := a.federations.Overview(r.Context(), fedID, limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
