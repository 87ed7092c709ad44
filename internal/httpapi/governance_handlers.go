package httpapi

import (
	"net/http"
	"strings"

	"commonpool.org/internal/audit"
	"commonpool.org/internal/governance"
	"commonpool.org/internal/obs"
	"commonpool.org/internal/stream"
)

type createProposalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type castVoteRequest struct {
	Choice string `json:"choice"`
}

func (a *API) handleProposals(w http.ResponseWriter, r *http.Request, poolID string, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPost:
			a.createProposal(w, r, poolID)
		case http.MethodGet:
			a.listProposals(w, r, poolID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(rest) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getProposal(w, r, poolID, rest[0])
	case len(rest) == 2 && rest[1] == "votes":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.castVote(w, r, poolID, rest[0])
	case len(rest) == 2 && rest[1] == "close":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.closeProposal(w, r, poolID, rest[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createProposal(w http.ResponseWriter, r *http.Request, poolID string) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req createProposalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	prop, err := a.governance.CreateProposal(r.Context(), poolID, actor, req.Title, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.Log(r.Context(), poolID, audit.ActionProposalCreated, actor, "proposal", prop.ID, map[string]any{
		"title":      prop.Title,
		"expires_at": prop.ExpiresAt,
	})

	w.Header().Set("Location", "/v1/pools/"+poolID+"/proposals/"+prop.ID)
	writeJSON(w, http.StatusCreated, prop)
}

func (a *API) listProposals(w http.ResponseWriter, r *http.Request, poolID string) {
	status := governance.Status(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	props, err := a.governance.ListProposals(r.Context(), poolID, status)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": props})
}

func (a *API) getProposal(w http.ResponseWriter, r *http.Request, poolID, proposalID string) {
	prop, err := a.governance.GetProposal(r.Context(), poolID, proposalID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prop)
}

func (a *API) castVote(w http.ResponseWriter, r *http.Request, poolID, proposalID string) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req castVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	choice, err := governance.ParseChoice(req.Choice)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	vote, err := a.governance.CastVote(r.Context(), poolID, proposalID, actor, choice)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.ObserveVote()
	_ = audit.Log(r.Context(), poolID, audit.ActionVoteCast, actor, "proposal", proposalID, map[string]any{
		"choice": vote.Choice,
		"weight": vote.Weight,
	})
	a.publishEvent(stream.Event{
		PoolID:  poolID,
		Type:    stream.EventVoteCast,
		Subject: proposalID,
		Actor:   actor,
		Detail:  string(vote.Choice),
	})

	writeJSON(w, http.StatusCreated, vote)
}

func (a *API) closeProposal(w http.ResponseWriter, r *http.Request, poolID, proposalID string) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	out, err := a.governance.Close(r.Context(), poolID, proposalID, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.ObserveResolution(string(out.Trigger), string(out.Status))
	_ = audit.Log(r.Context(), poolID, audit.ActionProposalClosed, actor, "proposal", proposalID, map[string]any{
		"status":           out.Status,
		"approval_percent": out.ApprovalPercent,
		"threshold":        out.Threshold,
	})
	a.publishEvent(stream.Event{
		PoolID:  poolID,
		Type:    stream.EventProposalResolved,
		Subject: proposalID,
		Actor:   actor,
		Detail:  string(out.Status),
	})

	writeJSON(w, http.StatusOK, out)
}
