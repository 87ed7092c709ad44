package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"commonpool.org/internal/audit"
	"commonpool.org/internal/obs"
	"commonpool.org/internal/stream"
	"commonpool.org/internal/treasury"
)

type recordEntryRequest struct {
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

func (a *API) handleTreasury(w http.ResponseWriter, r *http.Request, poolID string, rest []string) {
	if len(rest) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch rest[0] {
	case "entries":
		switch r.Method {
		case http.MethodPost:
			a.recordEntry(w, r, poolID)
		case http.MethodGet:
			a.listEntries(w, r, poolID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "summary":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.treasurySummary(w, r, poolID)
	case "overview":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.treasuryOverview(w, r, poolID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) recordEntry(w http.ResponseWriter, r *http.Request, poolID string) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req recordEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	kind := treasury.Kind(strings.ToLower(strings.TrimSpace(req.Kind)))
	entry, err := a.treasury.Record(r.Context(), poolID, actor, kind, req.Amount, req.Currency, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.ObserveLedgerEntry(string(entry.Kind))
	action := audit.ActionTreasuryContribution
	if entry.Kind == treasury.KindExpense {
		action = audit.ActionTreasuryExpense
	}
	_ = audit.Log(r.Context(), poolID, action, actor, "treasury_entry", entry.ID, map[string]any{
		"amount":        strconv.FormatInt(req.Amount, 10),
		"currency":      entry.Currency,
		"balance_after": strconv.FormatInt(entry.BalanceAfter, 10),
	})

	a.publishEvent(stream.Event{
		PoolID:  poolID,
		Type:    stream.EventTreasuryEntry,
		Subject: entry.ID,
		Actor:   actor,
		Amount:  entry.Amount,
		Detail:  string(entry.Kind),
	})

	w.Header().Set("Location", "/v1/pools/"+poolID+"/treasury/entries")
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) listEntries(w http.ResponseWriter, r *http.Request, poolID string) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.treasury.ListEntries(r.Context(), poolID, limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *API) treasurySummary(w http.ResponseWriter, r *http.Request, poolID string) {
	sum, err := a.treasury.Summarize(r.Context(), poolID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) treasuryOverview(w http.ResponseWriter, r *http.Request, poolID string) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ov, err := a.treasury.Overview(r.Context(), poolID, limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}
