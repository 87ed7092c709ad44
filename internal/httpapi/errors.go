package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/federation"
	"commonpool.org/internal/governance"
	"commonpool.org/internal/pool"
	"commonpool.org/internal/store/pg"
	"commonpool.org/internal/treasury"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps engine sentinel errors onto HTTP statuses. The
// mapping is shared across every handler so the same failure always looks
// the same on the wire.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, treasury.ErrInvalidAmount),
		errors.Is(err, treasury.ErrInvalidCurrency),
		errors.Is(err, treasury.ErrInvalidKind),
		errors.Is(err, governance.ErrInvalidChoice),
		errors.Is(err, governance.ErrInvalidInput),
		errors.Is(err, federation.ErrInvalidAmount),
		errors.Is(err, federation.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, pool.ErrPermissionDenied),
		errors.Is(err, pool.ErrFrozen),
		errors.Is(err, pool.ErrMemberNotFound),
		errors.Is(err, feature.ErrNotEntitled):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, pool.ErrNotFound),
		errors.Is(err, governance.ErrNotFound),
		errors.Is(err, federation.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, treasury.ErrInsufficientFunds),
		errors.Is(err, governance.ErrAlreadyVoted),
		errors.Is(err, governance.ErrProposalClosed),
		errors.Is(err, governance.ErrVotingEnded),
		errors.Is(err, governance.ErrNotExpired),
		errors.Is(err, federation.ErrAlreadyMember),
		errors.Is(err, pg.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
