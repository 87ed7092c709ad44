// Package audit emits append-only records of every state-changing operation.
// Writes are best-effort: a failed audit line never rolls back the operation
// it describes.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"commonpool.org/internal/auth"
	"commonpool.org/internal/obs"
)

// Actions recorded by the engines.
const (
	ActionTreasuryContribution   = "TREASURY_CONTRIBUTION"
	ActionTreasuryExpense        = "TREASURY_EXPENSE"
	ActionProposalCreated        = "PROPOSAL_CREATED"
	ActionVoteCast               = "VOTE_CAST"
	ActionProposalClosed         = "PROPOSAL_CLOSED"
	ActionProposalAutoClosed     = "PROPOSAL_AUTO_CLOSED"
	ActionFederationCreated      = "FEDERATION_CREATED"
	ActionFederationJoined       = "FEDERATION_JOINED"
	ActionFederationContribution = "FEDERATION_CONTRIBUTION"
)

// SystemActor identifies scheduler-driven actions.
const SystemActor = "system"

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Log writes one audit entry enriched with request and user context.
func Log(ctx context.Context, poolID, action, performedBy, targetResource, targetID string, details map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return errors.New("action name is required")
	}
	entry := map[string]any{
		"ts":              time.Now().UTC().Format(time.RFC3339Nano),
		"type":            "audit",
		"pool_id":         poolID,
		"action":          action,
		"performed_by":    performedBy,
		"target_resource": targetResource,
		"target_id":       targetID,
		"immutable":       true,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if performedBy == "" {
		if userID, ok := auth.UserIDFromContext(ctx); ok {
			entry["performed_by"] = userID
		}
	}
	if len(details) > 0 {
		copied := make(map[string]any, len(details))
		for k, v := range details {
			copied[k] = v
		}
		entry["details"] = copied
	} else {
		entry["details"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
