package api

import (
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
)

// CredentialResponse is returned by POST /credential/{executionId}: the
// minted token plus the full execution context, so the runner need not query
// anything else.
type CredentialResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Execution *ledger.Execution `json:"execution"`
}

// ReportResponse is returned by POST /report/{executionId} and the revoke
// endpoint.
type ReportResponse struct {
	OK bool `json:"ok"`
}

// DispatchRequest is the JSON body for POST /dispatch.
type DispatchRequest struct {
	Command string `json:"command"`
	// Repo is "owner/name".
	Repo string `json:"repo"`
	// Mode is "pr" (default) or "ref".
	Mode        string            `json:"mode,omitempty"`
	PR          int               `json:"pr,omitempty"`
	Ref         string            `json:"ref,omitempty"`
	Args        map[string]string `json:"args,omitempty"`
	TriggeredBy string            `json:"triggered_by,omitempty"`
}

// DispatchResponse is returned on a successful dispatch.
type DispatchResponse struct {
	ExecutionID string `json:"execution_id"`
}

// ErrorResponse is returned on errors. Code is stable; Error is
// human-readable.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ConfigHash    string `json:"config_hash,omitempty"`
}
