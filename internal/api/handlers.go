package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/command"
	"github.com/FriendsOfShopware/automation-bot/internal/dispatch"
	"github.com/FriendsOfShopware/automation-bot/internal/exchange"
	"github.com/FriendsOfShopware/automation-bot/internal/identity"
	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/go-chi/chi/v5"
)

// Stable error codes returned to callers alongside HTTP status.
const (
	codeMissingCredential  = "missing_credential"
	codeInvalidCredential  = "invalid_assertion"
	codeInvalidAPIKey      = "invalid_api_key"
	codeUntrustedActor     = "untrusted_actor"
	codeMissingID          = "missing_id"
	codeExchangeNotFound   = "exchange_not_found"
	codeExecutionNotFound  = "execution_not_found"
	codeInvalidTransition  = "invalid_transition"
	codeMintFailed         = "mint_failed"
	codeRevokeFailed       = "revoke_failed"
	codeUnknownCommand     = "unknown_command"
	codeWorkflowNotFound   = "workflow_not_found"
	codeMalformedPayload   = "malformed_payload"
	codeInternal           = "internal_error"
)

const maxReportBytes = 1 << 20 // 1 MiB

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ConfigHash:    s.config.ConfigHash,
	})
}

// verifyIdentity runs the identity check and writes the error response
// itself on failure. Returns the actor and whether to continue.
func (s *Server) verifyIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
	if err == nil {
		return actor, true
	}
	switch {
	case errors.Is(err, identity.ErrMissingCredential):
		s.writeError(w, http.StatusUnauthorized, codeMissingCredential, "identity assertion is missing")
	case errors.Is(err, identity.ErrUntrustedActor):
		s.writeError(w, http.StatusUnauthorized, codeUntrustedActor, "identity assertion actor is not trusted")
	default:
		s.writeError(w, http.StatusUnauthorized, codeInvalidCredential, "identity assertion is invalid")
	}
	return "", false
}

// handleGenerateCredential handles POST /credential/{executionID}.
//
// The runner presents its identity assertion and the execution id it was
// started with; the broker answers with a credential scoped to the exchange
// record's repository plus the full execution context. The ledger's
// pending->running transition makes the exchange single-shot: a second call
// for the same id is a replay and is rejected.
func (s *Server) handleGenerateCredential(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := codeInternal
	defer func() { s.sink.ExchangeCompleted(outcome, time.Since(start)) }()

	id := chi.URLParam(r, "executionID")
	if strings.TrimSpace(id) == "" {
		outcome = codeMissingID
		s.writeError(w, http.StatusBadRequest, codeMissingID, "execution id is missing")
		return
	}

	actor, ok := s.verifyIdentity(w, r)
	if !ok {
		outcome = codeInvalidCredential
		return
	}

	rec, err := exchange.GetRecord(r.Context(), s.exchange, id)
	if err != nil {
		if errors.Is(err, exchange.ErrNotFound) {
			outcome = codeExchangeNotFound
			s.writeError(w, http.StatusNotFound, codeExchangeNotFound, "exchange record not found or expired")
			return
		}
		s.logger.Error("exchange lookup failed", "execution_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "exchange lookup failed")
		return
	}

	err = s.executions.Transition(r.Context(), id, []ledger.Status{ledger.StatusPending}, ledger.StatusRunning, nil)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrExecutionNotFound):
			outcome = codeExecutionNotFound
			s.writeError(w, http.StatusNotFound, codeExecutionNotFound, "execution not found")
		case errors.Is(err, ledger.ErrInvalidTransition):
			outcome = codeInvalidTransition
			s.writeError(w, http.StatusConflict, codeInvalidTransition, "execution already exchanged or finished")
		default:
			s.logger.Error("ledger transition failed", "execution_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, codeInternal, "ledger transition failed")
		}
		return
	}

	cred, err := s.minter.Mint(r.Context(), rec.RepositoryID)
	if err != nil {
		outcome = codeMintFailed
		s.logger.Error("credential mint failed",
			"execution_id", id, "repository_id", rec.RepositoryID, "error", err)
		s.writeError(w, http.StatusBadGateway, codeMintFailed, "upstream credential mint failed")
		return
	}

	exec, err := s.executions.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("execution load failed after mint", "execution_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "execution load failed")
		return
	}

	s.logger.Info("credential minted",
		"execution_id", id,
		"actor", actor,
		"repository_id", rec.RepositoryID,
		"expires_at", cred.ExpiresAt,
	)
	outcome = "ok"
	respondJSON(w, http.StatusOK, CredentialResponse{
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		Execution: exec,
	})
}

// handleReport handles POST /report/{executionID}.
//
// The runner proves its identity twice: the OIDC assertion and the minted
// credential it obtained during the exchange. The command's post-execution
// handler runs before the terminal transition; a handler failure marks the
// execution failed without rolling back side effects already performed.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	if strings.TrimSpace(id) == "" {
		s.writeError(w, http.StatusBadRequest, codeMissingID, "execution id is missing")
		return
	}

	if _, ok := s.verifyIdentity(w, r); !ok {
		return
	}

	credential := r.Header.Get("X-Minted-Credential")
	if credential == "" {
		s.writeError(w, http.StatusUnauthorized, codeMissingCredential, "X-Minted-Credential header is missing")
		return
	}

	exec, err := s.executions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrExecutionNotFound) {
			s.writeError(w, http.StatusNotFound, codeExecutionNotFound, "execution not found")
			return
		}
		s.logger.Error("execution load failed", "execution_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "execution load failed")
		return
	}

	cmd, ok := s.registry.Resolve(exec.Command)
	if !ok {
		s.writeError(w, http.StatusNotFound, codeUnknownCommand, "command not found: "+exec.Command)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxReportBytes))
	if err != nil || len(payload) == 0 || !json.Valid(payload) {
		s.writeError(w, http.StatusBadRequest, codeMalformedPayload, "request body must be valid JSON")
		return
	}

	status, handlerErr := cmd.PostExecution(r.Context(), s.github, exec, payload)
	if handlerErr != nil {
		// At-least-once semantics: whatever the handler already did stays
		// done; the ledger records the failure.
		s.logger.Error("post-execution handler failed",
			"execution_id", id, "command", exec.Command, "error", handlerErr)
		status = ledger.StatusFailed
	}
	if !status.Terminal() {
		s.logger.Warn("handler returned non-terminal status, recording failure",
			"execution_id", id, "command", exec.Command, "status", status)
		status = ledger.StatusFailed
	}

	err = s.executions.Transition(r.Context(), id, []ledger.Status{ledger.StatusRunning}, status, payload)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrExecutionNotFound):
			s.writeError(w, http.StatusNotFound, codeExecutionNotFound, "execution not found")
		case errors.Is(err, ledger.ErrInvalidTransition):
			// Replay or double report. The caller must see this.
			s.writeError(w, http.StatusConflict, codeInvalidTransition, "execution is not running")
		default:
			s.logger.Error("ledger transition failed", "execution_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, codeInternal, "ledger transition failed")
		}
		return
	}
	s.sink.ReportCompleted(string(status))

	// Best-effort cleanup: the credential expires upstream on its own, so a
	// failed revoke is logged and swallowed, and the exchange record is
	// deleted regardless.
	s.revokeAndCleanup(r, id, credential)

	s.logger.Info("execution reported", "execution_id", id, "command", exec.Command, "status", status)
	respondJSON(w, http.StatusOK, ReportResponse{OK: true})
}

// handleRevokeCredential handles POST /credential/{executionID}/revoke.
func (s *Server) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	if strings.TrimSpace(id) == "" {
		s.writeError(w, http.StatusBadRequest, codeMissingID, "execution id is missing")
		return
	}

	if _, ok := s.verifyIdentity(w, r); !ok {
		return
	}

	credential := r.Header.Get("X-Minted-Credential")
	if credential == "" {
		s.writeError(w, http.StatusUnauthorized, codeMissingCredential, "X-Minted-Credential header is missing")
		return
	}

	if _, err := s.exchange.Get(r.Context(), id); err != nil {
		if errors.Is(err, exchange.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, codeExchangeNotFound, "exchange record not found or expired")
			return
		}
		s.logger.Error("exchange lookup failed", "execution_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "exchange lookup failed")
		return
	}

	revokeErr := s.minter.Revoke(r.Context(), credential)

	// The exchange record goes away even when the upstream revoke failed:
	// the credential's own expiry bounds the damage.
	if err := s.exchange.Delete(r.Context(), id); err != nil {
		s.logger.Error("exchange delete failed", "execution_id", id, "error", err)
	}

	if revokeErr != nil {
		s.sink.RevokeCompleted("error")
		s.logger.Error("credential revoke failed", "execution_id", id, "error", revokeErr)
		s.writeError(w, http.StatusInternalServerError, codeRevokeFailed, "upstream credential revoke failed")
		return
	}
	s.sink.RevokeCompleted("ok")
	respondJSON(w, http.StatusOK, ReportResponse{OK: true})
}

func (s *Server) revokeAndCleanup(r *http.Request, id, credential string) {
	if err := s.minter.Revoke(r.Context(), credential); err != nil {
		s.sink.RevokeCompleted("error")
		s.logger.Error("credential revoke failed", "execution_id", id, "error", err)
	} else {
		s.sink.RevokeCompleted("ok")
	}
	if err := s.exchange.Delete(r.Context(), id); err != nil {
		s.logger.Error("exchange delete failed", "execution_id", id, "error", err)
	}
}

// handleDispatch handles POST /dispatch (dashboard collaborators).
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeMalformedPayload, "invalid JSON body")
		return
	}
	if req.Command == "" || req.Repo == "" {
		s.writeError(w, http.StatusBadRequest, codeMalformedPayload, "command and repo are required")
		return
	}

	owner, repo, ok := strings.Cut(req.Repo, "/")
	if !ok || owner == "" || repo == "" {
		s.writeError(w, http.StatusBadRequest, codeMalformedPayload, "repo must be owner/name")
		return
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "unknown"
	}

	dispatchReq := dispatch.Request{
		Command:       req.Command,
		Args:          req.Args,
		TriggeredBy:   triggeredBy,
		TriggerSource: ledger.SourceDashboard,
	}

	switch req.Mode {
	case "ref":
		ref := strings.TrimSpace(req.Ref)
		if ref == "" {
			s.writeError(w, http.StatusBadRequest, codeMalformedPayload, "ref is required in ref mode")
			return
		}
		repoData, err := s.repos.GetRepository(r.Context(), owner, repo)
		if err != nil {
			s.logger.Error("repository lookup failed", "repo", req.Repo, "error", err)
			s.writeError(w, http.StatusBadGateway, codeInternal, "repository lookup failed")
			return
		}
		sha, err := s.repos.GetBranchSHA(r.Context(), owner, repo, ref)
		if err != nil {
			s.logger.Error("branch lookup failed", "repo", req.Repo, "ref", ref, "error", err)
			s.writeError(w, http.StatusBadGateway, codeInternal, "branch lookup failed")
			return
		}
		dispatchReq.Target = ledger.Target{
			RepositoryID: repoData.GetID(),
			HeadOwner:    owner,
			HeadRepo:     repo,
			HeadBranch:   ref,
			HeadSHA:      sha,
			BaseOwner:    owner,
			BaseRepo:     repo,
		}
	case "", "pr":
		if req.PR == 0 {
			s.writeError(w, http.StatusBadRequest, codeMalformedPayload, "pr is required in pr mode")
			return
		}
		pr, err := s.repos.GetPullRequest(r.Context(), owner, repo, req.PR)
		if err != nil {
			s.logger.Error("pull request lookup failed", "repo", req.Repo, "pr", req.PR, "error", err)
			s.writeError(w, http.StatusBadGateway, codeInternal, "pull request lookup failed")
			return
		}
		prNumber := req.PR
		dispatchReq.PRNumber = &prNumber
		dispatchReq.Target = ledger.Target{
			RepositoryID: pr.GetBase().GetRepo().GetID(),
			HeadOwner:    pr.GetHead().GetRepo().GetOwner().GetLogin(),
			HeadRepo:     pr.GetHead().GetRepo().GetName(),
			HeadBranch:   pr.GetHead().GetRef(),
			HeadSHA:      pr.GetHead().GetSHA(),
			BaseOwner:    pr.GetBase().GetRepo().GetOwner().GetLogin(),
			BaseRepo:     pr.GetBase().GetRepo().GetName(),
		}
	default:
		s.writeError(w, http.StatusBadRequest, codeMalformedPayload, "mode must be pr or ref")
		return
	}

	id, err := s.dispatcher.Dispatch(r.Context(), dispatchReq)
	if err != nil {
		switch {
		case errors.Is(err, command.ErrUnknownCommand):
			s.writeError(w, http.StatusBadRequest, codeUnknownCommand, "unknown command: "+req.Command)
		case errors.Is(err, dispatch.ErrWorkflowNotFound):
			s.writeError(w, http.StatusBadGateway, codeWorkflowNotFound, "workflow not found for command: "+req.Command)
		default:
			s.logger.Error("dispatch failed", "command", req.Command, "error", err)
			s.writeError(w, http.StatusInternalServerError, codeInternal, "dispatch failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, DispatchResponse{ExecutionID: id})
}

// handleListExecutions handles GET /executions (dashboard observability,
// not on the hot path).
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.executions.List(r.Context(), 50)
	if err != nil {
		s.logger.Error("execution list failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "execution list failed")
		return
	}
	if execs == nil {
		execs = []*ledger.Execution{}
	}
	respondJSON(w, http.StatusOK, execs)
}

// handleListCommands handles GET /commands.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.Infos(r.Context()))
}
