// Package webhook turns GitHub issue comments into executions. A comment
// starting with a configured command prefix on a pull request dispatches the
// named command when the commenter's repository association is trusted.
package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FriendsOfShopware/automation-bot/internal/dispatch"
	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/google/go-github/v66/github"
)

// allowedAssociations are the author associations trusted to trigger
// commands from comments.
var allowedAssociations = map[string]struct{}{
	"COLLABORATOR": {},
	"OWNER":        {},
	"MEMBER":       {},
}

// Dispatcher creates executions from parsed comments.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (string, error)
}

// PullRequestService loads the pull request a comment was made on.
type PullRequestService interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, reaction string) error
}

// Config holds webhook handler configuration.
type Config struct {
	// Secret validates the X-Hub-Signature-256 header.
	Secret string
	// Prefixes are the comment prefixes that address the bot, for example
	// "@frosh-automation".
	Prefixes []string
}

// Handler processes GitHub webhook deliveries.
type Handler struct {
	config     Config
	dispatcher Dispatcher
	pulls      PullRequestService
	logger     *slog.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(cfg Config, dispatcher Dispatcher, pulls PullRequestService, logger *slog.Logger) *Handler {
	return &Handler{
		config:     cfg,
		dispatcher: dispatcher,
		pulls:      pulls,
		logger:     logger.With("component", "webhook"),
	}
}

// ServeHTTP implements http.Handler for POST /webhook/github.
//
// Deliveries that are not actionable (wrong event, no prefix, untrusted
// commenter) are acknowledged with 200 so GitHub does not retry them.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.config.Secret))
	if err != nil {
		h.logger.Warn("webhook signature validation failed", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Warn("webhook parse failed", "type", github.WebHookType(r), "error", err)
		http.Error(w, "unsupported payload", http.StatusBadRequest)
		return
	}

	comment, ok := event.(*github.IssueCommentEvent)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.handleIssueComment(r.Context(), comment); err != nil {
		h.logger.Error("issue comment handling failed", "error", err)
		http.Error(w, "comment handling failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleIssueComment(ctx context.Context, event *github.IssueCommentEvent) error {
	if event.GetAction() != "created" {
		return nil
	}
	if !event.GetIssue().IsPullRequest() {
		return nil
	}

	commandName, args, ok := h.parseCommand(event.GetComment().GetBody())
	if !ok {
		return nil
	}

	association := event.GetComment().GetAuthorAssociation()
	if _, trusted := allowedAssociations[association]; !trusted {
		h.logger.Info("ignoring command from untrusted commenter",
			"command", commandName,
			"association", association,
			"actor", event.GetSender().GetLogin(),
		)
		return nil
	}

	owner := event.GetRepo().GetOwner().GetLogin()
	repo := event.GetRepo().GetName()
	prNumber := event.GetIssue().GetNumber()

	pr, err := h.pulls.GetPullRequest(ctx, owner, repo, prNumber)
	if err != nil {
		return err
	}

	id, err := h.dispatcher.Dispatch(ctx, dispatch.Request{
		Command:  commandName,
		PRNumber: &prNumber,
		Target: ledger.Target{
			RepositoryID: pr.GetBase().GetRepo().GetID(),
			HeadOwner:    pr.GetHead().GetRepo().GetOwner().GetLogin(),
			HeadRepo:     pr.GetHead().GetRepo().GetName(),
			HeadBranch:   pr.GetHead().GetRef(),
			HeadSHA:      pr.GetHead().GetSHA(),
			BaseOwner:    pr.GetBase().GetRepo().GetOwner().GetLogin(),
			BaseRepo:     pr.GetBase().GetRepo().GetName(),
		},
		Args:          args,
		TriggeredBy:   event.GetSender().GetLogin(),
		TriggerSource: ledger.SourceWebhook,
	})
	if err != nil {
		return err
	}

	// Acknowledge the comment so the commenter sees the bot picked it up.
	if err := h.pulls.CreateCommentReaction(ctx, owner, repo, event.GetComment().GetID(), "+1"); err != nil {
		h.logger.Warn("comment reaction failed", "error", err)
	}

	h.logger.Info("dispatched from comment",
		"execution_id", id,
		"command", commandName,
		"repo", owner+"/"+repo,
		"pr", prNumber,
		"triggered_by", event.GetSender().GetLogin(),
	)
	return nil
}

// parseCommand extracts the command name and key=value arguments from a
// comment body. The first line must be
// "<prefix> <command> [key=value ...]"; tokens without "=" are ignored.
func (h *Handler) parseCommand(body string) (string, map[string]string, bool) {
	line := body
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 {
		return "", nil, false
	}
	matched := false
	for _, prefix := range h.config.Prefixes {
		if fields[0] == prefix {
			matched = true
			break
		}
	}
	if !matched {
		return "", nil, false
	}
	args := make(map[string]string)
	for _, field := range fields[2:] {
		if key, value, ok := strings.Cut(field, "="); ok && key != "" {
			args[key] = value
		}
	}
	return fields[1], args, true
}
