// Package api is the broker's HTTP surface: the runner-facing credential
// exchange protocol and the dashboard-facing dispatch/listing endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/command"
	"github.com/FriendsOfShopware/automation-bot/internal/dispatch"
	"github.com/FriendsOfShopware/automation-bot/internal/exchange"
	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/FriendsOfShopware/automation-bot/internal/metrics"
	"github.com/FriendsOfShopware/automation-bot/internal/minter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v66/github"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IdentityVerifier validates a runner's identity assertion.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawAssertion string) (string, error)
}

// CredentialMinter mints and revokes scoped credentials.
type CredentialMinter interface {
	Mint(ctx context.Context, repositoryID int64) (minter.Credential, error)
	Revoke(ctx context.Context, token string) error
}

// ExecutionStore is the ledger surface the endpoints need.
type ExecutionStore interface {
	Get(ctx context.Context, id string) (*ledger.Execution, error)
	List(ctx context.Context, limit int) ([]*ledger.Execution, error)
	Transition(ctx context.Context, id string, expected []ledger.Status, newStatus ledger.Status, result json.RawMessage) error
}

// CommandRegistry resolves commands and their dashboard infos.
type CommandRegistry interface {
	Resolve(name string) (*command.Descriptor, bool)
	Infos(ctx context.Context) []command.Info
}

// Dispatcher creates executions.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (string, error)
}

// RepoService resolves dispatch targets against GitHub.
type RepoService interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token for the dashboard-facing endpoints.
	APIKey string
	// ConfigHash is surfaced on /healthz.
	ConfigHash string
	// MetricsEnabled mounts GET /metrics.
	MetricsEnabled bool
}

// Server is the broker HTTP server.
type Server struct {
	config     Config
	verifier   IdentityVerifier
	minter     CredentialMinter
	exchange   exchange.Store
	executions ExecutionStore
	registry   CommandRegistry
	dispatcher Dispatcher
	repos      RepoService
	github     command.GitHubClient
	webhook    http.Handler
	sink       metrics.Sink
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// Deps collects the server's collaborators.
type Deps struct {
	Verifier   IdentityVerifier
	Minter     CredentialMinter
	Exchange   exchange.Store
	Executions ExecutionStore
	Registry   CommandRegistry
	Dispatcher Dispatcher
	Repos      RepoService
	GitHub     command.GitHubClient
	// Webhook, when set, is mounted at POST /webhook/github.
	Webhook http.Handler
	Sink    metrics.Sink
}

// New creates a new broker server instance.
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	sink := deps.Sink
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Server{
		config:     config,
		verifier:   deps.Verifier,
		minter:     deps.Minter,
		exchange:   deps.Exchange,
		executions: deps.Executions,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		repos:      deps.Repos,
		github:     deps.GitHub,
		webhook:    deps.Webhook,
		sink:       sink,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is canceled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("broker starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("broker shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.config.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	// Runner protocol: authenticated per-request via the identity assertion.
	r.Post("/credential/{executionID}", s.handleGenerateCredential)
	r.Post("/credential/{executionID}/revoke", s.handleRevokeCredential)
	r.Post("/report/{executionID}", s.handleReport)

	// Webhook trigger: authenticated by HMAC signature inside the handler.
	if s.webhook != nil {
		r.Method(http.MethodPost, "/webhook/github", s.webhook)
	}

	// Dashboard collaborators.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/dispatch", s.handleDispatch)
		r.Get("/executions", s.handleListExecutions)
		r.Get("/commands", s.handleListCommands)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with a stable code.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
