// Package dispatch creates executions. A dispatch durably records the
// execution, seeds the exchange store, and triggers the external workflow
// run, passing only the execution id across the boundary. The runner fetches
// everything else back through the credential exchange.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/command"
	"github.com/FriendsOfShopware/automation-bot/internal/exchange"
	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/FriendsOfShopware/automation-bot/internal/metrics"
	"github.com/google/uuid"
)

var ErrWorkflowNotFound = errors.New("workflow not found for command")

// ExchangeTTL bounds how long a runner has to start and perform the
// credential exchange. Non-renewable.
const ExchangeTTL = 10 * time.Minute

// Config locates the repository hosting the automation workflows.
type Config struct {
	// BotOwner/BotRepo is the repository whose workflows are dispatched.
	BotOwner string
	BotRepo  string
	// WorkflowRef is the git ref workflow runs are started on.
	WorkflowRef string
}

// Request carries everything needed to dispatch one command.
type Request struct {
	Command       string
	Target        ledger.Target
	PRNumber      *int
	Args          map[string]string
	TriggeredBy   string
	TriggerSource ledger.TriggerSource
}

// Orchestrator composes the registry, ledger, exchange store, and workflow
// transport into the dispatch operation.
type Orchestrator struct {
	cfg       Config
	registry  *command.Registry
	ledger    *ledger.Store
	exchange  exchange.Store
	workflows WorkflowService
	sink      metrics.Sink
	logger    *slog.Logger
}

func NewOrchestrator(
	cfg Config,
	registry *command.Registry,
	ledgerStore *ledger.Store,
	exchangeStore exchange.Store,
	workflows WorkflowService,
	sink metrics.Sink,
	logger *slog.Logger,
) *Orchestrator {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Orchestrator{
		cfg:       cfg,
		registry:  registry,
		ledger:    ledgerStore,
		exchange:  exchangeStore,
		workflows: workflows,
		sink:      sink,
		logger:    logger,
	}
}

// Dispatch creates a pending execution and triggers its workflow run.
// Returns the execution id, the sole correlation key between the ledger,
// the exchange store, and the runner's inputs.
//
// Once Dispatch returns the work has either fully committed (ledger row
// exists, workflow triggered) or failed outright; a workflow that was
// triggered but whose trigger response was lost is not compensated.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) (string, error) {
	id, err := o.dispatch(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.sink.DispatchCompleted(req.Command, string(req.TriggerSource), outcome)
	return id, err
}

func (o *Orchestrator) dispatch(ctx context.Context, req Request) (string, error) {
	cmd, ok := o.registry.Resolve(req.Command)
	if !ok {
		return "", fmt.Errorf("%w: %q", command.ErrUnknownCommand, req.Command)
	}

	workflowID, err := o.workflows.FindWorkflowID(ctx, o.cfg.BotOwner, o.cfg.BotRepo, cmd.WorkflowPath)
	if err != nil {
		return "", fmt.Errorf("resolve workflow for %q: %w", req.Command, err)
	}
	if workflowID == 0 {
		return "", fmt.Errorf("%w: %q (%s)", ErrWorkflowNotFound, req.Command, cmd.WorkflowPath)
	}

	id := uuid.NewString()

	exec := &ledger.Execution{
		ID:            id,
		Command:       req.Command,
		Status:        ledger.StatusPending,
		Target:        req.Target,
		PRNumber:      req.PRNumber,
		Args:          req.Args,
		TriggeredBy:   req.TriggeredBy,
		TriggerSource: req.TriggerSource,
	}
	if err := o.ledger.Create(ctx, exec); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	rec := exchange.Record{RepositoryID: req.Target.RepositoryID}
	if err := exchange.PutRecord(ctx, o.exchange, id, rec, ExchangeTTL); err != nil {
		return "", fmt.Errorf("seed exchange record: %w", err)
	}

	err = o.workflows.DispatchWorkflow(ctx, o.cfg.BotOwner, o.cfg.BotRepo, workflowID, o.cfg.WorkflowRef, map[string]any{
		"id": id,
	})
	if err != nil {
		return "", fmt.Errorf("trigger workflow: %w", err)
	}

	o.logger.Info("command dispatched",
		"execution_id", id,
		"command", req.Command,
		"repository_id", req.Target.RepositoryID,
		"trigger_source", req.TriggerSource,
		"triggered_by", req.TriggeredBy,
	)
	return id, nil
}
