// Package command is the closed set of automation commands the broker can
// dispatch. The registry is built once at startup and immutable afterwards;
// handlers are looked up by name, never mutated per request.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/FriendsOfShopware/automation-bot/internal/exchange"
	"github.com/FriendsOfShopware/automation-bot/internal/fetchclient"
	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/google/go-github/v66/github"
)

var ErrUnknownCommand = errors.New("unknown command")

// GitHubClient is the slice of the GitHub API post-execution handlers use.
// Implemented by githubapp.Service.
type GitHubClient interface {
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
	CreateCommitStatus(ctx context.Context, owner, repo, sha string, status *github.RepoStatus) error
}

// ArgDeps are the collaborators dynamic argument resolvers may use.
type ArgDeps struct {
	Fetch *fetchclient.Client
	Cache exchange.Store
}

// ArgumentSpec describes one user-facing argument of a command. Options is
// optional; when set it resolves the selectable values dynamically.
type ArgumentSpec struct {
	Name    string
	Label   string
	Options func(ctx context.Context, deps ArgDeps) ([]string, error)
}

// PostExecutionFunc handles the result a runner reported for an execution.
// Handlers are invoked at-least-once and must tolerate duplicate calls for
// the same execution id; side effects already performed are not rolled back.
type PostExecutionFunc func(ctx context.Context, gh GitHubClient, exec *ledger.Execution, payload json.RawMessage) (ledger.Status, error)

// Descriptor binds a command name to its workflow target and handlers.
type Descriptor struct {
	Name          string
	WorkflowPath  string
	Arguments     []ArgumentSpec
	PostExecution PostExecutionFunc
}

// ResolvedArgument is an ArgumentSpec with its options materialized.
type ResolvedArgument struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Options []string `json:"options"`
}

// Info is the dashboard-facing view of a command.
type Info struct {
	Name      string             `json:"name"`
	Arguments []ResolvedArgument `json:"arguments"`
}

// Registry is the immutable name -> Descriptor table.
type Registry struct {
	commands map[string]*Descriptor
	order    []string
	deps     ArgDeps
	logger   *slog.Logger
}

// NewRegistry builds a registry from descriptors. Duplicate names are a
// programming error.
func NewRegistry(deps ArgDeps, logger *slog.Logger, descriptors ...*Descriptor) (*Registry, error) {
	commands := make(map[string]*Descriptor, len(descriptors))
	order := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("command name is empty")
		}
		if d.WorkflowPath == "" {
			return nil, fmt.Errorf("command %q has no workflow path", d.Name)
		}
		if d.PostExecution == nil {
			return nil, fmt.Errorf("command %q has no post-execution handler", d.Name)
		}
		if _, ok := commands[d.Name]; ok {
			return nil, fmt.Errorf("duplicate command %q", d.Name)
		}
		commands[d.Name] = d
		order = append(order, d.Name)
	}
	sort.Strings(order)
	return &Registry{commands: commands, order: order, deps: deps, logger: logger}, nil
}

// Builtins returns the registry of all built-in commands.
func Builtins(deps ArgDeps, logger *slog.Logger) (*Registry, error) {
	return NewRegistry(deps, logger, FixCS(), CreateInstance())
}

// Resolve looks up a command by name.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	d, ok := r.commands[name]
	return d, ok
}

// Infos resolves every command's dynamic argument options. A failing
// resolver degrades that argument to an empty option list instead of
// aborting the rest.
func (r *Registry) Infos(ctx context.Context) []Info {
	infos := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		d := r.commands[name]
		info := Info{Name: d.Name, Arguments: make([]ResolvedArgument, 0, len(d.Arguments))}
		for _, arg := range d.Arguments {
			resolved := ResolvedArgument{Name: arg.Name, Label: arg.Label, Options: []string{}}
			if arg.Options != nil {
				options, err := arg.Options(ctx, r.deps)
				if err != nil {
					r.logger.Warn("argument option resolution failed",
						"command", d.Name, "argument", arg.Name, "error", err)
				} else {
					resolved.Options = options
				}
			}
			info.Arguments = append(info.Arguments, resolved)
		}
		infos = append(infos, info)
	}
	return infos
}
