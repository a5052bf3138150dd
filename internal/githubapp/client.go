// Package githubapp builds the authenticated GitHub clients the broker uses:
// an app-level client (mints installation tokens) and an installation-level
// client (dispatches workflows, posts comments and statuses).
package githubapp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
)

// Config identifies the GitHub App installation the broker acts as.
type Config struct {
	AppID          int64
	InstallationID int64
	// PrivateKey is the app's PEM-encoded RSA key.
	PrivateKey []byte
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
}

// NewAppClient returns a client authenticated as the app itself via a signed
// app JWT. Only the installation-token endpoints accept this identity.
func NewAppClient(cfg Config) (*github.Client, error) {
	tr, err := ghinstallation.NewAppsTransport(http.DefaultTransport, cfg.AppID, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create app transport: %w", err)
	}
	if cfg.BaseURL != "" {
		tr.BaseURL = cfg.BaseURL
	}
	return newClient(&http.Client{Transport: tr}, cfg.BaseURL)
}

// NewInstallationClient returns a client authenticated as the installation.
func NewInstallationClient(cfg Config) (*github.Client, error) {
	tr, err := ghinstallation.New(http.DefaultTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create installation transport: %w", err)
	}
	if cfg.BaseURL != "" {
		tr.BaseURL = cfg.BaseURL
	}
	return newClient(&http.Client{Transport: tr}, cfg.BaseURL)
}

// NewTokenClient returns a client authenticated with a previously minted
// installation token. Used to revoke that same token.
func NewTokenClient(token, baseURL string) (*github.Client, error) {
	return newClient(github.NewClient(nil).WithAuthToken(token).Client(), baseURL)
}

func newClient(httpClient *http.Client, baseURL string) (*github.Client, error) {
	client := github.NewClient(httpClient)
	if baseURL == "" {
		return client, nil
	}
	client, err := client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("set github base url: %w", err)
	}
	return client, nil
}

// Service wraps the installation client with the narrow operations the
// broker and its command handlers need.
type Service struct {
	client *github.Client
}

func NewService(client *github.Client) *Service {
	return &Service{client: client}
}

// FindWorkflowID resolves a workflow file path (e.g.
// ".github/workflows/csfixer.yml") to its workflow id in owner/repo.
// Returns 0 if no workflow matches.
func (s *Service) FindWorkflowID(ctx context.Context, owner, repo, path string) (int64, error) {
	opts := &github.ListOptions{PerPage: 100}
	for {
		workflows, resp, err := s.client.Actions.ListWorkflows(ctx, owner, repo, opts)
		if err != nil {
			return 0, fmt.Errorf("list workflows for %s/%s: %w", owner, repo, err)
		}
		for _, w := range workflows.Workflows {
			if w.GetPath() == path {
				return w.GetID(), nil
			}
		}
		if resp.NextPage == 0 {
			return 0, nil
		}
		opts.Page = resp.NextPage
	}
}

// DispatchWorkflow triggers a workflow run on ref with the given inputs.
func (s *Service) DispatchWorkflow(ctx context.Context, owner, repo string, workflowID int64, ref string, inputs map[string]any) error {
	_, err := s.client.Actions.CreateWorkflowDispatchEventByID(ctx, owner, repo, workflowID, github.CreateWorkflowDispatchEventRequest{
		Ref:    ref,
		Inputs: inputs,
	})
	if err != nil {
		return fmt.Errorf("dispatch workflow %d in %s/%s: %w", workflowID, owner, repo, err)
	}
	return nil
}

// GetPullRequest loads one pull request.
func (s *Service) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := s.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return pr, nil
}

// GetRepository loads one repository.
func (s *Service) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	r, _, err := s.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	return r, nil
}

// GetBranchSHA resolves a branch name to its head commit sha.
func (s *Service) GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, _, err := s.client.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("get ref heads/%s in %s/%s: %w", branch, owner, repo, err)
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateComment posts an issue/PR comment.
func (s *Service) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := s.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("create comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// CreateCommitStatus sets a commit status on sha.
func (s *Service) CreateCommitStatus(ctx context.Context, owner, repo, sha string, status *github.RepoStatus) error {
	_, _, err := s.client.Repositories.CreateStatus(ctx, owner, repo, sha, status)
	if err != nil {
		return fmt.Errorf("create status on %s/%s@%s: %w", owner, repo, sha, err)
	}
	return nil
}

// CreateCommentReaction reacts to a comment (content is e.g. "+1").
func (s *Service) CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) error {
	_, _, err := s.client.Reactions.CreateIssueCommentReaction(ctx, owner, repo, commentID, content)
	if err != nil {
		return fmt.Errorf("react to comment %d on %s/%s: %w", commentID, owner, repo, err)
	}
	return nil
}
