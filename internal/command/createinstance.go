package command

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/google/go-github/v66/github"
)

var shopwareVersionPattern = regexp.MustCompile(`^(\d+\.\d+\.\d+)$`)

type createInstancePayload struct {
	PreviewURL string `json:"previewUrl"`
}

const instanceCommentTemplate = `Hey :wave:,

I have created for you a Shopware installation with the current changes made here.

You can access the Shop here: %s

The URL is only for FriendsOfShopware members.`

// CreateInstance spins up a disposable Shopware preview environment for the
// dispatched branch and links it from the pull request.
func CreateInstance() *Descriptor {
	return &Descriptor{
		Name:         "create-instance",
		WorkflowPath: ".github/workflows/instance.yml",
		Arguments: []ArgumentSpec{
			{
				Name:  "shopware-version",
				Label: "Shopware Version",
				Options: func(ctx context.Context, deps ArgDeps) ([]string, error) {
					return FetchContainerTags(ctx, deps, "ghcr.io", "friendsofshopware/shopware-demo-environment", shopwareVersionPattern)
				},
			},
			{
				Name:  "php-version",
				Label: "PHP Version",
				Options: func(ctx context.Context, deps ArgDeps) ([]string, error) {
					return []string{"8.4", "8.3", "8.2"}, nil
				},
			},
		},
		PostExecution: func(ctx context.Context, gh GitHubClient, exec *ledger.Execution, payload json.RawMessage) (ledger.Status, error) {
			var p createInstancePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return ledger.StatusFailed, fmt.Errorf("decode create-instance payload: %w", err)
			}
			if p.PreviewURL == "" {
				return ledger.StatusFailed, fmt.Errorf("create-instance payload has no previewUrl")
			}

			if exec.PRNumber != nil {
				err := gh.CreateComment(ctx, exec.Target.BaseOwner, exec.Target.BaseRepo, *exec.PRNumber,
					fmt.Sprintf(instanceCommentTemplate, p.PreviewURL))
				if err != nil {
					return ledger.StatusFailed, err
				}
			}

			err := gh.CreateCommitStatus(ctx, exec.Target.BaseOwner, exec.Target.BaseRepo, exec.Target.HeadSHA, &github.RepoStatus{
				State:       github.String("success"),
				TargetURL:   github.String(p.PreviewURL),
				Description: github.String("Shopware instance is ready"),
				Context:     github.String("Shopware Preview"),
			})
			if err != nil {
				return ledger.StatusFailed, err
			}
			return ledger.StatusCompleted, nil
		},
	}
}
