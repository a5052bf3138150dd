package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
)

type fixCSPayload struct {
	Changes bool `json:"changes"`
}

// FixCS runs the code-style fixer workflow against a pull request branch and
// reports back whether anything was changed.
func FixCS() *Descriptor {
	return &Descriptor{
		Name:         "fix-cs",
		WorkflowPath: ".github/workflows/csfixer.yml",
		PostExecution: func(ctx context.Context, gh GitHubClient, exec *ledger.Execution, payload json.RawMessage) (ledger.Status, error) {
			var p fixCSPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return ledger.StatusFailed, fmt.Errorf("decode fix-cs payload: %w", err)
			}

			if exec.PRNumber == nil {
				return ledger.StatusCompleted, nil
			}

			body := "No code style issues found. :sparkles:"
			if p.Changes {
				body = fmt.Sprintf(
					"I have fixed the code style issues on `%s` and pushed the changes to this pull request.",
					exec.Target.HeadBranch,
				)
			}
			if err := gh.CreateComment(ctx, exec.Target.BaseOwner, exec.Target.BaseRepo, *exec.PRNumber, body); err != nil {
				return ledger.StatusFailed, err
			}
			return ledger.StatusCompleted, nil
		},
	}
}
