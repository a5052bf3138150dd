// Package minter exchanges the broker's GitHub App identity for scoped,
// short-lived installation tokens. A minted token is restricted to exactly
// one repository and the minimal write permissions command handlers need.
package minter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/githubapp"
	"github.com/google/go-github/v66/github"
)

var (
	ErrMintFailed   = errors.New("credential mint failed")
	ErrRevokeFailed = errors.New("credential revoke failed")
)

// Credential is a minted installation token and its upstream expiry.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Minter mints and revokes installation tokens through the trust authority.
type Minter struct {
	appClient      *github.Client
	installationID int64
	baseURL        string
}

// New builds a Minter from an app-authenticated client. baseURL is passed on
// to the revoke-side client and may be empty for github.com.
func New(appClient *github.Client, installationID int64, baseURL string) *Minter {
	return &Minter{appClient: appClient, installationID: installationID, baseURL: baseURL}
}

// Mint requests an installation token scoped to repositoryID only, with
// contents/statuses/pull_requests write permissions. Upstream denial is
// surfaced as ErrMintFailed; there is no retry at this layer.
func (m *Minter) Mint(ctx context.Context, repositoryID int64) (Credential, error) {
	token, _, err := m.appClient.Apps.CreateInstallationToken(ctx, m.installationID, &github.InstallationTokenOptions{
		RepositoryIDs: []int64{repositoryID},
		Permissions: &github.InstallationPermissions{
			Contents:     github.String("write"),
			Statuses:     github.String("write"),
			PullRequests: github.String("write"),
		},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	return Credential{
		Token:     token.GetToken(),
		ExpiresAt: token.GetExpiresAt().Time,
	}, nil
}

// Revoke invalidates a minted token early. The token authenticates its own
// revocation. Failure is reported but callers treat it as best-effort: the
// token expires upstream on its own regardless.
func (m *Minter) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is empty", ErrRevokeFailed)
	}
	client, err := githubapp.NewTokenClient(token, m.baseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRevokeFailed, err)
	}
	if _, err := client.Apps.RevokeInstallationToken(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRevokeFailed, err)
	}
	return nil
}
