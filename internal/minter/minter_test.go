package minter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/githubapp"
)

// newTestMinter points a Minter at a fake GitHub API. WithEnterpriseURLs
// puts the API under /api/v3/.
func newTestMinter(t *testing.T, handler http.Handler, installationID int64) *Minter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := githubapp.NewTokenClient("app-jwt", srv.URL)
	if err != nil {
		t.Fatalf("NewTokenClient: %v", err)
	}
	return New(client, installationID, srv.URL)
}

func TestMintScopesTokenToRepository(t *testing.T) {
	t.Parallel()

	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/app/installations/55/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		var body struct {
			RepositoryIDs []int64           `json:"repository_ids"`
			Permissions   map[string]string `json:"permissions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.RepositoryIDs) != 1 || body.RepositoryIDs[0] != 99 {
			t.Errorf("token not scoped to repository 99: %v", body.RepositoryIDs)
		}
		for _, p := range []string{"contents", "statuses", "pull_requests"} {
			if body.Permissions[p] != "write" {
				t.Errorf("permission %s = %q, want write", p, body.Permissions[p])
			}
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_minted",
			"expires_at": expiresAt.Format(time.RFC3339),
		})
	})

	m := newTestMinter(t, mux, 55)
	cred, err := m.Mint(context.Background(), 99)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if cred.Token != "ghs_minted" {
		t.Fatalf("unexpected token: %s", cred.Token)
	}
	if !cred.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("unexpected expiry: %s", cred.ExpiresAt)
	}
}

func TestMintUpstreamDenial(t *testing.T) {
	t.Parallel()

	m := newTestMinter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"denied"}`))
	}), 55)

	_, err := m.Mint(context.Background(), 99)
	if !errors.Is(err, ErrMintFailed) {
		t.Fatalf("expected ErrMintFailed, got %v", err)
	}
}

func TestRevokeUsesTokenItself(t *testing.T) {
	t.Parallel()

	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/installation/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	m := newTestMinter(t, mux, 55)
	if err := m.Revoke(context.Background(), "ghs_minted"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !strings.Contains(gotAuth, "ghs_minted") {
		t.Fatalf("revoke not authenticated by the minted token: %q", gotAuth)
	}
}

func TestRevokeEmptyToken(t *testing.T) {
	t.Parallel()

	m := New(nil, 55, "")
	if err := m.Revoke(context.Background(), ""); !errors.Is(err, ErrRevokeFailed) {
		t.Fatalf("expected ErrRevokeFailed, got %v", err)
	}
}

func TestRevokeUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	m := New(nil, 55, srv.URL)
	if err := m.Revoke(context.Background(), "ghs_expired"); !errors.Is(err, ErrRevokeFailed) {
		t.Fatalf("expected ErrRevokeFailed, got %v", err)
	}
}
