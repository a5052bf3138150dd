package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
listen: ":9090"
api_key: "dashboard-key"
github:
  app_id: 1234
  installation_id: 5678
  private_key_path: /etc/bot/key.pem
  webhook_secret: hunter2
  bot_owner: FriendsOfShopware
  bot_repo: automation
identity:
  audience: github-bot.fos.gg
  allowed_actors:
    - frosh-automation[bot]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("listen = %s", cfg.Listen)
	}
	if cfg.GitHub.AppID != 1234 || cfg.GitHub.InstallationID != 5678 {
		t.Fatalf("github ids not loaded: %+v", cfg.GitHub)
	}
	if cfg.Identity.Audience != "github-bot.fos.gg" {
		t.Fatalf("audience = %s", cfg.Identity.Audience)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "INFO" {
		t.Fatalf("log level default = %s", cfg.LogLevel)
	}
	if cfg.DatabasePath != "automation-bot.db" {
		t.Fatalf("database path default = %s", cfg.DatabasePath)
	}
	if cfg.GitHub.WorkflowRef != "main" {
		t.Fatalf("workflow ref default = %s", cfg.GitHub.WorkflowRef)
	}
	if cfg.Identity.Issuer != "https://token.actions.githubusercontent.com" {
		t.Fatalf("issuer default = %s", cfg.Identity.Issuer)
	}
	if cfg.Exchange.Backend != "sqlite" {
		t.Fatalf("exchange backend default = %s", cfg.Exchange.Backend)
	}
	if len(cfg.GitHub.CommandPrefixes) != 2 || cfg.GitHub.CommandPrefixes[0] != "@frosh-automation" {
		t.Fatalf("command prefix defaults = %v", cfg.GitHub.CommandPrefixes)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_BOT_WEBHOOK_SECRET", "from-env")

	content := strings.Replace(validConfig, "webhook_secret: hunter2",
		"webhook_secret: ${TEST_BOT_WEBHOOK_SECRET}", 1)
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.WebhookSecret != "from-env" {
		t.Fatalf("webhook secret = %s", cfg.GitHub.WebhookSecret)
	}
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(string) string
		problem string
	}{
		{
			"missing app id",
			func(s string) string { return strings.Replace(s, "app_id: 1234", "app_id: 0", 1) },
			"github.app_id",
		},
		{
			"missing audience",
			func(s string) string { return strings.Replace(s, "audience: github-bot.fos.gg", "audience: \"\"", 1) },
			"identity.audience",
		},
		{
			"redis without addr",
			func(s string) string { return s + "\nexchange:\n  backend: redis\n" },
			"exchange.redis_addr",
		},
		{
			"unknown backend",
			func(s string) string { return s + "\nexchange:\n  backend: memcached\n" },
			"exchange.backend",
		},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.mutate(validConfig)))
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.problem) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.problem)
		}
	}
}

func TestLoadMissingActors(t *testing.T) {
	t.Parallel()

	content := strings.Replace(validConfig, "  allowed_actors:\n    - frosh-automation[bot]\n", "", 1)
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatalf("expected error for empty actor allow-list")
	}
}

func TestComputeHashIsStable(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig)
	h1, err := ComputeHash(path)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	h2, err := ComputeHash(path)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("unexpected hash length: %d", len(h1))
	}

	other := writeConfig(t, validConfig+"\nlog_level: DEBUG\n")
	h3, err := ComputeHash(other)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("different contents must hash differently")
	}
}
