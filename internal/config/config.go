// Package config loads the broker configuration from a single YAML file.
// Secret-bearing fields support ${ENV_VAR} expansion so the file itself can
// stay free of credentials.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config is the top-level broker configuration.
type Config struct {
	Listen       string `yaml:"listen"`
	LogLevel     string `yaml:"log_level"`
	DatabasePath string `yaml:"database_path"`
	// APIKey protects the dashboard-facing endpoints (dispatch, listings).
	APIKey  string         `yaml:"api_key"`
	Metrics MetricsConfig  `yaml:"metrics"`
	GitHub  GitHubConfig   `yaml:"github"`
	Identity IdentityConfig `yaml:"identity"`
	Exchange ExchangeConfig `yaml:"exchange"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GitHubConfig identifies the GitHub App installation and the repository
// hosting the automation workflows.
type GitHubConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	WebhookSecret  string `yaml:"webhook_secret"`
	BotOwner       string `yaml:"bot_owner"`
	BotRepo        string `yaml:"bot_repo"`
	WorkflowRef    string `yaml:"workflow_ref"`
	// BaseURL overrides the API endpoint (GitHub Enterprise).
	BaseURL string `yaml:"base_url"`
	// CommandPrefixes are the comment mentions that trigger commands.
	CommandPrefixes []string `yaml:"command_prefixes"`
}

// IdentityConfig fixes the expected OIDC issuer, audience, and trusted
// actors for runner identity assertions.
type IdentityConfig struct {
	Issuer        string   `yaml:"issuer"`
	JWKSURL       string   `yaml:"jwks_url"`
	Audience      string   `yaml:"audience"`
	AllowedActors []string `yaml:"allowed_actors"`
}

// ExchangeConfig selects the exchange store backend.
type ExchangeConfig struct {
	// Backend is "sqlite" (default) or "redis".
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
}

// Load reads, expands, defaults, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.APIKey = expandEnv(cfg.APIKey)
	cfg.GitHub.WebhookSecret = expandEnv(cfg.GitHub.WebhookSecret)
	cfg.GitHub.PrivateKeyPath = expandEnv(cfg.GitHub.PrivateKeyPath)
	cfg.Exchange.RedisAddr = expandEnv(cfg.Exchange.RedisAddr)

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "automation-bot.db"
	}
	if cfg.GitHub.WorkflowRef == "" {
		cfg.GitHub.WorkflowRef = "main"
	}
	if len(cfg.GitHub.CommandPrefixes) == 0 {
		cfg.GitHub.CommandPrefixes = []string{"@frosh-automation", "@frosh-ci"}
	}
	if cfg.Identity.Issuer == "" {
		cfg.Identity.Issuer = "https://token.actions.githubusercontent.com"
	}
	if cfg.Identity.JWKSURL == "" {
		cfg.Identity.JWKSURL = "https://token.actions.githubusercontent.com/.well-known/jwks"
	}
	if cfg.Exchange.Backend == "" {
		cfg.Exchange.Backend = "sqlite"
	}
}

// Validate rejects configs that cannot possibly run.
func (c *Config) Validate() error {
	var problems []string

	if c.GitHub.AppID == 0 {
		problems = append(problems, "github.app_id is required")
	}
	if c.GitHub.InstallationID == 0 {
		problems = append(problems, "github.installation_id is required")
	}
	if c.GitHub.PrivateKeyPath == "" {
		problems = append(problems, "github.private_key_path is required")
	}
	if c.GitHub.BotOwner == "" || c.GitHub.BotRepo == "" {
		problems = append(problems, "github.bot_owner and github.bot_repo are required")
	}
	if c.Identity.Audience == "" {
		problems = append(problems, "identity.audience is required")
	}
	if len(c.Identity.AllowedActors) == 0 {
		problems = append(problems, "identity.allowed_actors must list at least one actor")
	}
	switch c.Exchange.Backend {
	case "sqlite":
	case "redis":
		if c.Exchange.RedisAddr == "" {
			problems = append(problems, "exchange.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("exchange.backend %q is not supported (sqlite, redis)", c.Exchange.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ReadPrivateKey loads the GitHub App private key from disk.
func (c *Config) ReadPrivateKey() ([]byte, error) {
	key, err := os.ReadFile(c.GitHub.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read github private key: %w", err)
	}
	return key, nil
}

// expandEnv replaces ${VAR} references with environment values. Unset
// variables expand to the empty string, which validation then catches for
// required fields.
func expandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
