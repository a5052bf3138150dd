package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FriendsOfShopware/automation-bot/internal/api"
	"github.com/FriendsOfShopware/automation-bot/internal/command"
	"github.com/FriendsOfShopware/automation-bot/internal/config"
	"github.com/FriendsOfShopware/automation-bot/internal/dispatch"
	"github.com/FriendsOfShopware/automation-bot/internal/exchange"
	"github.com/FriendsOfShopware/automation-bot/internal/fetchclient"
	"github.com/FriendsOfShopware/automation-bot/internal/githubapp"
	"github.com/FriendsOfShopware/automation-bot/internal/identity"
	"github.com/FriendsOfShopware/automation-bot/internal/ledger"
	"github.com/FriendsOfShopware/automation-bot/internal/lock"
	"github.com/FriendsOfShopware/automation-bot/internal/log"
	"github.com/FriendsOfShopware/automation-bot/internal/metrics"
	"github.com/FriendsOfShopware/automation-bot/internal/minter"
	"github.com/FriendsOfShopware/automation-bot/internal/storage"
	"github.com/FriendsOfShopware/automation-bot/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve", "start":
		os.Exit(runServe(args))
	case "check", "config":
		// "config check" reads the same as "check".
		if len(args) > 0 && args[0] == "check" {
			args = args[1:]
		}
		os.Exit(runCheck(args))
	case "version":
		fmt.Printf("automation-bot version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`automation-bot - Trust-scoped execution broker for repository automation

Usage:
  automation-bot <command> [flags]

Commands:
  serve     Start the broker service in the foreground
  check     Validate the configuration file
  version   Show version information
  help      Show this help message
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("automation-bot starting", "version", version, "config", *configPath)

	configHash, err := config.ComputeHash(*configPath)
	if err != nil {
		logger.Warn("config hash unavailable", "error", err)
	}

	pidLock, err := lock.Acquire(cfg.DatabasePath + ".lock")
	if err != nil {
		logger.Error("failed to acquire instance lock", "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		return 1
	}
	defer db.Close()
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		logger.Error("failed to bootstrap database", "error", err)
		return 1
	}
	logger.Info("database opened", "path", cfg.DatabasePath)

	ledgerStore := ledger.NewStore(db)

	var exchangeStore exchange.Store
	switch cfg.Exchange.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Exchange.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.Exchange.RedisAddr, "error", err)
			return 1
		}
		defer client.Close()
		exchangeStore = exchange.NewRedisStore(client)
		logger.Info("exchange store backend", "backend", "redis", "addr", cfg.Exchange.RedisAddr)
	default:
		exchangeStore = exchange.NewSQLiteStore(db)
		logger.Info("exchange store backend", "backend", "sqlite")
	}

	privateKey, err := cfg.ReadPrivateKey()
	if err != nil {
		logger.Error("failed to read private key", "path", cfg.GitHub.PrivateKeyPath, "error", err)
		return 1
	}

	ghCfg := githubapp.Config{
		AppID:          cfg.GitHub.AppID,
		InstallationID: cfg.GitHub.InstallationID,
		PrivateKey:     privateKey,
		BaseURL:        cfg.GitHub.BaseURL,
	}
	appClient, err := githubapp.NewAppClient(ghCfg)
	if err != nil {
		logger.Error("failed to build app client", "error", err)
		return 1
	}
	installClient, err := githubapp.NewInstallationClient(ghCfg)
	if err != nil {
		logger.Error("failed to build installation client", "error", err)
		return 1
	}
	ghService := githubapp.NewService(installClient)
	credMinter := minter.New(appClient, cfg.GitHub.InstallationID, cfg.GitHub.BaseURL)

	verifier, err := identity.New(ctx, identity.Config{
		Issuer:        cfg.Identity.Issuer,
		JWKSURL:       cfg.Identity.JWKSURL,
		Audience:      cfg.Identity.Audience,
		AllowedActors: cfg.Identity.AllowedActors,
	})
	if err != nil {
		logger.Error("failed to initialize identity verifier", "issuer", cfg.Identity.Issuer, "error", err)
		return 1
	}

	registry, err := command.Builtins(command.ArgDeps{
		Fetch: fetchclient.New(0),
		Cache: exchangeStore,
	}, log.WithComponent("command"))
	if err != nil {
		logger.Error("failed to build command registry", "error", err)
		return 1
	}

	var sink metrics.Sink = metrics.NewNoopSink()
	if cfg.Metrics.Enabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	}

	orchestrator := dispatch.NewOrchestrator(dispatch.Config{
		BotOwner:    cfg.GitHub.BotOwner,
		BotRepo:     cfg.GitHub.BotRepo,
		WorkflowRef: cfg.GitHub.WorkflowRef,
	}, registry, ledgerStore, exchangeStore, ghService, sink, log.WithComponent("dispatch"))

	webhookHandler := webhook.NewHandler(webhook.Config{
		Secret:   cfg.GitHub.WebhookSecret,
		Prefixes: cfg.GitHub.CommandPrefixes,
	}, orchestrator, ghService, log.Get())

	apiServer := api.New(api.Config{
		Listen:         cfg.Listen,
		APIKey:         cfg.APIKey,
		ConfigHash:     configHash,
		MetricsEnabled: cfg.Metrics.Enabled,
	}, api.Deps{
		Verifier:   verifier,
		Minter:     credMinter,
		Exchange:   exchangeStore,
		Executions: ledgerStore,
		Registry:   registry,
		Dispatcher: orchestrator,
		Repos:      ghService,
		GitHub:     ghService,
		Webhook:    webhookHandler,
		Sink:       sink,
	}, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("automation-bot running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("automation-bot stopped")
	return 0
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config check FAILED: %v\n", err)
		return 1
	}

	hash, err := config.ComputeHash(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config hash error: %v\n", err)
		return 1
	}

	fmt.Printf("Config check PASSED\n")
	fmt.Printf("  listen:    %s\n", cfg.Listen)
	fmt.Printf("  database:  %s\n", cfg.DatabasePath)
	fmt.Printf("  exchange:  %s\n", cfg.Exchange.Backend)
	fmt.Printf("  hash:      %s\n", hash)
	return 0
}
