package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rvergara/docflow/internal/clients"
	"github.com/rvergara/docflow/internal/engine"
	"github.com/rvergara/docflow/internal/expressions"
	"github.com/rvergara/docflow/internal/forms"
	"github.com/rvergara/docflow/internal/integrations"
	"github.com/rvergara/docflow/internal/logging"
	"github.com/rvergara/docflow/internal/scheduler"
	"github.com/rvergara/docflow/internal/secrets"
	"github.com/rvergara/docflow/internal/store"
	"github.com/rvergara/docflow/internal/streaming"
	"github.com/rvergara/docflow/pkg/api"
	"github.com/rvergara/docflow/pkg/mcp"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			printVersion()
			return
		case "mcp":
			runServer(true)
			return
		case "serve":
			runServer(false)
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (expected serve, mcp or version)\n", os.Args[1])
			os.Exit(1)
		}
	}
	runServer(false)
}

// runServer wires the full engine and serves it over REST, or over an MCP
// stdio transport when mcpMode is set.
func runServer(mcpMode bool) {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel, mcpMode)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		fatal(logger, "create data dir", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		fatal(logger, "open store", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		fatal(logger, "run migrations", err)
	}

	var vault secrets.Vault
	if key := os.Getenv("DOCFLOW_VAULT_KEY"); key != "" {
		v, err := secrets.NewAESVault(st, secrets.VaultConfig{
			Passphrase: key,
			Salt:       []byte("docflow-vault-v1"),
		})
		if err != nil {
			fatal(logger, "open vault", err)
		}
		vault = v
	} else {
		logger.Warn("DOCFLOW_VAULT_KEY not set, integration credentials disabled")
	}

	registry := integrations.NewRegistry()
	if err := registry.Register(integrations.NewHTTPIntegration(integrations.HTTPConfig{})); err != nil {
		fatal(logger, "register http integration", err)
	}
	if err := registry.Register(&integrations.SimulateIntegration{}); err != nil {
		fatal(logger, "register simulate integration", err)
	}
	breakers := integrations.NewBreakerRegistry(integrations.BreakerConfig{})
	caller := integrations.NewCaller(registry, breakers, vault, integrations.DefaultRetryPolicy(), logger)

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		fatal(logger, "build cel engine", err)
	}
	conditions := expressions.NewConditions(expressions.NewExprEngine(), celEngine, expressions.NewGoJQEngine())

	hub := streaming.NewMemoryHub()
	orchestrator := engine.NewOrchestrator(engine.Config{
		Store:      st,
		Gate:       forms.NewGate(forms.NewParser(), logger),
		Caller:     caller,
		Documents:  documentsClient(cfg),
		Editions:   editionsClient(cfg),
		Transfers:  transferClient(cfg),
		Conditions: conditions,
		Hub:        hub,
		Logger:     logger,
	})

	sched := scheduler.New(st, orchestrator, cfg.SchedulerSpec, logger)
	if err := sched.Start(ctx); err != nil {
		fatal(logger, "start scheduler", err)
	}
	defer sched.Stop()

	if mcpMode {
		srv := mcp.NewDocflowServer(mcp.DocflowServerDeps{
			Orchestrator: orchestrator,
			Store:        st,
			Logger:       logger,
		})
		if err := srv.Serve(ctx); err != nil {
			fatal(logger, "mcp server", err)
		}
		return
	}

	srv := api.NewServer(cfg.Port, orchestrator, hub, logger)
	go func() {
		<-ctx.Done()
		_ = srv.Stop()
	}()
	if err := srv.Start(); err != nil {
		fatal(logger, "http server", err)
	}
}

// newLogger builds the process logger. MCP mode logs to stderr so the
// stdio transport keeps stdout to itself.
func newLogger(level string, stderrOnly bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	out := os.Stdout
	if stderrOnly {
		out = os.Stderr
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}

func documentsClient(cfg Config) *clients.DocumentsClient {
	if cfg.DocumentsURL == "" {
		return nil
	}
	return clients.NewDocumentsClient(clients.Config{BaseURL: cfg.DocumentsURL, Token: cfg.APIToken})
}

func editionsClient(cfg Config) *clients.EditionsClient {
	if cfg.EditionsURL == "" {
		return nil
	}
	return clients.NewEditionsClient(clients.Config{BaseURL: cfg.EditionsURL, Token: cfg.APIToken})
}

func transferClient(cfg Config) *clients.TransferClient {
	if cfg.TransferURL == "" {
		return nil
	}
	return clients.NewTransferClient(clients.Config{BaseURL: cfg.TransferURL, Token: cfg.APIToken})
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
