package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/zgeoff/decree/config"
	"github.com/zgeoff/decree/internal/agent"
	"github.com/zgeoff/decree/internal/bashguard"
	"github.com/zgeoff/decree/internal/engine/event"
	"github.com/zgeoff/decree/internal/engine/executor"
	"github.com/zgeoff/decree/internal/engine/loop"
	"github.com/zgeoff/decree/internal/engine/state"
	"github.com/zgeoff/decree/internal/metrics"
	"github.com/zgeoff/decree/internal/plannercache"
	"github.com/zgeoff/decree/internal/providertest"
	"github.com/zgeoff/decree/internal/reconciler"
	"github.com/zgeoff/decree/internal/startup"
	"github.com/zgeoff/decree/internal/worktree"
)

// app wires every §4 component together. The code-hosting client and the
// concrete LLM SDK wrapper are named by capability only in the
// specification; app uses the in-memory providertest fakes to stand in
// for the former (a live GitHub/GitLab client is an external integration
// point left to the deployer) and internal/agent's AnthropicRunner for
// the latter.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *state.Store
	loop      *loop.Loop
	exec      *executor.Executor
	recon     *reconciler.Reconciler
	adapter   *agent.DefaultAdapter
	workItems *providertest.WorkItems
	revisions *providertest.Revisions
	specs     *providertest.Specs
}

func loadContextFiles(repoRoot string, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(filepath.Join(repoRoot, p))
		if err != nil {
			return nil, fmt.Errorf("read context file %s: %w", p, err)
		}
		out[p] = string(content)
	}
	return out, nil
}

func runEngine(ctx context.Context, configPath, repoRoot, metricsAddr string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := buildApp(cfg, repoRoot, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer srv.Shutdown(context.Background())

	if err := startup.Run(ctx, repoRoot, a.store, a.recon, a.exec, a.loop, worktree.New(repoRoot, cfg.DefaultBranch, logger), logger); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	go a.recon.Run(ctx)
	go a.loop.Run(ctx)

	logger.Info("decree engine started", "metricsAddr", metricsAddr)
	<-ctx.Done()
	logger.Info("shutting down")
	<-a.loop.Done()
	return nil
}

// buildApp constructs every §4 component and wires them together.
func buildApp(cfg *config.Config, repoRoot string, logger *slog.Logger) (*app, error) {
	store := state.New()
	workItems := providertest.NewWorkItems()
	revisions := providertest.NewRevisions()
	specs := providertest.NewSpecs()

	var sessionLogger *agent.SessionLogger
	if cfg.Logging.AgentSessions {
		sessionLogger = agent.NewSessionLogger(filepath.Join(repoRoot, cfg.Logging.LogsDir), time.Now)
	}

	runner := agent.NewAnthropicRunner(os.Getenv("ANTHROPIC_API_KEY"))

	contextFiles, err := loadContextFiles(repoRoot, cfg.ContextPaths)
	if err != nil {
		return nil, fmt.Errorf("load context files: %w", err)
	}

	adapter, err := agent.NewDefaultAdapter(
		repoRoot,
		cfg.DefaultBranch,
		cfg.MaxAgentDuration,
		runner,
		store.GetState,
		specs,
		revisions,
		contextFiles,
		sessionLogger,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("construct agent adapter: %w", err)
	}

	// The executor emits lifecycle events back into the loop it is driven
	// by, so the two are built through a forwarding closure that resolves
	// l only once the loop is actually constructed.
	var l *loop.Loop
	emit := func(ev event.Event) { l.Enqueue(ev) }
	exec := executor.New(store, repoRoot, workItems, revisions, adapter, emit, logger)
	l = loop.New(store, exec, logger, time.Now)

	recon := reconciler.New(cfg.Reconciler, store, workItems, revisions, specs, emit, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		loop:      l,
		exec:      exec,
		recon:     recon,
		adapter:   adapter,
		workItems: workItems,
		revisions: revisions,
		specs:     specs,
	}, nil
}

func runValidateBash(command string) error {
	result := bashguard.Validate(command)
	if result.Allowed {
		fmt.Println("allowed")
		return nil
	}
	fmt.Printf("rejected: %s\n", result.Reason)
	return fmt.Errorf("command rejected")
}

func runCacheShow(repoRoot string) error {
	cached := plannercache.Load(repoRoot)
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runCacheClear(repoRoot string) error {
	path := plannercache.Path(repoRoot)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("no cache file present")
			return nil
		}
		return fmt.Errorf("remove cache file: %w", err)
	}
	fmt.Println("cache cleared")
	return nil
}
