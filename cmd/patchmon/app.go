package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"patchmon/internal/config"
	"patchmon/internal/gitrepo"
	"patchmon/internal/logging"
	"patchmon/internal/storage"
	"patchmon/internal/upstream"
)

// app bundles the long-lived pieces every command needs: validated
// configuration, the state database, and the shared git worktree
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *storage.DB
	repo     *gitrepo.Repo
	upstream *upstream.Monitor
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	stateDir := cfg.StateDir
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(configDir, stateDir)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}

	db, err := storage.Open(stateDir, logger)
	if err != nil {
		return nil, err
	}

	repo, err := ensureUpstreamRepo(ctx, cfg, stateDir, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		repo:     repo,
		upstream: upstream.NewMonitor(repo, storage.NewPatchRepository(db), cfg, logger),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// mustApp builds the app or exits; command Run funcs use it so a
// broken config fails the same way everywhere
func mustApp(ctx context.Context) *app {
	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

// ensureUpstreamRepo opens the cached upstream clone under the state
// directory, creating it with a window-deep clone on first use
func ensureUpstreamRepo(ctx context.Context, cfg *config.Config, stateDir string, logger *logging.Logger) (*gitrepo.Repo, error) {
	dir := filepath.Join(stateDir, "upstream")

	// Kernel-sized repos blow through the default plumbing timeout on
	// log walks over a long window.
	timeout := gitrepo.WithQueryTimeout(10 * time.Minute)

	if gitrepo.IsRepository(dir) {
		return gitrepo.Open(dir, logger, timeout)
	}

	logger.Info("Cloning upstream repository, this can take a while", map[string]interface{}{
		"repo":  cfg.Upstream.Repo,
		"since": cfg.Window.Since,
	})
	return gitrepo.Clone(ctx, cfg.Upstream.Repo, dir, cfg.Window.Since, logger, timeout)
}

func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	format := cfg.Logging.Format
	if logFormatFlag != "" {
		format = logFormatFlag
	}
	return logging.NewLogger(logging.Config{
		Format: logging.Format(format),
		Level:  logging.LogLevel(level),
	})
}
