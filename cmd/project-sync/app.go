package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/project-sync/internal/config"
	apperrors "github.com/alexjbarnes/project-sync/internal/errors"
	"github.com/alexjbarnes/project-sync/internal/logging"
	"github.com/alexjbarnes/project-sync/internal/projects"
	"github.com/alexjbarnes/project-sync/internal/remote"
	"github.com/alexjbarnes/project-sync/internal/state"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once config is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	state   *state.State
	project *projects.Project
	filter  *projects.Filter
}

// newApp loads config, opens the state database and prepares the
// tenant root. The tenant comes from the --tenant flag, the first
// positional argument when usePositional is set, or TENANT.
func newApp(cmd *cobra.Command, args []string, usePositional bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	var candidates []string
	if flag, _ := cmd.Flags().GetString("tenant"); flag != "" {
		candidates = []string{flag}
	} else if usePositional {
		candidates = args
	}

	tenant, err := cfg.ResolveTenant(candidates)
	if err != nil {
		return nil, err
	}

	dir, err := cfg.TenantDir(tenant)
	if err != nil {
		return nil, err
	}

	project, err := projects.NewProject(dir, tenant)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrLocalIO, err)
	}

	st, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	logger.Info("project-sync starting",
		slog.String("version", Version),
		slog.String("tenant", tenant),
		slog.String("dir", dir),
	)
	warnUnsafeConfig(logger, cfg)

	return &app{
		cfg:     cfg,
		logger:  logger,
		state:   st,
		project: project,
		filter:  projects.NewFilter(cfg.IgnoreExtensions, cfg.IgnoreFolders),
	}, nil
}

// warnUnsafeConfig logs settings that should not reach production.
func warnUnsafeConfig(logger *slog.Logger, cfg *config.Config) {
	if cfg.IsProduction() && cfg.TLSInsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled in production", slog.String("base_url", cfg.BaseURL))
	}
}

func (a *app) newClient(auth remote.Auth) *remote.Client {
	return remote.NewClient(a.cfg.BaseURL, auth, remote.Options{
		Timeout:            a.cfg.RequestTimeout,
		InsecureSkipVerify: a.cfg.TLSInsecureSkipVerify,
		UserAgent:          "project-sync/" + Version,
	})
}

// engine bundles the sync components bound to one client.
type engine struct {
	client *remote.Client
	exec   *projects.Executor
	syncer *projects.Syncer
}

func (a *app) newEngine(auth remote.Auth) *engine {
	client := a.newClient(auth)
	exec := projects.NewExecutor(a.project, client, a.state, a.logger, a.cfg.DeletePayload)

	return &engine{
		client: client,
		exec:   exec,
		syncer: projects.NewSyncer(a.project, client, exec, a.filter, a.logger),
	}
}

// withSession runs fn with an engine built from the current session.
// If the remote rejects the token, the session is reloaded once and fn
// is retried with the new credentials.
func (a *app) withSession(ctx context.Context, fn func(context.Context, *engine) error) error {
	auth, err := resolveSession(a.cfg, a.state, a.logger)
	if err != nil {
		return err
	}

	err = fn(ctx, a.newEngine(auth))
	if !errors.Is(err, apperrors.ErrInvalidToken) {
		return err
	}

	a.logger.Warn("token rejected, reloading session")

	fresh, rerr := reloadSession(a.cfg, a.state, auth, a.logger)
	if rerr != nil {
		return fmt.Errorf("%w (reload failed: %v)", err, rerr)
	}

	return fn(ctx, a.newEngine(fresh))
}
