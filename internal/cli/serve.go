package cli

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/easygithub/easygithub/internal/server"
	"github.com/easygithub/easygithub/pkg/observability/prom"
	"github.com/easygithub/easygithub/pkg/storage/artifact"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API that generates, stores and serves diagrams.

Endpoints:
  POST   /api/generate              generate a diagram
  GET    /api/generate/stream       generate with progress over a websocket
  GET    /api/diagrams              list stored diagrams
  GET    /api/diagrams/{id}         fetch a diagram
  GET    /api/diagrams/s/{slug}     fetch a diagram by share slug
  DELETE /api/diagrams/{id}         delete a diagram
  GET    /api/repos/{owner}/{repo}  repository metadata and file tree
  GET    /healthz, /metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom.New(reg).Install()

	runner, gh, err := c.newRunner(ctx, cfg, runnerOptions{})
	if err != nil {
		return err
	}
	defer runner.Close()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	} else {
		c.Logger.Warn("storage disabled, diagrams will not be persisted")
	}

	artifacts, err := artifact.Open(cfg.Artifacts)
	if err != nil {
		return err
	}

	c.Logger.Info("starting server",
		"addr", cfg.Server.Addr,
		"model", runner.Agent.Model(),
		"cache", cfg.Cache.Backend,
		"storage", cfg.Storage.Backend,
		"artifacts", cfg.Artifacts.Backend,
		"github_auth", gh.AuthMode())

	srv := server.New(server.Deps{
		Pipeline:  runner,
		GitHub:    gh,
		Store:     store,
		Artifacts: artifacts,
		Logger:    c.Logger,
		Registry:  reg,
	}, server.Options{
		Addr:           cfg.Server.Addr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		ShutdownGrace:  cfg.Server.ShutdownGrace,
		MaxTreeLines:   cfg.Limits.MaxTreeLines,
		MaxReadmeChars: cfg.Limits.MaxReadmeChars,
	})
	return srv.ListenAndServe(ctx)
}
