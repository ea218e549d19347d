// Package cli implements the easygithub command-line interface.
package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/easygithub/easygithub/pkg/buildinfo"
	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/config"
	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/llm"
	"github.com/easygithub/easygithub/pkg/pipeline"
	"github.com/easygithub/easygithub/pkg/session"
	"github.com/easygithub/easygithub/pkg/storage"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "easygithub"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        *config.Config

	// sessionDir overrides the session location under the config dir.
	sessionDir string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "EasyGithub turns GitHub repositories into interactive architecture diagrams",
		Long: `EasyGithub reads a repository's file tree and README, asks a language model
to explain its architecture, maps the components to paths and draws a Mermaid
diagram whose nodes link back to the code on GitHub.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: ./easygithub.toml or the user config dir)")

	root.AddCommand(c.generateCommand())
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.githubCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// config loads the configuration once per process.
func (c *CLI) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		c.Logger.Debug("loaded config", "file", cfg.Source)
	}
	c.cfg = cfg
	return cfg, nil
}

// =============================================================================
// Factories
// =============================================================================

// runnerOptions select the collaborators of one pipeline runner.
type runnerOptions struct {
	noCache bool
	dryRun  bool
}

// newRunner creates a pipeline runner and the GitHub client it fetches with.
// Closing the runner closes the shared cache.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, ro runnerOptions) (*pipeline.Runner, *github.Client, error) {
	ch, err := newCache(ctx, cfg, ro.noCache || ro.dryRun)
	if err != nil {
		return nil, nil, err
	}
	agent, err := c.newAgent(ctx, cfg, ro.dryRun)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	gh := c.newGitHub(ctx, cfg, ch)
	keyer := cache.NewKeyer().Scoped(gh.CacheScope())
	return pipeline.NewRunner(gh, agent, ch, keyer, c.Logger), gh, nil
}

func newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	return cache.Open(ctx, cfg.Cache)
}

// newGitHub builds the API client. Without configured credentials the token
// of a `github login` session is used as a personal access token.
func (c *CLI) newGitHub(ctx context.Context, cfg *config.Config, ch cache.Cache) *github.Client {
	creds := cfg.GitHub.Credentials()
	if creds.Mode() == github.AuthNone {
		if sess, err := c.loadSession(ctx); err == nil && sess != nil {
			c.Logger.Debug("using GitHub login session", "user", sess.Login())
			creds.PAT = sess.AccessToken
		}
	}
	opts := []github.Option{github.WithLogger(c.Logger)}
	if cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.APIURL))
	}
	return github.NewClient(creds, ch, cfg.GitHub.CacheTTL, opts...)
}

func (c *CLI) newAgent(ctx context.Context, cfg *config.Config, dryRun bool) (*diagram.Agent, error) {
	var (
		p   llm.Provider
		err error
	)
	if dryRun {
		p = dryRunProvider()
	} else if p, err = llm.New(ctx, cfg.LLM); err != nil {
		return nil, err
	}
	return diagram.NewAgent(p,
		diagram.WithLogger(c.Logger),
		diagram.WithTemperature(cfg.LLM.Temperature),
		diagram.WithMaxTokens(cfg.LLM.WithDefaults().MaxTokens),
	), nil
}

// dryRunProvider answers the three stages with fixed text so the GitHub side
// of the pipeline can be checked without model credentials.
func dryRunProvider() *llm.Scripted {
	return llm.NewScripted(
		"<explanation>\nDry run: the repository context was fetched but no model was called.\n</explanation>",
		"<component_mapping>\n1. [Readme]: README.md\n</component_mapping>",
		"flowchart TD\n    readme[\"README\"]\n    click readme \"README.md\"",
	)
}

// newStore opens the configured diagram store. A nil store means
// persistence is disabled.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	return storage.Open(ctx, cfg.Storage)
}

// =============================================================================
// Session
// =============================================================================

func (c *CLI) sessionStore() (*session.CLIStore, error) {
	dir := c.sessionDir
	if dir == "" {
		base, err := config.ConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "sessions")
	}
	return session.NewCLIStore(dir)
}

// loadSession returns the stored GitHub login, or nil when logged out.
func (c *CLI) loadSession(ctx context.Context) (*session.Session, error) {
	store, err := c.sessionStore()
	if err != nil {
		return nil, err
	}
	return store.GetSession(ctx)
}
