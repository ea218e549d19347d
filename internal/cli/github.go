package cli

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/config"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/pipeline"
	"github.com/easygithub/easygithub/pkg/session"
)

// githubCommand creates the github command with subcommands.
func (c *CLI) githubCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github",
		Short: "GitHub login and repository browsing",
		Long: `Authenticate with GitHub and browse your repositories.

Login uses the device flow, so no browser callback is needed. The token is
stored below the user config directory and is used for API requests whenever
no personal access token or GitHub App is configured.`,
	}

	cmd.AddCommand(c.githubLoginCommand())
	cmd.AddCommand(c.githubLogoutCommand())
	cmd.AddCommand(c.githubWhoamiCommand())
	cmd.AddCommand(c.githubReposCommand())

	return cmd
}

// githubLoginCommand creates the login subcommand.
func (c *CLI) githubLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with GitHub using device flow",
		Long: `Start the GitHub device authorization flow.

You'll be given a code to enter at https://github.com/login/device.
Once authorized, your session will be saved locally for future commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if existing, _ := c.loadSession(ctx); existing != nil {
				printInfo("Already logged in as @%s", existing.Login())
				printDetail("Run '%s github logout' first to re-authenticate", appName)
				return nil
			}
			cfg, err := c.config()
			if err != nil {
				return err
			}
			_, err = c.runGitHubLogin(ctx, cfg)
			return err
		},
	}
}

// githubLogoutCommand creates the logout subcommand.
func (c *CLI) githubLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored GitHub credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.sessionStore()
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			if err := store.DeleteSession(cmd.Context()); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			printSuccess("Logged out")
			return nil
		},
	}
}

// githubWhoamiCommand creates the whoami subcommand.
func (c *CLI) githubWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the currently authenticated GitHub user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.sessionStore()
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			sess, err := store.Require(ctx)
			if err != nil {
				return err
			}
			cfg, err := c.config()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			spinner := newSpinnerWithContext(ctx, "Verifying session...")
			spinner.Start()

			user, err := c.tokenClient(cfg, sess.AccessToken).FetchUser(ctx)
			if err != nil {
				spinner.StopWithError("Session invalid")
				return fmt.Errorf("verify session: %w", err)
			}
			spinner.Stop()

			printSuccess("GitHub Session")
			printKeyValue("Username", "@"+user.Login)
			if user.Name != "" {
				printKeyValue("Name", user.Name)
			}
			if user.Email != "" {
				printKeyValue("Email", user.Email)
			}
			printKeyValue("Logged in", sess.CreatedAt.Format("Jan 2, 2006"))
			printKeyValue("Expires", sess.ExpiresAt.Format("Jan 2, 2006"))
			printDetail("Session file: %s", store.Path())

			return nil
		},
	}
}

// githubReposCommand creates the repos subcommand.
func (c *CLI) githubReposCommand() *cobra.Command {
	opts := generateOptions{output: ".", formats: pipeline.FormatMermaid, timeout: defaultGenerateTimeout}

	cmd := &cobra.Command{
		Use:   "repos",
		Short: "Pick one of your repositories and generate its diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.config()
			if err != nil {
				return err
			}
			gh := c.newGitHub(ctx, cfg, cache.NewNullCache())
			if gh.AuthMode() == github.AuthNone {
				return session.ErrNotLoggedIn
			}

			spinner := newSpinnerWithContext(ctx, "Loading repositories...")
			spinner.Start()
			repos, err := gh.FetchUserRepos(ctx)
			if err != nil {
				spinner.StopWithError("Could not list repositories")
				return err
			}
			spinner.Stop()
			if len(repos) == 0 {
				printInfo("No repositories found")
				return nil
			}

			final, err := tea.NewProgram(NewRepoListModel(repos), tea.WithContext(ctx)).Run()
			if err != nil {
				return err
			}
			selected := final.(RepoListModel).Selected
			if selected == nil {
				return nil
			}

			opts.repoURL = selected.FullName
			if opts.branch == "" {
				opts.branch = selected.DefaultBranch
			}
			return c.runGenerate(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", opts.output, "output directory")
	f.StringVarP(&opts.formats, "format", "f", opts.formats, "comma-separated output formats: mermaid, svg, json, md")
	f.BoolVar(&opts.refresh, "refresh", false, "recompute cached stages")
	f.BoolVar(&opts.show, "show", false, "print the explanation to the terminal")
	f.BoolVar(&opts.save, "save", false, "persist the diagram to the configured store")

	return cmd
}

// tokenClient builds an uncached API client authenticated with token.
func (c *CLI) tokenClient(cfg *config.Config, token string) *github.Client {
	opts := []github.Option{github.WithLogger(c.Logger)}
	if cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.APIURL))
	}
	return github.NewClient(github.Credentials{PAT: token}, nil, 0, opts...)
}

// =============================================================================
// Device Flow Login
// =============================================================================

func (c *CLI) runGitHubLogin(ctx context.Context, cfg *config.Config) (*session.Session, error) {
	clientID := cfg.GitHub.OAuthClientID
	if clientID == "" {
		clientID = github.DefaultClientID
	}

	oauthClient := github.NewOAuthClient(github.OAuthConfig{ClientID: clientID})

	loginCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	deviceResp, err := oauthClient.RequestDeviceCode(loginCtx)
	if err != nil {
		return nil, fmt.Errorf("request device code: %w", err)
	}

	printNewline()
	fmt.Println(StyleTitle.Render("GitHub Device Authorization"))
	printNewline()
	printKeyValue("Code", StyleNumber.Render(deviceResp.UserCode))
	printKeyValue("URL", StyleLink.Render(deviceResp.VerificationURI))
	printNewline()

	if err := openBrowser(deviceResp.VerificationURI); err != nil {
		printDetail("Copy the URL above and paste it in your browser")
	} else {
		printDetail("Opening browser...")
	}
	printInline("Waiting for authorization...")

	token, err := oauthClient.PollForToken(loginCtx, deviceResp.DeviceCode, deviceResp.Interval)
	if err != nil {
		fmt.Println()
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	user, err := c.tokenClient(cfg, token.AccessToken).FetchUser(loginCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}

	sess, err := session.New(token.AccessToken, user, session.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	store, err := c.sessionStore()
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	fmt.Println()
	printSuccess("Logged in as @%s", user.Login)

	return sess, nil
}

func openBrowser(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "linux":
		cmd = exec.Command("xdg-open", rawURL)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", rawURL)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
