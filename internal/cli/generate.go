package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/easygithub/easygithub/pkg/config"
	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/pipeline"
	"github.com/easygithub/easygithub/pkg/storage"
	"github.com/easygithub/easygithub/pkg/storage/artifact"
)

const defaultGenerateTimeout = 10 * time.Minute

// generateOptions holds the flags of the generate command.
type generateOptions struct {
	repoURL string
	output  string
	formats string
	branch  string
	timeout time.Duration

	refresh bool
	noCache bool
	show    bool
	view    bool
	save    bool
	dryRun  bool
}

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	opts := generateOptions{output: ".", formats: pipeline.FormatMermaid, timeout: defaultGenerateTimeout}

	cmd := &cobra.Command{
		Use:     "generate <repo-url>",
		Aliases: []string{"gen"},
		Short:   "Generate an architecture diagram for a GitHub repository",
		Long: `Generate an interactive architecture diagram for a GitHub repository.

The repository may be given as a URL or as owner/repo. Results of every model
stage are cached, so running the command again is cheap; use --refresh to
recompute them.`,
		Example: `  easygithub generate https://github.com/charmbracelet/glow
  easygithub generate spf13/cobra -f mermaid,svg,md -o out
  easygithub generate spf13/cobra --show --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.repoURL = args[0]
			return c.runGenerate(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", opts.output, "output directory")
	f.StringVarP(&opts.formats, "format", "f", opts.formats, "comma-separated output formats: mermaid, svg, json, md")
	f.StringVar(&opts.branch, "branch", "", "branch to read (default: the repository's default branch)")
	f.BoolVar(&opts.refresh, "refresh", false, "recompute cached stages")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the cache for this run")
	f.BoolVar(&opts.show, "show", false, "print the explanation to the terminal")
	f.BoolVar(&opts.view, "view", false, "open the result in an interactive viewer")
	f.BoolVar(&opts.save, "save", false, "persist the diagram to the configured store")
	f.DurationVar(&opts.timeout, "timeout", opts.timeout, "overall time limit")
	f.BoolVar(&opts.dryRun, "dry-run", false, "fetch the repository but answer the model stages with placeholder text")

	return cmd
}

func (c *CLI) runGenerate(ctx context.Context, opts generateOptions) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	formats := pipeline.ParseFormats(opts.formats)
	if err := pipeline.ValidateFormats(formats); err != nil {
		return err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	runner, _, err := c.newRunner(ctx, cfg, runnerOptions{noCache: opts.noCache, dryRun: opts.dryRun})
	if err != nil {
		return err
	}
	defer runner.Close()

	res, err := c.execute(ctx, runner, pipeline.Options{
		RepoURL:        opts.repoURL,
		Branch:         opts.branch,
		Refresh:        opts.refresh,
		Formats:        formats,
		MaxTreeLines:   cfg.Limits.MaxTreeLines,
		MaxReadmeChars: cfg.Limits.MaxReadmeChars,
	})
	if err != nil {
		return err
	}

	printSuccess("Generated diagram for %s %s", StyleHighlight.Render(res.Repo.String()), StyleDim.Render("@"+res.Branch))
	printStats(res)

	files, err := writeArtifacts(opts.output, res, formats)
	if err != nil {
		return err
	}
	for _, p := range files {
		printFile(p)
	}

	if opts.save {
		if err := c.saveResult(ctx, cfg, res); err != nil {
			return err
		}
	}

	if opts.show {
		printNewline()
		fmt.Println(renderMarkdown(res.Explanation))
	}
	if opts.view {
		return runViewer(ctx, res.Repo.String(), renderMarkdown(viewerMarkdown(res)))
	}

	if !opts.show && !opts.view {
		printNewline()
		printNextStep("Read the explanation", fmt.Sprintf("%s generate %s --show", appName, res.Repo))
	}
	return nil
}

// execute runs the pipeline behind a spinner that follows the stage events.
func (c *CLI) execute(ctx context.Context, runner *pipeline.Runner, opts pipeline.Options) (*pipeline.Result, error) {
	prog := newProgress(c.Logger)
	spinner := newSpinnerWithContext(ctx, stageMessage(pipeline.StageContext))
	spinner.Start()

	opts.Observer = func(e pipeline.Event) {
		switch e.Status {
		case pipeline.StatusStarted:
			spinner.SetMessage(stageMessage(e.Stage))
		case pipeline.StatusCached:
			c.Logger.Debug("stage served from cache", "stage", e.Stage)
		}
	}

	res, err := runner.Execute(ctx, opts)
	if err != nil {
		if spinner.Cancelled() && errors.Is(ctx.Err(), context.Canceled) {
			spinner.Stop()
			return nil, context.Canceled
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			spinner.StopWithError("Timed out")
			return nil, fmt.Errorf("generation timed out after %s: %w", prog.elapsed(), err)
		}
		spinner.StopWithError("Generation failed")
		return nil, err
	}
	spinner.Stop()
	prog.done("Generated diagram for " + res.Repo.String())
	return res, nil
}

func stageMessage(stage string) string {
	switch stage {
	case pipeline.StageContext:
		return "Fetching repository..."
	case diagram.StageExplain:
		return "Explaining architecture..."
	case diagram.StageMap:
		return "Mapping components to paths..."
	case diagram.StageMermaid:
		return "Drawing diagram..."
	case pipeline.StageRender:
		return "Rendering..."
	default:
		return "Working..."
	}
}

// formatExt maps output formats to file extensions.
var formatExt = map[string]string{
	pipeline.FormatMermaid:  "mmd",
	pipeline.FormatSVG:      "svg",
	pipeline.FormatJSON:     "json",
	pipeline.FormatMarkdown: "md",
}

// writeArtifacts writes one file per format named owner-repo.ext and returns
// the paths in format order.
func writeArtifacts(dir string, res *pipeline.Result, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := res.Repo.Owner + "-" + res.Repo.Repo
	var paths []string
	for _, format := range formats {
		data, ok := res.Artifacts[format]
		if !ok {
			continue
		}
		p := filepath.Join(dir, base+"."+formatExt[format])
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", format, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// saveResult stores the diagram and, when an artifact store is configured and
// SVG was rendered, uploads the SVG.
func (c *CLI) saveResult(ctx context.Context, cfg *config.Config, res *pipeline.Result) error {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store == nil {
		printWarning("Storage is disabled, nothing saved (set storage.backend)")
		return nil
	}
	defer store.Close()

	d := &storage.Diagram{
		Owner:       res.Repo.Owner,
		Repo:        res.Repo.Repo,
		Branch:      res.Branch,
		Model:       res.Model,
		Explanation: res.Explanation,
		Mapping:     res.Mapping,
		Mermaid:     res.Mermaid,
	}
	if err := store.Save(ctx, d); err != nil {
		return fmt.Errorf("save diagram: %w", err)
	}
	printSuccess("Saved diagram")
	printKeyValue("ID", d.ID)
	printKeyValue("Slug", d.Slug)

	svg, ok := res.Artifacts[pipeline.FormatSVG]
	if !ok {
		return nil
	}
	artifacts, err := artifact.Open(cfg.Artifacts)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	if artifacts == nil {
		return nil
	}
	url, err := artifacts.Put(ctx, artifact.Key(res.Repo.Owner, res.Repo.Repo, d.Slug+".svg"), svg, "image/svg+xml")
	if err != nil {
		printWarning("SVG upload failed: %v", err)
		return nil
	}
	printKeyValue("SVG", StyleLink.Render(url))
	return nil
}

// viewerMarkdown prefers the rendered markdown artifact, which carries
// component links.
func viewerMarkdown(res *pipeline.Result) string {
	if md, ok := res.Artifacts[pipeline.FormatMarkdown]; ok {
		return string(md)
	}
	return pipeline.Markdown(res, nil)
}
