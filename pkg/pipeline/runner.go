package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/integrations"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/observability"
)

// ContextFetcher loads the repository context. [github.Client] implements it.
type ContextFetcher interface {
	Context(ctx context.Context, ref github.RepoRef, branch string) (*github.RepoContext, error)
}

// Generator runs the three model stages. [diagram.Agent] implements it.
type Generator interface {
	Model() string
	Explain(ctx context.Context, fileTree, readme string) (string, error)
	MapComponents(ctx context.Context, explanation, fileTree string) (string, error)
	GenerateMermaid(ctx context.Context, explanation, mapping string) (string, error)
}

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger, so multiple
// goroutines can safely use the same Runner with different options.
type Runner struct {
	GitHub ContextFetcher
	Agent  Generator
	Cache  cache.Cache
	Keyer  *cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner.
// If keyer is nil, an unscoped keyer is used. Callers with credentials that
// can see private repositories pass a keyer scoped to them.
// If c is nil, a NullCache is used (caching disabled).
func NewRunner(gh ContextFetcher, agent Generator, c cache.Cache, keyer *cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		GitHub: gh,
		Agent:  agent,
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete context → explain → map → mermaid → render
// pipeline with caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if opts.Refresh {
		// Upstream HTTP responses are refreshed along with the stage cache.
		ctx = integrations.WithRefresh(ctx)
	}
	ref := opts.Ref()
	model := r.Agent.Model()
	result := &Result{Repo: ref, Model: model}

	// Stage 1: repository context
	rc, hit, elapsed, err := runStage(ctx, r, &opts, StageContext,
		r.Keyer.ContextKey(ref.Owner, ref.Repo, opts.Branch), cache.TTLContext,
		func(rc *github.RepoContext) bool { return rc != nil && rc.Tree != nil },
		func() (*github.RepoContext, error) { return r.GitHub.Context(ctx, ref, opts.Branch) })
	if err != nil {
		return nil, fmt.Errorf("fetch repository context: %w", err)
	}
	result.Branch = rc.Tree.Branch
	result.Info = rc.Info
	result.Stats.ContextTime = elapsed
	result.Stats.TreeFiles = len(rc.Tree.Paths)
	result.CacheInfo.ContextHit = hit
	if rc.Tree.Truncated {
		opts.Logger.Warn("file tree was truncated by GitHub", "repo", ref.String())
	}

	fileTree := diagram.TruncateTree(rc.Tree.String(), opts.MaxTreeLines)
	readme := diagram.CondenseReadme(rc.Readme, opts.MaxReadmeChars)
	result.Stats.ReadmeChars = len(readme)
	treeHash := cache.HashString(fileTree)

	opts.Logger.Info("fetched repository",
		"repo", ref.String(),
		"branch", result.Branch,
		"files", result.Stats.TreeFiles,
		"readme_chars", len(readme),
		"duration", elapsed)

	// Stage 2: explanation
	result.Explanation, hit, elapsed, err = runStage(ctx, r, &opts, diagram.StageExplain,
		r.Keyer.StageKey(diagram.StageExplain, model, treeHash, cache.HashString(readme)), cache.TTLStage,
		nonEmpty,
		func() (string, error) { return r.Agent.Explain(ctx, fileTree, readme) })
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	result.Stats.ExplainTime = elapsed
	result.CacheInfo.ExplainHit = hit
	explanationHash := cache.HashString(result.Explanation)

	// Stage 3: component mapping
	result.Mapping, hit, elapsed, err = runStage(ctx, r, &opts, diagram.StageMap,
		r.Keyer.StageKey(diagram.StageMap, model, explanationHash, treeHash), cache.TTLStage,
		nonEmpty,
		func() (string, error) { return r.Agent.MapComponents(ctx, result.Explanation, fileTree) })
	if err != nil {
		return nil, fmt.Errorf("map components: %w", err)
	}
	result.Stats.MapTime = elapsed
	result.CacheInfo.MapHit = hit
	result.Components = diagram.ParseMapping(result.Mapping)
	result.Stats.Components = len(result.Components)

	// Stage 4: Mermaid
	raw, hit, elapsed, err := runStage(ctx, r, &opts, diagram.StageMermaid,
		r.Keyer.StageKey(diagram.StageMermaid, model, explanationHash, cache.HashString(result.Mapping)), cache.TTLStage,
		nonEmpty,
		func() (string, error) { return r.Agent.GenerateMermaid(ctx, result.Explanation, result.Mapping) })
	if err != nil {
		return nil, fmt.Errorf("generate diagram: %w", err)
	}
	result.Stats.DiagramTime = elapsed
	result.CacheInfo.DiagramHit = hit

	// Stage 5: links and output formats
	renderStart := time.Now()
	opts.emit(Event{Stage: StageRender, Status: StatusStarted})
	linker := diagram.RepoLinker{Ref: ref, Branch: result.Branch, Tree: rc.Tree}
	result.Mermaid = diagram.PostProcess(raw, linker)
	result.Artifacts, err = Render(ctx, result, linker, opts.Formats)
	result.Stats.RenderTime = time.Since(renderStart)
	if err != nil {
		opts.emit(Event{Stage: StageRender, Status: StatusFailed, Message: err.Error(), Elapsed: result.Stats.RenderTime})
		return nil, fmt.Errorf("render: %w", err)
	}
	opts.emit(Event{Stage: StageRender, Status: StatusDone, Elapsed: result.Stats.RenderTime})

	opts.Logger.Info("rendered outputs",
		"formats", opts.Formats,
		"components", result.Stats.Components,
		"duration", result.Stats.RenderTime)

	return result, nil
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

// runStage serves one stage from the cache or computes and stores it.
// Refresh skips the read but still writes. Results that fail valid are
// returned but never cached.
func runStage[T any](ctx context.Context, r *Runner, opts *Options, stage, key string, ttl time.Duration,
	valid func(T) bool, compute func() (T, error)) (T, bool, time.Duration, error) {

	repo := opts.Ref().String()
	start := time.Now()
	opts.emit(Event{Stage: stage, Status: StatusStarted})
	observability.Pipeline().OnStageStart(ctx, stage, repo)

	if !opts.Refresh {
		if data, ok, err := r.Cache.Get(ctx, key); err == nil && ok {
			var v T
			if err := json.Unmarshal(data, &v); err == nil && valid(v) {
				elapsed := time.Since(start)
				observability.Cache().OnCacheHit(ctx, stage)
				observability.Pipeline().OnStageComplete(ctx, stage, repo, true, elapsed, nil)
				opts.emit(Event{Stage: stage, Status: StatusCached, Elapsed: elapsed})
				opts.Logger.Debug("cache hit", "stage", stage)
				return v, true, elapsed, nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, stage)
	}

	v, err := compute()
	elapsed := time.Since(start)
	observability.Pipeline().OnStageComplete(ctx, stage, repo, false, elapsed, err)
	if err != nil {
		opts.emit(Event{Stage: stage, Status: StatusFailed, Message: err.Error(), Elapsed: elapsed})
		var zero T
		return zero, false, elapsed, err
	}
	opts.emit(Event{Stage: stage, Status: StatusDone, Elapsed: elapsed})

	if valid(v) {
		if data, err := json.Marshal(v); err == nil {
			if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
				opts.Logger.Warn("cache write failed", "stage", stage, "err", err)
			} else {
				observability.Cache().OnCacheSet(ctx, stage, len(data))
			}
		}
	}
	return v, false, elapsed, nil
}

// Close releases resources held by the runner: the cache and, when it holds
// any, the generator's model client.
func (r *Runner) Close() error {
	var errs []error
	if c, ok := r.Agent.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if r.Cache != nil {
		errs = append(errs, r.Cache.Close())
	}
	return stderrors.Join(errs...)
}
