// Package diagram turns repository context into an architecture diagram in
// three model calls:
//
//  1. [Agent.Explain] describes the architecture from the file tree and README.
//  2. [Agent.MapComponents] maps the described components to repository paths.
//  3. [Agent.GenerateMermaid] draws the Mermaid flowchart with click events.
//
// [PostProcess] then rewrites the click events into GitHub links. Prompts are
// text/template files rendered with the sprig function map.
package diagram

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/llm"
)

// Stage names, used in logs, cache keys and progress events.
const (
	StageExplain = "explain"
	StageMap     = "map"
	StageMermaid = "mermaid"
)

// Artifacts are the outputs of one full run.
type Artifacts struct {
	Explanation string      `json:"explanation"`
	Mapping     string      `json:"mapping"`
	Components  []Component `json:"components"`
	Mermaid     string      `json:"mermaid"`
}

// Agent runs the three stages against one provider.
type Agent struct {
	provider    llm.Provider
	logger      *log.Logger
	temperature float64
	maxTokens   int
}

// Option configures an [Agent].
type Option func(*Agent)

// WithLogger sets the logger. The default is [log.Default].
func WithLogger(l *log.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTemperature sets the sampling temperature sent with every stage.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

// WithMaxTokens caps the completion length of every stage.
func WithMaxTokens(n int) Option {
	return func(a *Agent) { a.maxTokens = n }
}

// NewAgent creates an agent backed by p.
func NewAgent(p llm.Provider, opts ...Option) *Agent {
	a := &Agent{provider: p, logger: log.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close releases the provider.
func (a *Agent) Close() error {
	return llm.Close(a.provider)
}

// Model identifies the provider and model, e.g. "deepseek:deepseek-chat".
func (a *Agent) Model() string {
	return a.provider.Name()
}

// Explain produces the architecture explanation (stage 1).
func (a *Agent) Explain(ctx context.Context, fileTree, readme string) (string, error) {
	out, err := a.run(ctx, StageExplain, promptData{FileTree: fileTree, Readme: readme})
	if err != nil {
		return "", err
	}
	return ExtractTag(out, "explanation"), nil
}

// MapComponents maps the explanation's components to paths (stage 2). The
// returned text is the body of the <component_mapping> block; use
// [ParseMapping] for structured entries.
func (a *Agent) MapComponents(ctx context.Context, explanation, fileTree string) (string, error) {
	out, err := a.run(ctx, StageMap, promptData{Explanation: explanation, FileTree: fileTree})
	if err != nil {
		return "", err
	}
	return ExtractTag(out, "component_mapping"), nil
}

// GenerateMermaid draws the diagram (stage 3). Code fences and init
// directives are removed; click paths are still repository-relative.
func (a *Agent) GenerateMermaid(ctx context.Context, explanation, mapping string) (string, error) {
	out, err := a.run(ctx, StageMermaid, promptData{Explanation: explanation, Mapping: mapping})
	if err != nil {
		return "", err
	}
	code := Clean(out)
	if err := Validate(code); err != nil {
		a.logger.Warn("diagram failed validation", "err", err)
	}
	return code, nil
}

// FullProcess runs all three stages in order.
func (a *Agent) FullProcess(ctx context.Context, fileTree, readme string) (*Artifacts, error) {
	explanation, err := a.Explain(ctx, fileTree, readme)
	if err != nil {
		return nil, err
	}
	mapping, err := a.MapComponents(ctx, explanation, fileTree)
	if err != nil {
		return nil, err
	}
	mermaid, err := a.GenerateMermaid(ctx, explanation, mapping)
	if err != nil {
		return nil, err
	}
	return &Artifacts{
		Explanation: explanation,
		Mapping:     mapping,
		Components:  ParseMapping(mapping),
		Mermaid:     mermaid,
	}, nil
}

func (a *Agent) run(ctx context.Context, stage string, data promptData) (string, error) {
	system, user, err := messages(stage, data)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "build %s prompt", stage)
	}

	start := time.Now()
	a.logger.Debug("calling model", "stage", stage, "model", a.Model(), "prompt_chars", len(system)+len(user))
	resp, err := a.provider.Complete(ctx, llm.Request{
		System:      system,
		User:        user,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", errors.New(errors.ErrCodeLLMEmptyResponse, "%s stage returned no text", stage)
	}
	a.logger.Info("stage complete",
		"stage", stage,
		"chars", len(resp.Text),
		"tokens_in", resp.InputTokens,
		"tokens_out", resp.OutputTokens,
		"duration", time.Since(start).Round(time.Millisecond))
	return resp.Text, nil
}
