// Package pipeline runs the repository → diagram pipeline used by the CLI
// and the API server.
//
// # Stages
//
//  1. Context: fetch metadata, file tree and README from GitHub
//  2. Explain: model-written architecture explanation
//  3. Map: components of the explanation mapped to repository paths
//  4. Mermaid: diagram markup with click events
//  5. Render: link rewriting and output formats (mermaid, svg, json, md)
//
// Every stage before rendering is cached. Stage keys include the model name
// and a hash of the stage inputs, so a changed README or a different model
// never reuses stale output.
//
// # Usage
//
//	runner := pipeline.NewRunner(gh, diagram.NewAgent(provider), c, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    RepoURL: "https://github.com/owner/repo",
//	    Formats: []string{"mermaid", "svg"},
//	})
//	svg := result.Artifacts["svg"]
package pipeline

import (
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/integrations/github"
)

// Output formats.
const (
	FormatMermaid  = "mermaid"
	FormatSVG      = "svg"
	FormatJSON     = "json"
	FormatMarkdown = "md"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatMermaid:  true,
	FormatSVG:      true,
	FormatJSON:     true,
	FormatMarkdown: true,
}

// Stage names beyond the model stages defined in the diagram package.
const (
	StageContext = "context"
	StageRender  = "render"
)

// Options contains all configuration for one pipeline run.
// This struct supports JSON serialization for API requests.
type Options struct {
	RepoURL        string   `json:"repo_url"`
	Branch         string   `json:"branch,omitempty"`
	Refresh        bool     `json:"refresh,omitempty"`
	Formats        []string `json:"formats,omitempty"`
	MaxTreeLines   int      `json:"max_tree_lines,omitempty"`
	MaxReadmeChars int      `json:"max_readme_chars,omitempty"`

	// Runtime options (not serialized)
	Logger   *log.Logger `json:"-"`
	Observer Observer    `json:"-"`

	ref       github.RepoRef
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	Repo        github.RepoRef      `json:"repo"`
	Branch      string              `json:"branch"`
	Info        *github.RepoInfo    `json:"info,omitempty"`
	Model       string              `json:"model"`
	Explanation string              `json:"explanation"`
	Mapping     string              `json:"mapping"`
	Components  []diagram.Component `json:"components"`
	Mermaid     string              `json:"mermaid"`

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte `json:"-"`

	Stats     Stats     `json:"stats"`
	CacheInfo CacheInfo `json:"cache"`
}

// Stats contains input sizes and per-stage timings.
type Stats struct {
	TreeFiles   int           `json:"tree_files"`
	ReadmeChars int           `json:"readme_chars"`
	Components  int           `json:"components"`
	ContextTime time.Duration `json:"context_time"`
	ExplainTime time.Duration `json:"explain_time"`
	MapTime     time.Duration `json:"map_time"`
	DiagramTime time.Duration `json:"diagram_time"`
	RenderTime  time.Duration `json:"render_time"`
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	ContextHit bool `json:"context_hit"`
	ExplainHit bool `json:"explain_hit"`
	MapHit     bool `json:"map_hit"`
	DiagramHit bool `json:"diagram_hit"`
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be one of: mermaid, svg, json, md)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ParseFormats splits a comma-separated format list as given on the command
// line, dropping blanks and duplicates.
func ParseFormats(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// ValidateAndSetDefaults parses the repository URL, checks the formats and
// applies defaults. Calling it again is a no-op.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	ref, err := github.ParseRepoURL(o.RepoURL)
	if err != nil {
		return err
	}
	o.ref = ref
	o.Branch = strings.TrimSpace(o.Branch)

	if len(o.Formats) == 0 {
		o.Formats = []string{FormatMermaid}
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if o.MaxTreeLines <= 0 {
		o.MaxTreeLines = diagram.DefaultMaxTreeLines
	}
	if o.MaxReadmeChars <= 0 {
		o.MaxReadmeChars = diagram.DefaultMaxReadmeChars
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Ref returns the repository parsed by [Options.ValidateAndSetDefaults].
func (o *Options) Ref() github.RepoRef {
	return o.ref
}
