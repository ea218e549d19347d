package diagram

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/llm"
)

func quietAgent(p llm.Provider) *Agent {
	return NewAgent(p, WithLogger(log.New(io.Discard)), WithTemperature(0.2), WithMaxTokens(1000))
}

func TestPrompts(t *testing.T) {
	for _, stage := range []string{StageExplain, StageMap, StageMermaid} {
		t.Run(stage, func(t *testing.T) {
			sys, user, err := messages(stage, promptData{
				FileTree:    "main.go",
				Readme:      "hello",
				Explanation: "an explanation",
				Mapping:     "1. [Main]: main.go",
			})
			if err != nil {
				t.Fatalf("messages() error = %v", err)
			}
			if sys == "" || user == "" {
				t.Fatalf("empty prompt: system=%q user=%q", sys, user)
			}
		})
	}
}

func TestExplainPromptMissingReadme(t *testing.T) {
	_, user, err := messages(StageExplain, promptData{FileTree: "a.go\n"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(user, "<file_tree>\na.go\n</file_tree>") {
		t.Errorf("file tree not wrapped:\n%s", user)
	}
	if !strings.Contains(user, "<readme>\n\n</readme>") {
		t.Errorf("missing README should leave an empty readme block:\n%s", user)
	}
	if strings.Contains(user, "no README") {
		t.Errorf("missing README should not be described to the model:\n%s", user)
	}
}

func TestFullProcess(t *testing.T) {
	p := llm.NewScripted(
		"Sure.\n<explanation>\nA CLI with a core library.\n</explanation>",
		"<component_mapping>\n1. [CLI]: cmd/tool\n2. [Core]: core/lib.go\n</component_mapping>",
		"```mermaid\nflowchart TD\n  CLI --> Core\n  click CLI \"cmd/tool\"\n```",
	)
	a := quietAgent(p)

	got, err := a.FullProcess(context.Background(), "cmd/tool/main.go\ncore/lib.go", "# Tool")
	if err != nil {
		t.Fatalf("FullProcess() error = %v", err)
	}
	if got.Explanation != "A CLI with a core library." {
		t.Errorf("Explanation = %q", got.Explanation)
	}
	if got.Mapping != "1. [CLI]: cmd/tool\n2. [Core]: core/lib.go" {
		t.Errorf("Mapping = %q", got.Mapping)
	}
	if len(got.Components) != 2 || got.Components[1].Path != "core/lib.go" {
		t.Errorf("Components = %+v", got.Components)
	}
	if got.Mermaid != "flowchart TD\n  CLI --> Core\n  click CLI \"cmd/tool\"" {
		t.Errorf("Mermaid = %q", got.Mermaid)
	}

	reqs := p.Requests()
	if len(reqs) != 3 {
		t.Fatalf("requests = %d, want 3", len(reqs))
	}
	if !strings.Contains(reqs[0].User, "core/lib.go") || !strings.Contains(reqs[0].User, "# Tool") {
		t.Errorf("explain request missing inputs:\n%s", reqs[0].User)
	}
	if !strings.Contains(reqs[1].User, "A CLI with a core library.") {
		t.Errorf("map request missing explanation:\n%s", reqs[1].User)
	}
	if !strings.Contains(reqs[2].User, "1. [CLI]: cmd/tool") {
		t.Errorf("mermaid request missing mapping:\n%s", reqs[2].User)
	}
	if reqs[0].Temperature != 0.2 || reqs[0].MaxTokens != 1000 {
		t.Errorf("request options = %v/%d", reqs[0].Temperature, reqs[0].MaxTokens)
	}
}

func TestFullProcessStopsOnError(t *testing.T) {
	p := llm.NewScripted("<explanation>x</explanation>").
		PushError(errors.New(errors.ErrCodeLLM, "boom"))
	_, err := quietAgent(p).FullProcess(context.Background(), "a.go", "")
	if !errors.Is(err, errors.ErrCodeLLM) {
		t.Fatalf("FullProcess() error = %v, want LLM_ERROR", err)
	}
	if n := len(p.Requests()); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestExplainBlankResponse(t *testing.T) {
	p := llm.NewScripted("   \n")
	_, err := quietAgent(p).Explain(context.Background(), "a.go", "")
	if !errors.Is(err, errors.ErrCodeLLMEmptyResponse) {
		t.Fatalf("Explain() error = %v, want LLM_EMPTY_RESPONSE", err)
	}
}

func TestModel(t *testing.T) {
	if got := quietAgent(llm.NewScripted()).Model(); got != "scripted:scripted" {
		t.Errorf("Model() = %q", got)
	}
}
