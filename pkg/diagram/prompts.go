package diagram

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var (
	promptsOnce sync.Once
	promptSet   *template.Template
	promptsErr  error
)

// promptData is the value every prompt template is executed with.
type promptData struct {
	FileTree    string
	Readme      string
	Explanation string
	Mapping     string
}

func loadPrompts() (*template.Template, error) {
	promptsOnce.Do(func() {
		promptSet, promptsErr = template.New("prompts").
			Funcs(sprig.TxtFuncMap()).
			ParseFS(promptFS, "prompts/*.tmpl")
	})
	return promptSet, promptsErr
}

// renderPrompt executes the named template ("explain_system", "map_user", ...).
func renderPrompt(name string, data promptData) (string, error) {
	t, err := loadPrompts()
	if err != nil {
		return "", fmt.Errorf("parse prompts: %w", err)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// messages renders the system and user prompt pair of one stage.
func messages(stage string, data promptData) (system, user string, err error) {
	if system, err = renderPrompt(stage+"_system", data); err != nil {
		return "", "", err
	}
	if user, err = renderPrompt(stage+"_user", data); err != nil {
		return "", "", err
	}
	return system, user, nil
}
