package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"golang.org/x/term"
)

const markdownWidth = 100

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderMarkdown renders md for the terminal. Terminals get the auto-detected
// glamour style, pipes get the ASCII style, and md is returned unchanged when
// rendering fails.
func renderMarkdown(md string) string {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(markdownWidth)}
	if isTTY() {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStyles(styles.ASCIIStyleConfig))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// =============================================================================
// ViewerModel - scrollable result viewer
// =============================================================================

// ViewerModel shows pre-rendered content in a scrollable viewport.
type ViewerModel struct {
	Title    string
	content  string
	viewport viewport.Model
	ready    bool
}

// NewViewerModel creates a viewer for content.
func NewViewerModel(title, content string) ViewerModel {
	return ViewerModel{Title: title, content: content}
}

func (m ViewerModel) Init() tea.Cmd {
	return nil
}

func (m ViewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		height := msg.Height - viewerChromeHeight
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// viewerChromeHeight is the number of lines used by the header and footer.
const viewerChromeHeight = 4

func (m ViewerModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("↑/↓ scroll  q quit  %3.0f%%", m.viewport.ScrollPercent()*100)))
	return b.String()
}

func runViewer(ctx context.Context, title, content string) error {
	p := tea.NewProgram(NewViewerModel(title, content), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
