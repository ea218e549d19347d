package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/easygithub/easygithub/pkg/integrations/github"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// RepoListModel - Interactive repository selection
// =============================================================================

// RepoListModel is the bubbletea model for interactive repo selection.
// Pressing "/" filters the list by name, description and language.
type RepoListModel struct {
	Repos    []github.Repo
	Cursor   int
	Selected *github.Repo
	Height   int
	Offset   int

	visible   []int
	filter    textinput.Model
	filtering bool
}

// NewRepoListModel creates a new repo list model.
func NewRepoListModel(repos []github.Repo) RepoListModel {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter"
	m := RepoListModel{
		Repos:  repos,
		Height: 15,
		filter: ti,
	}
	m.applyFilter()
	return m
}

// Visible returns the repositories that match the current filter.
func (m RepoListModel) Visible() []github.Repo {
	out := make([]github.Repo, len(m.visible))
	for i, idx := range m.visible {
		out[i] = m.Repos[idx]
	}
	return out
}

// Filter returns the current filter text.
func (m RepoListModel) Filter() string {
	return m.filter.Value()
}

func (m *RepoListModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for i, r := range m.Repos {
		if q == "" || matchesRepo(r, q) {
			m.visible = append(m.visible, i)
		}
	}
	m.Cursor, m.Offset = 0, 0
}

func matchesRepo(r github.Repo, q string) bool {
	return strings.Contains(strings.ToLower(r.FullName), q) ||
		strings.Contains(strings.ToLower(r.Description), q) ||
		strings.Contains(strings.ToLower(r.Language), q)
}

func (m RepoListModel) Init() tea.Cmd {
	return nil
}

func (m RepoListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.filtering {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "/":
			m.filtering = true
			return m, m.filter.Focus()
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.visible)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.visible) == 0 {
				return m, nil
			}
			repo := m.Repos[m.visible[m.Cursor]]
			m.Selected = &repo
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m RepoListModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filter.SetValue("")
		m.filter.Blur()
		m.filtering = false
		m.applyFilter()
		return m, nil
	case "enter":
		m.filter.Blur()
		m.filtering = false
		return m, nil
	}
	var cmd tea.Cmd
	before := m.filter.Value()
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.applyFilter()
	}
	return m, cmd
}

func (m RepoListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Repository"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  / filter  ⏎ generate  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.visible) {
		end = len(m.visible)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Repos[m.visible[i]]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		visibility := "✓"
		if r.Private {
			visibility = ""
		}
		lang := r.Language
		if lang == "" {
			lang = "-"
		}
		rows = append(rows, []string{cursor, r.FullName, lang, visibility, strconv.Itoa(r.Stars), formatRelativeTime(r.UpdatedAt)})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Repository", "Lang", "Public", "Stars", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle()
			if col >= 3 {
				base = base.Foreground(colorDim)
			}
			if m.Offset+row == m.Cursor {
				if col < 3 {
					return base.Foreground(colorGreen).Bold(true)
				}
				return base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(listSelectedStyle.Render(m.filter.View()))
		b.WriteString("  ")
	}
	if len(m.visible) == 0 {
		b.WriteString(listDimStyle.Render("no matching repositories"))
	} else {
		b.WriteString(listDimStyle.Render(fmt.Sprintf("[%d/%d]", m.Cursor+1, len(m.visible))))
	}

	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

func formatRelativeTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}

	diff := time.Since(t)
	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
