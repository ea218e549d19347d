package cli

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/easygithub/easygithub/pkg/integrations/github"
)

func testRepos() []github.Repo {
	return []github.Repo{
		{FullName: "acme/widgets", Language: "Go", Description: "Widget factory", DefaultBranch: "main"},
		{FullName: "acme/gadgets", Language: "Rust", Private: true},
		{FullName: "acme/cli", Language: "Go", Description: "Command line tools"},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m tea.Model, keys ...string) tea.Model {
	for _, k := range keys {
		m, _ = m.Update(key(k))
	}
	return m
}

func TestRepoListNavigation(t *testing.T) {
	m := send(NewRepoListModel(testRepos()), "down", "down", "down", "up").(RepoListModel)
	if m.Cursor != 1 {
		t.Errorf("Cursor = %d, want 1", m.Cursor)
	}

	m = send(m, "k", "k").(RepoListModel)
	if m.Cursor != 0 {
		t.Errorf("Cursor = %d, want 0 after moving past the top", m.Cursor)
	}
}

func TestRepoListSelect(t *testing.T) {
	model, cmd := send(NewRepoListModel(testRepos()), "j").Update(key("enter"))
	m := model.(RepoListModel)
	if m.Selected == nil || m.Selected.FullName != "acme/gadgets" {
		t.Fatalf("Selected = %+v, want acme/gadgets", m.Selected)
	}
	if cmd == nil {
		t.Error("enter should quit the program")
	}
}

func TestRepoListQuit(t *testing.T) {
	for _, k := range []string{"q", "esc", "ctrl+c"} {
		model, cmd := NewRepoListModel(testRepos()).Update(key(k))
		if cmd == nil {
			t.Errorf("%s should quit", k)
		}
		if model.(RepoListModel).Selected != nil {
			t.Errorf("%s should not select", k)
		}
	}
}

func TestRepoListFilter(t *testing.T) {
	m := send(NewRepoListModel(testRepos()), "/", "g", "o").(RepoListModel)
	if m.Filter() != "go" {
		t.Fatalf("Filter() = %q, want go", m.Filter())
	}
	if visible := m.Visible(); len(visible) != 2 {
		t.Fatalf("filter %q matched %d repos, want 2", m.Filter(), len(visible))
	}

	m = send(m, "esc", "/", "t", "o", "o", "l").(RepoListModel)
	visible := m.Visible()
	if len(visible) != 1 || visible[0].FullName != "acme/cli" {
		t.Fatalf("filter %q matched %+v, want acme/cli by description", m.Filter(), visible)
	}

	// q is typed into the filter instead of quitting.
	model, _ := m.Update(key("q"))
	m = model.(RepoListModel)
	if len(m.Visible()) != 0 {
		t.Errorf("filter %q should match nothing", m.Filter())
	}
	if !strings.Contains(m.View(), "no matching repositories") {
		t.Error("view should report an empty result")
	}

	m = send(m, "esc").(RepoListModel)
	if m.Filter() != "" || len(m.Visible()) != 3 {
		t.Errorf("esc should clear the filter, got %q with %d repos", m.Filter(), len(m.Visible()))
	}
}

func TestRepoListFilterThenSelect(t *testing.T) {
	m := send(NewRepoListModel(testRepos()), "/", "r", "u", "s", "t", "enter", "enter").(RepoListModel)
	if m.Selected == nil || m.Selected.FullName != "acme/gadgets" {
		t.Fatalf("Selected = %+v, want acme/gadgets", m.Selected)
	}
}

func TestRepoListWindowSize(t *testing.T) {
	model, _ := NewRepoListModel(testRepos()).Update(tea.WindowSizeMsg{Width: 80, Height: 6})
	if got := model.(RepoListModel).Height; got != 5 {
		t.Errorf("Height = %d, want minimum 5", got)
	}
}

func TestRepoListView(t *testing.T) {
	view := NewRepoListModel(testRepos()).View()
	for _, want := range []string{"Select Repository", "acme/widgets", "acme/gadgets", "[1/3]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewerModel(t *testing.T) {
	m := NewViewerModel("acme/widgets", "line 1\nline 2")
	if m.View() != "Loading..." {
		t.Errorf("view before sizing = %q", m.View())
	}

	model, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	view := model.View()
	if !strings.Contains(view, "acme/widgets") || !strings.Contains(view, "line 2") {
		t.Errorf("view missing title or content:\n%s", view)
	}

	if _, cmd := model.Update(key("q")); cmd == nil {
		t.Error("q should quit the viewer")
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		in   string
		want string
	}{
		{"not a time", "not a time"},
		{now.Add(-5 * time.Minute).Format(time.RFC3339), "5m ago"},
		{now.Add(-3 * time.Hour).Format(time.RFC3339), "3h ago"},
		{now.Add(-49 * time.Hour).Format(time.RFC3339), "2d ago"},
		{"2020-01-02T03:04:05Z", "Jan 2, 2020"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(tt.in); got != tt.want {
			t.Errorf("formatRelativeTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderMarkdownFallsBackToText(t *testing.T) {
	out := renderMarkdown("# Title\n\nSome **bold** text.")
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Errorf("renderMarkdown() lost content:\n%s", out)
	}
}
