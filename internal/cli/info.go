package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/easygithub/easygithub/pkg/integrations/github"
)

// infoCommand creates the info command.
func (c *CLI) infoCommand() *cobra.Command {
	var (
		depth   int
		branch  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "info <repo-url>",
		Short: "Show repository metadata and file tree",
		Long: `Show repository metadata and the file tree that the diagram stages would
see. Excluded paths such as dependencies, build output and binaries are already
filtered out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInfo(cmd.Context(), args[0], branch, depth, noCache)
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 2, "maximum tree depth to print (0 for unlimited)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch to read (default: the repository's default branch)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the HTTP cache")

	return cmd
}

func (c *CLI) runInfo(ctx context.Context, repoURL, branch string, depth int, noCache bool) error {
	ref, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return err
	}
	cfg, err := c.config()
	if err != nil {
		return err
	}
	ch, err := newCache(ctx, cfg, noCache)
	if err != nil {
		return err
	}
	defer ch.Close()
	gh := c.newGitHub(ctx, cfg, ch)

	spinner := newSpinnerWithContext(ctx, "Fetching repository...")
	spinner.Start()
	info, err := gh.RepoInfo(ctx, ref)
	if err != nil {
		spinner.StopWithError("Repository unavailable")
		return err
	}
	if branch == "" {
		branch = info.DefaultBranch
	}
	t, err := gh.FileTreeAt(ctx, ref, branch)
	if err != nil {
		spinner.StopWithError("File tree unavailable")
		return err
	}
	spinner.Stop()

	printRepoInfo(info, t)
	printNewline()
	root := github.BuildFileTree(t.Paths, depth)
	fmt.Println(renderFileTree(ref.String(), root))
	if summary := treeSummary(root.CountFiles(), len(t.Paths)); summary != "" {
		printDetail("%s", summary)
	}
	if t.Truncated {
		printWarning("GitHub truncated the file tree")
	}
	printNewline()
	printNextStep("Generate a diagram", fmt.Sprintf("%s generate %s", appName, ref))
	return nil
}

func printRepoInfo(info *github.RepoInfo, t *github.Tree) {
	fmt.Println(StyleTitle.Render(info.FullName))
	if info.Description != "" {
		printDetail("%s", info.Description)
	}
	printNewline()
	if info.Language != "" {
		printKeyValue("Language", info.Language)
	}
	printKeyValue("Branch", t.Branch)
	printKeyValue("Stars", StyleNumber.Render(strconv.Itoa(info.Stars)))
	printKeyValue("Forks", StyleNumber.Render(strconv.Itoa(info.Forks)))
	printKeyValue("Issues", StyleNumber.Render(strconv.Itoa(info.OpenIssues)))
	if info.License != "" {
		printKeyValue("License", info.License)
	}
	if len(info.Topics) > 0 {
		printKeyValue("Topics", strings.Join(info.Topics, ", "))
	}
	if info.UpdatedAt != nil {
		printKeyValue("Updated", formatRelativeTime(info.UpdatedAt.Format(time.RFC3339)))
	}
	printKeyValue("Files", StyleNumber.Render(strconv.Itoa(len(t.Paths))))
	if info.Archived {
		printWarning("Repository is archived")
	}
}

// treeSummary reports how many files the depth limit hid, or "" when the
// tree is complete.
func treeSummary(shown, total int) string {
	if shown >= total {
		return ""
	}
	return fmt.Sprintf("showing %d of %d files (raise --depth to see more)", shown, total)
}

var (
	treeDirStyle  = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	treeFileStyle = lipgloss.NewStyle().Foreground(colorWhite)
	treeLangStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// renderFileTree draws n with box-drawing branches. Directories that lost
// their children to the depth limit are marked with a trailing "/…".
func renderFileTree(title string, n *github.FileNode) string {
	t := tree.Root(treeDirStyle.Render(title)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(treeLangStyle)
	for _, child := range n.Children {
		t.Child(fileTreeNode(child))
	}
	return t.String()
}

func fileTreeNode(n *github.FileNode) any {
	if !n.IsDir {
		label := treeFileStyle.Render(n.Name)
		if n.Language != "" {
			label += " " + treeLangStyle.Render(n.Language)
		}
		return label
	}
	if len(n.Children) == 0 {
		return treeDirStyle.Render(n.Name + "/…")
	}
	t := tree.Root(treeDirStyle.Render(n.Name + "/"))
	for _, child := range n.Children {
		t.Child(fileTreeNode(child))
	}
	return t
}
