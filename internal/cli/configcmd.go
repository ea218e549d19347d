package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/easygithub/easygithub/pkg/config"
)

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long: `Inspect the effective configuration.

Settings are read from the first config file found (see 'config path'), then
from a .env file in the working directory and finally from environment
variables such as LLM_PROVIDER, DEEPSEEK_API_KEY and GITHUB_PAT.`,
	}

	cmd.AddCommand(c.configShowCommand())
	cmd.AddCommand(c.configPathCommand())

	return cmd
}

// configShowCommand creates the "config show" subcommand.
func (c *CLI) configShowCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.Source != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "# "+cfg.Source)
			}
			return cfg.Masked().Encode(cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "toml", "output format: toml or yaml")

	return cmd
}

// configPathCommand creates the "config path" subcommand.
func (c *CLI) configPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "List the config file locations in search order",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if c.configPath != "" {
				fmt.Fprintln(out, c.configPath)
				return nil
			}
			for _, p := range config.SearchPaths() {
				mark := " "
				if _, err := os.Stat(p); err == nil {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s\n", mark, filepath.Clean(p))
			}
			return nil
		},
	}
}
