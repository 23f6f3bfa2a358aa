// Package cli wires the cmtree commands together.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/sprite-ai/cmtree/internal/config"
)

var (
	cfgFile  string
	logLevel string

	// Set by the root command before any subcommand runs.
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cmtree",
	Short: "Browse threaded comments as a flat, collapsible tree",
	Long: `cmtree turns a post's comment thread into an ordered, indented list
with collapse state, vote overlays and score visibility rules applied.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./cmtree.yaml or ~/.config/cmtree/cmtree.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
		if err := c.Validate(); err != nil {
			return err
		}
	}

	l, err := c.Logging.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	cfg, logger = c, l
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
