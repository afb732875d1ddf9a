package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/config"
	"github.com/pbaille/synergy/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "synlabel",
		Short: "Manual synergy labeling of card pairs",
		Long: `synlabel shows pairs of cards side by side and records a manual
synergy label for each one.

Labels assigned during a session are written to a recovery log after every
action and folded into the master dataset at the next start.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}

			opts := logging.Options{Level: cfg.Logging.Level, Verbose: verbose}
			// The TUI owns the terminal
			if cmd.Name() == "label" {
				opts.File = cfg.Logging.File
			}
			logger, err = logging.New(opts)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "synlabel.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(labelCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(prefetchCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
