// Package commands implements CLI command handlers for analysisd.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/analysisd/pkg/config"
	"github.com/Sumatoshi-tech/analysisd/pkg/settings"
	"github.com/Sumatoshi-tech/analysisd/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	noColor    bool
}

// NewRootCommand builds the analysisd command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "analysisd",
		Short: "analysisd - batched media analysis pipeline",
		Long: `analysisd schedules analyze and delete actions for media items,
runs them in batches and keeps pending work on disk for crash recovery.

Commands:
  run       Feed actions from a file or stdin through the pipeline
  pending   Show actions persisted by an interrupted run
  library   Import media items and list stored analyses`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: .analysisd.yaml in CWD or $HOME)")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newRunCommand(flags))
	rootCmd.AddCommand(newPendingCommand(flags))
	rootCmd.AddCommand(newLibraryCommand(flags))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.debug {
		cfg.Observability.LogLevel = "debug"
	}

	return cfg, nil
}

func pendingStore(cfg *config.Config) (*settings.FileStore[settings.PendingActions], error) {
	codec, err := cfg.Codec()
	if err != nil {
		return nil, err
	}

	return settings.NewFileStore[settings.PendingActions](
		cfg.Persistence.Dir, cfg.Persistence.Basename, codec,
	), nil
}
