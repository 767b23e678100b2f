package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/config"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/logging"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configFile string
	verbose    int

	cfg    *config.Config
	logger zerolog.Logger
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel()
	if a.verbose > 0 {
		level = logging.LevelForVerbosity(a.verbose)
	}
	a.logger = logging.New(stderr, level)
	if cfg.Source != "" {
		a.logger.Debug().Str("path", cfg.Source).Msg("loaded config file")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:   "fsbatch",
		Short: "Validate, execute and revert batches of filesystem operations",
		Long: `fsbatch applies multi-step filesystem changes described in a plan file.
A plan is validated against the filesystem before anything is touched, executed
in order with a stop or continue failure policy, and can be reverted afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/fsbatch/config.toml)")
	cmd.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newPlanCommand(a))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  `Print the version number of fsbatch`,
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fsbatch version %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
