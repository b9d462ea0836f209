package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"blairboard/internal/config"
	appLog "blairboard/internal/log"
)

const defaultConfigPath = "config.yaml"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "blairboard",
		Short: "blairboard – a family calendar board over iCalendar feeds",
		Long: `blairboard merges several iCalendar subscriptions into one ordered event
list and lays it out for week, two-week, four-week and month views.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}

	configDefault := os.Getenv("BLAIRBOARD_CONFIG")
	if configDefault == "" {
		configDefault = defaultConfigPath
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", configDefault, "Path to config file (env BLAIRBOARD_CONFIG)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newEventsCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	return root
}

// openConfig loads and validates the config file. On first run the
// template is written and the user is told where to find it.
func openConfig(opts *globalOptions) (*config.Store, *config.Config, error) {
	store := config.NewStore(opts.configPath)
	cfg, err := store.Get()
	if errors.Is(err, config.ErrCreated) {
		return nil, nil, fmt.Errorf("wrote a template to %s: %w", opts.configPath, err)
	}
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
