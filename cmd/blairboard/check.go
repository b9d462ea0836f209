package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"blairboard/internal/config"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print what browsers would receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := openConfig(opts)
			if err != nil {
				return err
			}
			return printCheck(cmd.OutOrStdout(), opts.configPath, cfg)
		},
	}
}

// printCheck writes a one-line summary followed by the client config as
// YAML. Feed URLs are never part of the output.
func printCheck(w io.Writer, path string, cfg *config.Config) error {
	schedule := cfg.WarmSchedule()
	if schedule == "" {
		schedule = "disabled"
	}
	fmt.Fprintf(w, "%s: ok (%d calendars, %d enabled, timezone %s, warm %s)\n",
		path, len(cfg.Calendars), len(cfg.EnabledCalendars()), cfg.Location(), schedule)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.ClientConfig()); err != nil {
		return fmt.Errorf("encode client config: %w", err)
	}
	return enc.Close()
}
