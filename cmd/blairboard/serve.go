package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"blairboard/internal/ics"
	appLog "blairboard/internal/log"
	"blairboard/internal/metrics"
	"blairboard/internal/scheduler"
	"blairboard/internal/web"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background cache warm-up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config and BLAIRBOARD_LISTEN)")
	return cmd
}

func runServe(parent context.Context, opts *globalOptions, listen string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cfg, err := openConfig(opts)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", opts.configPath)
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}

	appLog.Info("effective config",
		"listen", cfg.Server.Listen,
		"timezone", cfg.Timezone,
		"calendars", len(cfg.Calendars),
		"enabled", len(cfg.EnabledCalendars()),
		"cache_ttl", cfg.CacheTTL().String(),
		"fetch_timeout", cfg.FetchTimeout().String(),
		"warm_schedule", cfg.WarmSchedule(),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	fetcher := ics.NewFetcher(ics.Options{
		Timeout:  cfg.FetchTimeout(),
		CacheTTL: cfg.CacheTTL(),
		Metrics:  m,
	})

	warmer := scheduler.New(store, fetcher, nil)
	if err := warmer.Start(ctx); err != nil {
		return err
	}
	defer func() { <-warmer.Stop().Done() }()

	srv := web.NewServer(web.Options{
		Store:    store,
		Fetcher:  fetcher,
		Metrics:  m,
		Gatherer: reg,
	})
	if err := web.StartServer(ctx, srv, cfg.Server.Listen); err != nil {
		return err
	}
	appLog.Info("blairboard exiting")
	return nil
}
