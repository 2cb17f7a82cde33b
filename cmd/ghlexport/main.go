package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/internal/orchestrator"
	"github.com/ajitpratap0/ghlexport/internal/report"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/extract"
	"github.com/ajitpratap0/ghlexport/pkg/logger"
	"github.com/ajitpratap0/ghlexport/pkg/observability"
	"github.com/ajitpratap0/ghlexport/pkg/store"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
	}
	os.Exit(exitCode(err))
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "ghlexport",
		Short: "Export a GoHighLevel location through the LeadConnector API",
		Long: `ghlexport extracts the data of one GoHighLevel location domain by domain,
respecting the API rate limits, and stores a snapshot of every domain plus a
run summary.

Credentials are read from GHL_API_TOKEN and GHL_LOCATION_ID (a .env file in
the working directory is loaded first).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Path to .env file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(flags),
		newListCmd(),
		newFiltersCmd(flags),
		newManifestCmd(flags),
		newShowCmd(flags),
		newTestConnectionCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		dryRun      bool
		modules     []string
		filters     []string
		metricsFile string
		trace       bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an export",
		Long: `Run extracts the requested domains one after another. Without --modules
the default set is exported.

Example:
  ghlexport run --modules contacts,opportunities --filter opportunities=pipeline:abc`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if metricsFile != "" {
				cfg.Observability.MetricsFile = metricsFile
			}
			selected, err := parseFilters(filters)
			if err != nil {
				return err
			}
			domains := splitModules(modules)
			if len(domains) == 0 {
				domains = cfg.Export.Domains
			}
			for domain, ids := range cfg.Export.Filters {
				if _, ok := selected[domain]; !ok {
					selected[domain] = ids
				}
			}

			shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
				Enabled:        trace || cfg.Observability.EnableTracing,
				ServiceName:    "ghlexport",
				ServiceVersion: version,
				SamplingRate:   cfg.Observability.TracingSampleRate,
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize tracing")
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Warn("failed to flush traces", zap.Error(err))
				}
			}()

			a, err := newApp(ctx, cfg, !dryRun)
			if err != nil {
				return err
			}
			defer a.close()
			if dryRun {
				a.store = store.Discard{}
			}

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			plan, _ := a.registry.Resolve(domains)
			names := make([]string, len(plan))
			for i, e := range plan {
				names[i] = e.Name()
			}
			if err := report.Banner(out, cfg.API.LocationID, cfg.API.BaseURL, names, dryRun); err != nil {
				return err
			}

			summary, runErr := orch.Run(ctx, orchestrator.Options{
				DryRun:  dryRun,
				Domains: domains,
				Filters: selected,
			})
			if summary != nil {
				if err := report.Summary(out, summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate configuration and print the plan without calling the API")
	cmd.Flags().StringSliceVarP(&modules, "modules", "m", nil, "Domains to export (comma separated)")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter selection as domain=id1,id2 (repeatable)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file at the end of the run")
	cmd.Flags().BoolVar(&trace, "trace", false, "Export trace spans to stderr")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List exportable domains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := extract.NewRegistry(nil, nil, logger.Get())
			if err != nil {
				return err
			}
			rows := make([]report.Domain, 0, len(registry.Names()))
			for _, name := range registry.Names() {
				e, _ := registry.Lookup(name)
				rows = append(rows, report.Domain{Name: name, Description: e.Description(), Default: registry.IsDefault(name)})
			}
			return report.Domains(cmd.OutOrStdout(), rows)
		},
	}
}

func newFiltersCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "filters <domain>",
		Short: "Show the filter options of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()
			catalog, err := a.registry.FilterOptions(cmd.Context(), args[0], cfg.API.LocationID)
			if err != nil {
				return err
			}
			return report.Catalog(cmd.OutOrStdout(), args[0], catalog)
		},
	}
}

func newManifestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Show the newest snapshot of every domain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			m, err := a.store.List(cmd.Context(), cfg.API.LocationID)
			if err != nil {
				return err
			}
			return report.Manifest(cmd.OutOrStdout(), cfg.API.LocationID, m)
		},
	}
}

func newShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <domain>",
		Short: "Show the latest snapshot of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			snap, err := a.store.Read(cmd.Context(), args[0], cfg.API.LocationID)
			if err != nil {
				return err
			}
			if snap == nil {
				return errors.Newf(errors.ErrorTypeNotFound, "no snapshot of %s for location %s", args[0], cfg.API.LocationID)
			}
			return report.Snapshot(cmd.OutOrStdout(), snap)
		},
	}
}

func newTestConnectionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check credentials against the location endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.client.TestConnection(cmd.Context(), cfg.API.LocationID); err != nil {
				return err
			}
			budget := a.governor.State()
			fmt.Fprintf(cmd.OutOrStdout(), "connected to location %s (burst %d/%d, daily %d/%d)\n",
				cfg.API.LocationID, budget.BurstRemaining, budget.BurstMax, budget.DailyRemaining, budget.DailyMax)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ghlexport v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
