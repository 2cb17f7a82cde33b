package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/internal/orchestrator"
	"github.com/ajitpratap0/ghlexport/pkg/clients"
	"github.com/ajitpratap0/ghlexport/pkg/config"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/extract"
	"github.com/ajitpratap0/ghlexport/pkg/logger"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
	"github.com/ajitpratap0/ghlexport/pkg/notify"
	"github.com/ajitpratap0/ghlexport/pkg/store"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	envFile    string
	logLevel   string
}

// app is the wired object graph of one invocation. A fresh governor is
// built per app so quota accounting never leaks between runs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	governor *clients.RateGovernor
	client   *clients.ResilientClient
	registry *extract.Registry
	store    store.Store
	notifier notify.Notifier
}

// loadConfig reads .env, the optional config file and the environment,
// initializes the global logger and validates the result.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load "+flags.envFile)
	}
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp wires the client stack. The store and notifier are opened only
// when withSinks is set.
func newApp(ctx context.Context, cfg *config.Config, withSinks bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     logger.Get().With(zap.String("component", "cli")),
		metrics: metrics.New(),
	}

	a.governor = clients.NewRateGovernor(logger.Get(),
		clients.WithGovernorConfig(clients.GovernorConfig{
			DailyFloor:   cfg.Governor.DailyFloor,
			BurstFloor:   cfg.Governor.BurstFloor,
			BurstPadding: cfg.Governor.BurstPadding,
		}),
		clients.WithGovernorMetrics(a.metrics))

	clientCfg := clients.DefaultClientConfig()
	clientCfg.BaseURL = cfg.API.BaseURL
	clientCfg.Token = cfg.API.Token
	clientCfg.APIVersion = cfg.API.Version
	clientCfg.MaxAttempts = cfg.Reliability.RetryAttempts
	clientCfg.RetryBackoff = cfg.Reliability.RetryDelay
	clientCfg.DefaultRetryAfter = cfg.Reliability.DefaultRetryAfter
	clientCfg.RequestsPerSecond = cfg.API.RequestsPerSecond
	clientCfg.UserAgent = "ghlexport/" + version

	client, err := clients.NewResilientClient(clientCfg, a.governor, logger.Get(), clients.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	a.client = client

	paginator := clients.NewPaginator(client, logger.Get(),
		clients.WithPageSize(cfg.Pagination.PageSize),
		clients.WithMaxPages(cfg.Pagination.MaxPages),
		clients.WithPaginatorMetrics(a.metrics))
	a.registry, err = extract.NewRegistry(client, paginator, logger.Get(), extract.WithRegistryMetrics(a.metrics))
	if err != nil {
		return nil, err
	}

	if !withSinks {
		return a, nil
	}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	a.notifier, err = notify.New(cfg.Notify, logger.Get())
	if err != nil {
		_ = a.store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	st, err := store.Open(ctx, a.cfg, store.WithLogger(logger.Get()), store.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.store = st
	return nil
}

func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	return orchestrator.New(a.cfg.API.LocationID, orchestrator.Deps{
		Client:   a.client,
		Counter:  a.governor,
		Domains:  a.registry,
		Store:    a.store,
		Notifier: a.notifier,
		Logger:   logger.Get(),
		Metrics:  a.metrics,
	})
}

// close releases the sinks and dumps metrics when a metrics file is set.
func (a *app) close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.log.Warn("failed to close notifier", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close store", zap.Error(err))
		}
	}
	if path := a.cfg.Observability.MetricsFile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
		}
	}
}

// parseFilters turns repeated domain=id1,id2 flags into a selection map.
// Repeating a domain appends to its selection.
func parseFilters(values []string) (map[string][]string, error) {
	out := make(map[string][]string, len(values))
	for _, v := range values {
		domain, ids, ok := strings.Cut(v, "=")
		domain = strings.ToLower(strings.TrimSpace(domain))
		if !ok || domain == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "invalid filter %q, expected domain=id1,id2", v)
		}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out[domain] = append(out[domain], id)
			}
		}
	}
	return out, nil
}

// splitModules accepts both repeated and comma separated --modules values.
func splitModules(values []string) []string {
	var out []string
	for _, v := range values {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func describe(err error) string {
	return fmt.Sprintf("error: %v", err)
}
