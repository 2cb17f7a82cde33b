// Package orchestrator runs domain extractions strictly one after another,
// persists each result and reports a run summary.
//
// A domain failure is recorded and the run moves on to the next domain.
// Two conditions end a run early: a failed connectivity check before any
// domain starts, and an exhausted daily quota (or a cancelled context)
// while domains are running. In the second case the summary of the
// domains completed so far is still persisted and returned together with
// the fatal error.
//
// # Basic Usage
//
//	orch, err := orchestrator.New(locationID, orchestrator.Deps{
//	    Client:   client,
//	    Counter:  governor,
//	    Domains:  registry,
//	    Store:    st,
//	    Notifier: notifier,
//	    Logger:   logger.Get(),
//	})
//	summary, err := orch.Run(ctx, orchestrator.Options{Domains: []string{"contacts"}})
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/extract"
	"github.com/ajitpratap0/ghlexport/pkg/logger"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
	"github.com/ajitpratap0/ghlexport/pkg/models"
	"github.com/ajitpratap0/ghlexport/pkg/notify"
	"github.com/ajitpratap0/ghlexport/pkg/observability"
	"github.com/ajitpratap0/ghlexport/pkg/store"
)

// Connector checks upstream reachability before a run.
type Connector interface {
	TestConnection(ctx context.Context, locationID string) error
}

// RequestCounter reports the calls made in this session.
type RequestCounter interface {
	SessionRequests() int64
}

// DomainSource resolves requested domain names to extractors.
type DomainSource interface {
	Resolve(names []string) ([]extract.Extractor, []string)
	// ResetCache drops listings cached by a previous run
	ResetCache()
}

// Deps are the collaborators of an Orchestrator. Notifier, Logger and
// Metrics are optional.
type Deps struct {
	Client   Connector
	Counter  RequestCounter
	Domains  DomainSource
	Store    store.Store
	Notifier notify.Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Options select what one run does.
type Options struct {
	// DryRun resolves the plan without calling upstream or writing anything
	DryRun bool
	// Domains to run; empty runs the default set
	Domains []string
	// Filters holds the selected filter ids per domain
	Filters map[string][]string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newRunID = next }
}

// WithOnTransition installs a state observer.
func WithOnTransition(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// WithSession shares a ledger between orchestrators.
func WithSession(s *Session) Option {
	return func(o *Orchestrator) { o.session = s }
}

// Orchestrator runs extractions for one location.
type Orchestrator struct {
	locationID string
	deps       Deps
	logger     *zap.Logger
	tracer     *observability.Tracer
	session    *Session

	now          func() time.Time
	newRunID     func() string
	onTransition TransitionFunc
	state        State
}

// New creates an Orchestrator for locationID.
func New(locationID string, deps Deps, opts ...Option) (*Orchestrator, error) {
	if locationID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "location id is required")
	}
	if deps.Client == nil || deps.Counter == nil || deps.Domains == nil || deps.Store == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "orchestrator requires a client, a request counter, a domain source and a store")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	o := &Orchestrator{
		locationID: locationID,
		deps:       deps,
		logger:     deps.Logger.With(zap.String("component", "orchestrator")),
		tracer:     observability.NewTracer("orchestrator"),
		session:    NewSession(),
		now:        time.Now,
		newRunID:   uuid.NewString,
		state:      StateInit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Session returns the ledger of domains extracted by this orchestrator.
func (o *Orchestrator) Session() *Session {
	return o.session
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(to State, domain string) {
	from := o.state
	o.state = to
	o.logger.Debug("state transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("domain", domain))
	if o.onTransition != nil {
		o.onTransition(from, to, domain)
	}
}

// Run executes one extraction run. The returned error is non-nil only for
// run-fatal conditions; domain failures are reported in the summary. When
// a fatal error stops a running loop, the partial summary is returned
// alongside it.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*models.RunSummary, error) {
	o.state = StateInit
	runID := o.newRunID()
	ctx = logger.ContextWith(ctx, logger.RunIDKey, runID)
	ctx = logger.ContextWith(ctx, logger.LocationKey, o.locationID)
	log := logger.FromContext(ctx, o.logger)

	started := o.now()
	summary := models.NewRunSummary(runID, o.locationID, started)

	extractors, unknown := o.deps.Domains.Resolve(opts.Domains)
	if len(unknown) > 0 {
		log.Warn("unknown domains skipped", zap.Strings("domains", unknown))
		summary.Skipped = unknown
	}
	for _, e := range extractors {
		summary.Planned = append(summary.Planned, e.Name())
	}
	summary.TotalModules = len(extractors)

	if opts.DryRun {
		summary.DryRun = true
		summary.Finalize(o.now(), o.deps.Counter.SessionRequests())
		o.transition(StateValidated, "")
		log.Info("dry run complete, no data fetched or written", zap.Strings("domains", summary.Planned))
		return summary, nil
	}

	ctx, span := o.tracer.StartSpan(ctx, "run")
	span.SetAttribute("run_id", runID)
	span.SetAttribute("location_id", o.locationID)
	span.SetAttribute("domains", len(extractors))

	o.transition(StateConnecting, "")
	if err := o.deps.Client.TestConnection(ctx, o.locationID); err != nil {
		log.Error("connectivity check failed", zap.Error(err))
		span.Finish(err)
		return nil, errors.Wrap(err, errors.TypeOf(err), "pre-run connectivity check failed")
	}

	o.deps.Domains.ResetCache()
	o.transition(StateRunning, "")
	log.Info("extraction started", zap.Strings("domains", summary.Planned))

	var fatal error
	for _, e := range extractors {
		result, err := o.runDomain(ctx, e, extract.Selection(opts.Filters[e.Name()]))
		summary.Add(result)
		if err == nil {
			continue
		}
		if errors.IsFatal(err) {
			fatal = err
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			fatal = errors.Wrap(ctxErr, errors.ErrorTypeTimeout, "run cancelled")
		}
		if fatal != nil {
			summary.Fatal = fatal.Error()
			log.Error("run stopped", zap.String("domain", e.Name()), zap.Error(fatal))
			break
		}
	}

	o.transition(StateSummarizing, "")
	summary.Finalize(o.now(), o.deps.Counter.SessionRequests())
	o.publishSummary(context.WithoutCancel(ctx), summary)
	o.transition(StateDone, "")

	log.Info("extraction finished",
		zap.Int("successful", summary.SuccessfulModules),
		zap.Int("failed", summary.FailedModules),
		zap.Int("records", summary.TotalRecords),
		zap.Int64("api_requests", summary.TotalAPIRequests),
		zap.String("elapsed", summary.ElapsedTime))
	span.SetAttribute("records", summary.TotalRecords)
	span.Finish(fatal)
	return summary, fatal
}

// runDomain extracts, persists and publishes one domain. The error is the
// extraction error, if any; persistence and publication failures only add
// warnings.
func (o *Orchestrator) runDomain(ctx context.Context, e extract.Extractor, sel extract.Selection) (models.ModuleResult, error) {
	name := e.Name()
	ctx = logger.ContextWith(ctx, logger.DomainKey, name)
	log := logger.FromContext(ctx, o.logger)
	start := o.now()

	ctx, span := o.tracer.StartSpan(ctx, "domain")
	span.SetAttribute("domain", name)

	o.transition(StateExtracting, name)
	log.Info("extracting", zap.Strings("filters", sel))
	result, err := e.Extract(ctx, o.locationID, sel)
	if err != nil {
		elapsed := o.now().Sub(start)
		o.transition(StateFailed, name)
		log.Error("extraction failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		o.deps.Metrics.ObserveDomain(name, models.StatusFailed, 0, elapsed)
		span.Finish(err)
		return models.ModuleResult{
			Module:  name,
			Elapsed: models.FormatElapsed(elapsed),
			Status:  models.StatusFailed,
			Error:   err.Error(),
		}, err
	}
	o.session.MarkExtracted(name, o.now())

	m := models.ModuleResult{
		Module:    name,
		Count:     result.Count,
		Status:    models.StatusSuccess,
		Warnings:  result.Warnings,
		Truncated: result.Truncated,
	}
	m.ApplyDerived(result.DerivedCounts)

	o.transition(StatePersisting, name)
	ack, err := o.deps.Store.Save(ctx, name, result.Data, o.locationID, e.Description())
	if err != nil {
		log.Warn("snapshot not persisted", zap.Error(err))
		m.Warnings = append(m.Warnings, "persistence failed: "+err.Error())
		o.deps.Metrics.IncPersistenceError(backendOf(err))
	} else {
		file := ack.Location
		m.File = &file
		o.publish(ctx, notify.Event{
			Type:       notify.EventSnapshotSaved,
			RunID:      runIDOf(ctx),
			Domain:     name,
			LocationID: o.locationID,
			Count:      ack.Count,
			ExportedAt: ack.ExportedAt,
		})
	}

	elapsed := o.now().Sub(start)
	m.Elapsed = models.FormatElapsed(elapsed)
	for _, w := range m.Warnings {
		log.Warn("domain warning", zap.String("warning", w))
	}
	o.transition(StateSuccess, name)
	log.Info("extracted", zap.Int("count", m.Count), zap.String("elapsed", m.Elapsed))
	o.deps.Metrics.ObserveDomain(name, models.StatusSuccess, m.Count, elapsed)
	span.SetAttribute("records", m.Count)
	span.Finish(nil)
	return m, nil
}

// publishSummary saves the summary under SummaryDomain and announces the
// completed run. Both are best effort.
func (o *Orchestrator) publishSummary(ctx context.Context, summary *models.RunSummary) {
	log := logger.FromContext(ctx, o.logger)
	if _, err := o.deps.Store.Save(ctx, store.SummaryDomain, summary, o.locationID, "Run summary"); err != nil {
		log.Warn("run summary not persisted", zap.Error(err))
		o.deps.Metrics.IncPersistenceError(backendOf(err))
	}
	o.publish(ctx, notify.Event{
		Type:       notify.EventRunCompleted,
		RunID:      summary.RunID,
		LocationID: o.locationID,
		Count:      summary.TotalRecords,
		ExportedAt: summary.ExportedAt,
		Summary:    summary,
	})
}

func (o *Orchestrator) publish(ctx context.Context, event notify.Event) {
	if err := o.deps.Notifier.Publish(ctx, event); err != nil {
		logger.FromContext(ctx, o.logger).Warn("event not published",
			zap.String("type", string(event.Type)), zap.Error(err))
		o.deps.Metrics.IncNotificationError()
	}
}

// Apply hands the latest snapshot of domain to fn. The domain must have
// been extracted by this session first.
func (o *Orchestrator) Apply(ctx context.Context, domain string, fn func(context.Context, *store.Snapshot) error) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if err := o.session.RequireExtracted(domain); err != nil {
		return err
	}
	snap, err := o.deps.Store.Read(ctx, domain, o.locationID)
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.Newf(errors.ErrorTypeNotFound, "no snapshot of %s for location %s", domain, o.locationID)
	}
	if err := fn(ctx, snap); err != nil {
		return errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("apply %s", domain))
	}
	return nil
}

func runIDOf(ctx context.Context) string {
	id, _ := ctx.Value(logger.RunIDKey).(string)
	return id
}

func backendOf(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		if v, ok := e.Detail("backend"); ok {
			if name, ok := v.(string); ok {
				return name
			}
		}
	}
	return "unknown"
}
