// Package bootstrap sequences the startup of the shell: it fetches the
// remote configuration, derives the runtime wiring and mounts the shell.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/shellboot/internal/epics"
	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/plugins"
	"github.com/nupi-ai/shellboot/internal/store"
)

// Stage names one step of the startup sequence.
type Stage string

const (
	StageFetchEndpoints        Stage = "fetch_endpoints"
	StageFetchConfigAndAccount Stage = "fetch_config_and_account"
	StageDerive                Stage = "derive_runtime_configuration"
	StageMergeProcessors       Stage = "merge_processors"
	StageMount                 Stage = "mount"
)

// StageError reports the stage a startup failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("bootstrap: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AsStageError extracts the StageError wrapped in err.
func AsStageError(err error) (*StageError, bool) {
	var target *StageError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Fetcher retrieves the remote startup payloads.
type Fetcher interface {
	Endpoints(ctx context.Context) (map[string]string, error)
	Configuration(ctx context.Context) (LocalConfig, error)
	// AccountInfo returns nil for the anonymous user.
	AccountInfo(ctx context.Context) (*Account, error)
}

// Wiring is everything the mount collaborator receives.
type Wiring struct {
	Runtime       RuntimeConfiguration
	PluginsConfig plugins.ConfigMap
	Catalog       *plugins.Catalog
	Epics         epics.Set
	Reducers      store.Reducers
}

// Mounter renders the shell with the assembled wiring.
type Mounter interface {
	Mount(ctx context.Context, w Wiring) error
}

// Reporter receives fatal startup failures.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

// Report implements Reporter.
func (f ReporterFunc) Report(err error) { f(err) }

// Phase is the coarse progress of a startup.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseMounted Phase = "mounted"
	PhaseFailed  Phase = "failed"
)

// Status is the observable progress of the orchestrator.
type Status struct {
	Phase     Phase     `json:"status"`
	Stage     Stage     `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TopicStatus carries status transitions.
var TopicStatus = eventbus.NewTopicDef[Status](eventbus.TopicBootstrapStatus)

// Orchestrator runs the startup sequence.
type Orchestrator struct {
	fetcher  Fetcher
	mounter  Mounter
	reporter Reporter
	logger   *log.Logger
	bus      *eventbus.Bus

	registry    *epics.Registry
	domainEpics epics.Set
	catalog     *plugins.Catalog
	reducers    store.Reducers

	mu       sync.Mutex
	excluded epics.Names
	status   Status
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the orchestrator logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReporter overrides where fatal failures are reported.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithBus publishes status transitions on bus.
func WithBus(bus *eventbus.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithRegistry sets the processors the configuration may enable by name.
func WithRegistry(r *epics.Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithDomainEpics sets the processors owned by the resource domain.
func WithDomainEpics(set epics.Set) Option {
	return func(o *Orchestrator) {
		o.domainEpics = set
	}
}

// WithCatalog sets the plugin definitions handed to the mount.
func WithCatalog(c *plugins.Catalog) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithReducers overrides the state slice registry handed to the mount.
func WithReducers(r store.Reducers) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reducers = r
		}
	}
}

// WithExcluded seeds the names of processors registered elsewhere.
func WithExcluded(names epics.Names) Option {
	return func(o *Orchestrator) {
		for name := range names {
			o.excluded[name] = struct{}{}
		}
	}
}

// New creates an orchestrator.
func New(fetcher Fetcher, mounter Mounter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:  fetcher,
		mounter:  mounter,
		logger:   log.Default(),
		registry: epics.NewRegistry(nil),
		catalog:  plugins.NewCatalog(),
		reducers: store.DefaultReducers(),
		excluded: epics.NewNames(),
		status:   Status{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.reporter == nil {
		logger := o.logger
		o.reporter = ReporterFunc(func(err error) {
			logger.Printf("[Bootstrap] startup failed: %v", err)
		})
	}
	return o
}

// Status returns the latest status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Excluded returns the names of processors registered so far.
func (o *Orchestrator) Excluded() epics.Names {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(epics.Names, len(o.excluded))
	for name := range o.excluded {
		out[name] = struct{}{}
	}
	return out
}

// Run performs one application load. Stages run in order and the first
// failure ends the run; it is reported and returned as a *StageError.
func (o *Orchestrator) Run(ctx context.Context, nav Navigation) error {
	if o.fetcher == nil || o.mounter == nil {
		return o.fail(ctx, StageFetchEndpoints, errors.New("fetcher and mounter are required"))
	}

	o.advance(ctx, StageFetchEndpoints)
	endpoints, err := o.fetcher.Endpoints(ctx)
	if err != nil {
		return o.fail(ctx, StageFetchEndpoints, err)
	}
	o.logger.Printf("[Bootstrap] discovered %d endpoints", len(endpoints))

	o.advance(ctx, StageFetchConfigAndAccount)
	var (
		cfg     LocalConfig
		account *Account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := o.fetcher.Configuration(gctx)
		if err != nil {
			return fmt.Errorf("configuration: %w", err)
		}
		cfg = c
		return nil
	})
	g.Go(func() error {
		a, err := o.fetcher.AccountInfo(gctx)
		if err != nil {
			return fmt.Errorf("account: %w", err)
		}
		account = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return o.fail(ctx, StageFetchConfigAndAccount, err)
	}

	o.advance(ctx, StageDerive)
	rc, err := Derive(nav, cfg, account)
	if err != nil {
		return o.fail(ctx, StageDerive, err)
	}

	o.advance(ctx, StageMergeProcessors)
	configEpics, missing := o.registry.Resolve(rc.ConfigEpics)
	if len(missing) > 0 {
		return o.fail(ctx, StageMergeProcessors, fmt.Errorf("unknown processors: %s", strings.Join(missing, ", ")))
	}
	o.mu.Lock()
	merged, excluded := epics.Merge(configEpics, o.domainEpics, o.excluded)
	o.excluded = excluded
	o.mu.Unlock()

	o.advance(ctx, StageMount)
	wiring := Wiring{
		Runtime:       rc,
		PluginsConfig: PluginsConfig(cfg, rc),
		Catalog:       o.catalog,
		Epics:         merged,
		Reducers:      o.reducers,
	}
	if err := o.mounter.Mount(ctx, wiring); err != nil {
		return o.fail(ctx, StageMount, err)
	}

	o.setStatus(ctx, Status{Phase: PhaseMounted, Stage: StageMount})
	o.logger.Printf("[Bootstrap] mounted %s (mode=%s, config=%s, processors=%d)",
		rc.TargetID, rc.Mode, rc.PluginsConfigKey, len(merged))
	return nil
}

// PluginsConfig scopes the fetched plugin configuration to the key of rc,
// applies configured overrides and adds plugins requested by the query.
func PluginsConfig(cfg LocalConfig, rc RuntimeConfiguration) plugins.ConfigMap {
	scoped := plugins.ForKey(cfg.Plugins, rc.PluginsConfigKey)
	return plugins.AddQueryPlugins(plugins.ApplyOverrides(scoped, cfg.PluginsConfigOverride), rc.Query)
}

func (o *Orchestrator) advance(ctx context.Context, stage Stage) {
	o.setStatus(ctx, Status{Phase: PhaseRunning, Stage: stage})
}

func (o *Orchestrator) fail(ctx context.Context, stage Stage, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}
	o.setStatus(ctx, Status{Phase: PhaseFailed, Stage: stage, Error: err.Error()})
	o.reporter.Report(stageErr)
	return stageErr
}

func (o *Orchestrator) setStatus(ctx context.Context, st Status) {
	st.UpdatedAt = time.Now().UTC()
	o.mu.Lock()
	o.status = st
	o.mu.Unlock()
	eventbus.Publish(ctx, o.bus, TopicStatus, eventbus.SourceBootstrap, st)
}
