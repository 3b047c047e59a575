// Package controller resolves controller services by identifier.
//
// A Registry is built from an ordered list of ServiceConfiguration entries
// and resolves services lazily: the first lookup of an identifier creates
// the service from its class, seeds an initialization context from the
// entry's configuration and calls Initialize. Each identifier moves through
//
//	UNRESOLVED -> RESOLVING -> INITIALIZED
//	                       \-> FAILED
//
// FAILED is terminal for the lifetime of the registry. Initialization runs
// at most once per identifier, even under concurrent first lookups. Lookups
// never return errors; an unusable service is reported as absent and the
// reason is logged.
package controller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/metrics"
)

// State is the resolution state of one service identifier.
type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateInitialized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "RESOLVING"
	case StateInitialized:
		return "INITIALIZED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNRESOLVED"
	}
}

// ServiceConfiguration is one registered service entry.
type ServiceConfiguration struct {
	Identifier    string
	Class         string
	Documentation string
	Configuration map[string]string
}

// Shutdowner is implemented by services holding resources that must be
// released when the registry is closed.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Registry lazily resolves controller services. It is safe for concurrent use.
type Registry struct {
	catalog *Catalog
	logger  *zap.Logger

	mu       sync.RWMutex
	configs  []ServiceConfiguration
	states   map[string]State
	services map[string]component.ControllerService
	order    []string
	closed   bool
	// waits[x][y] counts lookups made by x's initializer that are blocked
	// on y.
	waits map[string]map[string]int

	group singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithCatalog sets the factory catalog. The default catalog is used otherwise.
func WithCatalog(c *Catalog) Option {
	return func(r *Registry) { r.catalog = c }
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l.With(zap.String("component", "controller_registry")) }
}

// NewRegistry creates a registry over configs. Nothing is instantiated
// until the first lookup.
func NewRegistry(configs []ServiceConfiguration, opts ...Option) *Registry {
	r := &Registry{
		catalog:  defaultCatalog,
		logger:   logger.Get().With(zap.String("component", "controller_registry")),
		configs:  append([]ServiceConfiguration(nil), configs...),
		states:   make(map[string]State),
		services: make(map[string]component.ControllerService),
		waits:    make(map[string]map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetControllerService returns the initialized service for identifier,
// resolving it on first use.
func (r *Registry) GetControllerService(identifier string) (component.ControllerService, bool) {
	return r.resolve(identifier, nil)
}

func (r *Registry) resolve(identifier string, path []string) (component.ControllerService, bool) {
	r.mu.RLock()
	closed, state, svc := r.closed, r.states[identifier], r.services[identifier]
	r.mu.RUnlock()

	switch {
	case closed:
		return nil, false
	case state == StateInitialized:
		return svc, true
	case state == StateFailed:
		return nil, false
	}

	for _, id := range path {
		if id == identifier {
			r.logger.Error("circular controller service dependency",
				zap.String("identifier", identifier),
				zap.String("chain", strings.Join(path, " -> ")+" -> "+identifier))
			return nil, false
		}
	}

	if len(path) > 0 {
		requester := path[len(path)-1]
		if cycle := r.await(requester, identifier); cycle != nil {
			r.logger.Error("circular controller service dependency",
				zap.String("identifier", identifier),
				zap.String("chain", strings.Join(cycle, " -> ")))
			return nil, false
		}
		defer r.release(requester, identifier)
	}

	v, _, _ := r.group.Do(identifier, func() (interface{}, error) {
		return r.initialize(identifier, path), nil
	})
	svc, ok := v.(component.ControllerService)
	if !ok || svc == nil {
		r.logger.Warn("controller service not available", zap.String("identifier", identifier))
		metrics.ServiceResolutions.WithLabelValues("", metrics.OutcomeAbsent).Inc()
		return nil, false
	}
	return svc, true
}

// await records that requester's initializer is about to block on
// identifier. It returns the dependency chain instead when identifier's
// initialization is itself, directly or through other services, waiting on
// requester in another goroutine.
func (r *Registry) await(requester, identifier string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chain := r.waitChain(identifier, requester, map[string]bool{}); chain != nil {
		return append([]string{requester}, chain...)
	}
	if r.waits[requester] == nil {
		r.waits[requester] = make(map[string]int)
	}
	r.waits[requester][identifier]++
	return nil
}

func (r *Registry) release(requester, identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deps := r.waits[requester]
	if deps[identifier]--; deps[identifier] <= 0 {
		delete(deps, identifier)
	}
	if len(deps) == 0 {
		delete(r.waits, requester)
	}
}

// waitChain returns the wait path from -> ... -> to, or nil. Callers hold mu.
func (r *Registry) waitChain(from, to string, visited map[string]bool) []string {
	if from == to {
		return []string{to}
	}
	if visited[from] {
		return nil
	}
	visited[from] = true
	deps := make([]string, 0, len(r.waits[from]))
	for dep := range r.waits[from] {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	for _, dep := range deps {
		if chain := r.waitChain(dep, to, visited); chain != nil {
			return append([]string{from}, chain...)
		}
	}
	return nil
}

// initialize runs inside the singleflight call for identifier, so at most
// one goroutine executes it per identifier at a time.
func (r *Registry) initialize(identifier string, path []string) component.ControllerService {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	switch r.states[identifier] {
	case StateInitialized:
		svc := r.services[identifier]
		r.mu.Unlock()
		return svc
	case StateFailed:
		r.mu.Unlock()
		return nil
	}
	var entries []ServiceConfiguration
	for _, cfg := range r.configs {
		if cfg.Identifier == identifier {
			entries = append(entries, cfg)
		}
	}
	if len(entries) == 0 {
		r.mu.Unlock()
		return nil
	}
	r.states[identifier] = StateResolving
	r.mu.Unlock()

	chain := append(append([]string(nil), path...), identifier)
	for _, cfg := range entries {
		svc, err := r.instantiate(cfg, chain)
		if err != nil {
			r.logger.Error("failed to initialize controller service",
				zap.String("identifier", cfg.Identifier),
				zap.String("class", cfg.Class),
				zap.Error(err))
			metrics.ServiceResolutions.WithLabelValues(cfg.Class, metrics.OutcomeFailed).Inc()
			continue
		}

		r.mu.Lock()
		if r.closed {
			r.states[identifier] = StateFailed
			r.mu.Unlock()
			r.discard(identifier, svc)
			return nil
		}
		r.services[identifier] = svc
		r.states[identifier] = StateInitialized
		r.order = append(r.order, identifier)
		r.mu.Unlock()

		metrics.ServiceResolutions.WithLabelValues(cfg.Class, metrics.OutcomeInitialized).Inc()
		metrics.ActiveServices.Inc()
		r.logger.Info("controller service initialized",
			zap.String("identifier", identifier),
			zap.String("class", cfg.Class))
		return svc
	}

	r.mu.Lock()
	r.states[identifier] = StateFailed
	r.mu.Unlock()
	return nil
}

// discard shuts down a service whose initialization finished after Close.
func (r *Registry) discard(identifier string, svc component.ControllerService) {
	r.logger.Warn("registry closed during initialization, discarding service", zap.String("identifier", identifier))
	s, ok := svc.(Shutdowner)
	if !ok {
		return
	}
	if err := s.Shutdown(context.Background()); err != nil {
		r.logger.Error("controller service shutdown failed", zap.String("identifier", identifier), zap.Error(err))
	}
}

// instantiate creates, configures and initializes one entry. A panic at any
// step fails the entry.
func (r *Registry) instantiate(cfg ServiceConfiguration, chain []string) (svc component.ControllerService, err error) {
	defer func() {
		if p := recover(); p != nil {
			svc = nil
			err = errors.New(errors.ErrorTypeInitialization, fmt.Sprintf("%s panicked during initialization: %v", cfg.Identifier, p))
		}
	}()

	svc, err = r.catalog.Create(cfg.Class)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeResolution,
			fmt.Sprintf("cannot instantiate %s", cfg.Identifier))
	}

	ictx := component.NewContext(cfg.Identifier, svc,
		component.WithName(cfg.Class),
		component.WithServiceLookup(&dependencyLookup{registry: r, chain: chain}))

	keys := make([]string, 0, len(cfg.Configuration))
	for k := range cfg.Configuration {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		res, err := ictx.SetProperty(k, cfg.Configuration[k])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeResolution, fmt.Sprintf("cannot configure %s", cfg.Identifier))
		}
		if !res.Valid {
			return nil, errors.New(errors.ErrorTypeResolution, fmt.Sprintf("invalid configuration for %s: %s", cfg.Identifier, res)).
				WithDetail("property", k)
		}
	}
	if problems := ictx.Validate(); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.String()
		}
		return nil, errors.New(errors.ErrorTypeResolution,
			fmt.Sprintf("invalid configuration for %s: %s", cfg.Identifier, strings.Join(msgs, "; ")))
	}
	ictx.Finalize()

	if err := svc.Initialize(ictx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeResolution, fmt.Sprintf("initialization of %s failed", cfg.Identifier))
	}
	return svc, nil
}

// dependencyLookup is handed to services during initialization. It carries
// the resolution chain so cycles are reported instead of deadlocking.
type dependencyLookup struct {
	registry *Registry
	chain    []string
}

func (d *dependencyLookup) GetControllerService(identifier string) (component.ControllerService, bool) {
	return d.registry.resolve(identifier, d.chain)
}

// State returns the resolution state of identifier.
func (r *Registry) State(identifier string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[identifier]
}

// Identifiers returns the configured identifiers in configuration order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.configs))
	ids := make([]string, 0, len(r.configs))
	for _, cfg := range r.configs {
		if !seen[cfg.Identifier] {
			seen[cfg.Identifier] = true
			ids = append(ids, cfg.Identifier)
		}
	}
	return ids
}

// Configurations returns a copy of the configuration list.
func (r *Registry) Configurations() []ServiceConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ServiceConfiguration(nil), r.configs...)
}

// Initialized returns the initialized identifiers, sorted.
func (r *Registry) Initialized() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddConfigurations appends entries. Initialized services are not touched;
// unresolved identifiers see the new entries on their next lookup.
func (r *Registry) AddConfigurations(entries ...ServiceConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, entries...)
}

// ResolveAll resolves every configured identifier and returns those that
// could not be resolved.
func (r *Registry) ResolveAll() []string {
	var failed []string
	for _, id := range r.Identifiers() {
		if _, ok := r.GetControllerService(id); !ok {
			failed = append(failed, id)
		}
	}
	return failed
}

// Close shuts down initialized services in reverse initialization order.
// Later lookups return absent.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	order := append([]string(nil), r.order...)
	services := r.services
	r.services = make(map[string]component.ControllerService)
	r.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		metrics.ActiveServices.Dec()
		s, ok := services[id].(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			r.logger.Error("controller service shutdown failed", zap.String("identifier", id), zap.Error(err))
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeInternal, fmt.Sprintf("shutdown of %s failed", id)))
			continue
		}
		r.logger.Debug("controller service shut down", zap.String("identifier", id))
	}
	return errors.Join(errs...)
}
