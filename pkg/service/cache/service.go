// Package cache provides an in-memory LRU controller service that maps keys
// to records. Processors such as enrich_records look cached records up by a
// per-record key.
package cache

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/controller"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/metrics"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// Class is the catalog name of the LRU cache service.
const Class = "service.cache.lru"

var (
	SizeProperty = component.NewPropertyDescriptor("cache.size").
			Description("Maximum number of records kept before the least recently used is evicted").
			DefaultValue("1024").
			AddValidator(component.PositiveInteger).
			Build()

	TTLProperty = component.NewPropertyDescriptor("cache.ttl").
			Description("Time after which an entry expires; 0s keeps entries until evicted").
			DefaultValue("0s").
			AddValidator(component.TimePeriod).
			Build()

	CopyProperty = component.NewPropertyDescriptor("cache.copy.records").
			Description("Store and return copies so callers cannot mutate cached records").
			DefaultValue("true").
			AllowableValues("true", "false").
			Build()
)

func init() {
	if err := controller.Register(Class, func() component.ControllerService { return New() }); err != nil {
		panic(err)
	}
}

// Service is the lookup contract processors depend on.
type Service interface {
	Get(key string) (*record.Record, bool)
	Set(key string, r *record.Record)
	Delete(key string) bool
	Len() int
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// LRU is the service.cache.lru implementation.
type LRU struct {
	id     string
	cache  atomic.Pointer[lru]
	copy   bool
	logger *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

var _ Service = (*LRU)(nil)

// New creates an uninitialized cache. Lookups miss until Initialize runs.
func New() *LRU {
	return &LRU{logger: logger.With(zap.String("component", "lru_cache"))}
}

// PropertyDescriptors implements component.Configurable.
func (c *LRU) PropertyDescriptors() []*component.PropertyDescriptor {
	return []*component.PropertyDescriptor{SizeProperty, TTLProperty, CopyProperty}
}

// Initialize reads the configuration and allocates the cache.
func (c *LRU) Initialize(ctx component.InitializationContext) error {
	size, err := ctx.GetPropertyValue(SizeProperty.Name()).AsInt()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInitialization, "invalid cache.size")
	}
	ttl, err := ctx.GetPropertyValue(TTLProperty.Name()).AsDuration()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInitialization, "invalid cache.ttl")
	}
	copyRecords, err := ctx.GetPropertyValue(CopyProperty.Name()).AsBoolean()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInitialization, "invalid cache.copy.records")
	}

	c.id = ctx.Identifier()
	c.copy = copyRecords
	c.logger = c.logger.With(zap.String("service", c.id))

	store := newLRU(size, ttl)
	store.onEvict = func(string) {
		c.evictions.Add(1)
		metrics.CacheOperations.WithLabelValues(c.id, metrics.CacheEvict).Inc()
	}
	c.cache.Store(store)

	c.logger.Info("cache initialized",
		zap.Int("size", size),
		zap.Duration("ttl", ttl),
		zap.Bool("copy", copyRecords))
	return nil
}

// Get returns the record stored under key.
func (c *LRU) Get(key string) (*record.Record, bool) {
	store := c.cache.Load()
	if store == nil {
		return nil, false
	}
	r, ok := store.get(key)
	if !ok {
		c.misses.Add(1)
		metrics.CacheOperations.WithLabelValues(c.id, metrics.CacheMiss).Inc()
		return nil, false
	}
	c.hits.Add(1)
	metrics.CacheOperations.WithLabelValues(c.id, metrics.CacheHit).Inc()
	if c.copy {
		return r.Clone(), true
	}
	return r, true
}

// Set stores r under key. Nil records are ignored.
func (c *LRU) Set(key string, r *record.Record) {
	store := c.cache.Load()
	if store == nil || r == nil {
		return
	}
	if c.copy {
		r = r.Clone()
	}
	store.set(key, r)
}

// Delete removes key and reports whether it was present.
func (c *LRU) Delete(key string) bool {
	store := c.cache.Load()
	if store == nil {
		return false
	}
	return store.delete(key)
}

// Len returns the number of cached records.
func (c *LRU) Len() int {
	store := c.cache.Load()
	if store == nil {
		return 0
	}
	return store.len()
}

// Keys returns cached keys, most recently used first.
func (c *LRU) Keys() []string {
	store := c.cache.Load()
	if store == nil {
		return nil
	}
	return store.keys()
}

// Stats returns the current counters.
func (c *LRU) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

// Shutdown drops every entry.
func (c *LRU) Shutdown(context.Context) error {
	if store := c.cache.Load(); store != nil {
		store.clear()
	}
	c.logger.Debug("cache cleared", zap.Any("stats", c.Stats()))
	return nil
}
