package controller

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
)

// Factory creates a new, unconfigured controller service instance.
type Factory func() component.ControllerService

// Catalog maps implementation class names to factories.
type Catalog struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

var defaultCatalog = NewCatalog()

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
		logger:    logger.Get().With(zap.String("component", "service_catalog")),
	}
}

// DefaultCatalog returns the catalog populated by service packages' init.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Register adds a factory to the default catalog.
func Register(class string, factory Factory) error {
	return defaultCatalog.Register(class, factory)
}

// Register registers a controller service factory
func (c *Catalog) Register(class string, factory Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[class]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("controller service class %s already registered", class))
	}

	c.factories[class] = factory
	c.logger.Debug("controller service registered", zap.String("class", class))
	return nil
}

// Create instantiates the named class.
func (c *Catalog) Create(class string) (component.ControllerService, error) {
	c.mu.RLock()
	factory, exists := c.factories[class]
	c.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("controller service class %s not found", class))
	}

	svc := factory()
	if svc == nil {
		return nil, errors.New(errors.ErrorTypeInternal, fmt.Sprintf("factory for %s returned nil", class))
	}
	return svc, nil
}

// List returns the registered class names, sorted.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	classes := make([]string, 0, len(c.factories))
	for name := range c.factories {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	return classes
}

// Has checks if a class is registered
func (c *Catalog) Has(class string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.factories[class]
	return exists
}
