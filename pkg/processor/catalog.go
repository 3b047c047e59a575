package processor

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
)

// Factory is a function that creates a new, unconfigured processor.
type Factory func() Processor

// Catalog manages processor registration and instantiation
type Catalog struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Global catalog instance, populated by init of this package
var defaultCatalog = NewCatalog()

// NewCatalog creates an empty processor catalog
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
		logger:    logger.Get().With(zap.String("component", "processor_catalog")),
	}
}

// DefaultCatalog returns the global catalog holding the built-in processors.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Register registers a processor in the global catalog
func Register(class string, factory Factory) error {
	return defaultCatalog.Register(class, factory)
}

// Register registers a processor factory
func (c *Catalog) Register(class string, factory Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[class]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("processor %s already registered", class))
	}

	c.factories[class] = factory
	c.logger.Debug("processor registered", zap.String("class", class))
	return nil
}

// Create creates a processor instance
func (c *Catalog) Create(class string) (Processor, error) {
	c.mu.RLock()
	factory, exists := c.factories[class]
	c.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("processor %s not found", class))
	}

	p := factory()
	if p == nil {
		return nil, errors.New(errors.ErrorTypeInternal, fmt.Sprintf("factory for processor %s returned nil", class))
	}
	return p, nil
}

// List returns the registered processor classes, sorted
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

// Has checks if a processor is registered
func (c *Catalog) Has(class string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.factories[class]
	return exists
}

func mustRegister(class string, factory Factory) {
	if err := Register(class, factory); err != nil {
		panic(err)
	}
}

func init() {
	mustRegister(AddFieldsClass, func() Processor { return &AddFields{} })
	mustRegister(EnrichRecordsClass, func() Processor { return &EnrichRecords{} })
	mustRegister(PublishRecordsClass, func() Processor { return &PublishRecords{} })
}
