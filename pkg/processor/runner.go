package processor

import (
	"strings"
	"sync"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// Runner drives a single processor outside a stream. It is intended for
// tests and for trying a configuration from the CLI.
type Runner struct {
	processor Processor
	ctx       *component.Context
	services  *serviceMap
	queue     []*record.Record
	output    []*record.Record
}

// NewRunner creates a runner with an empty configuration.
func NewRunner(p Processor) *Runner {
	services := &serviceMap{services: map[string]component.ControllerService{}}
	return &Runner{
		processor: p,
		services:  services,
		ctx:       component.NewContext("test_processor", p, component.WithServiceLookup(services)),
	}
}

// Context returns the processor's configuration.
func (r *Runner) Context() *component.Context { return r.ctx }

// SetProperty sets a property and returns an error when it is rejected.
func (r *Runner) SetProperty(name, value string) error {
	res, err := r.ctx.SetProperty(name, value)
	if err != nil {
		return err
	}
	if !res.Valid {
		return errors.New(errors.ErrorTypeValidation, res.String()).WithDetail("property", name)
	}
	return nil
}

// AddControllerService configures and initializes svc under identifier and
// makes it available to the processor.
func (r *Runner) AddControllerService(identifier string, svc component.ControllerService, properties map[string]string) error {
	ctx := component.NewContext(identifier, svc, component.WithServiceLookup(r.services))
	for name, value := range properties {
		res, err := ctx.SetProperty(name, value)
		if err != nil {
			return err
		}
		if !res.Valid {
			return errors.New(errors.ErrorTypeValidation, res.String()).WithDetail("service", identifier)
		}
	}
	if err := ValidateContext(ctx); err != nil {
		return err
	}
	ctx.Finalize()
	if err := svc.Initialize(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInitialization, "service "+identifier+" failed to initialize")
	}
	r.services.add(identifier, svc)
	return nil
}

// Enqueue adds records to the next run.
func (r *Runner) Enqueue(records ...*record.Record) {
	r.queue = append(r.queue, records...)
}

// Run validates the configuration, initializes the processor and processes
// every queued record.
func (r *Runner) Run() error {
	if err := ValidateContext(r.ctx); err != nil {
		return err
	}
	if err := r.processor.Init(r.ctx); err != nil {
		return err
	}
	batch := r.queue
	r.queue = nil
	r.output = r.processor.Process(r.ctx, batch)
	return nil
}

// Output returns the records of the last run.
func (r *Runner) Output() []*record.Record { return r.output }

// ErrorRecords returns the output records that carry errors.
func (r *Runner) ErrorRecords() []*record.Record {
	var out []*record.Record
	for _, rec := range r.output {
		if rec.HasErrors() {
			out = append(out, rec)
		}
	}
	return out
}

// ValidateContext returns a validation error listing every problem of ctx,
// or nil when the configuration is valid.
func ValidateContext(ctx *component.Context) error {
	problems := ctx.Validate()
	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.String()
	}
	return errors.New(errors.ErrorTypeValidation, strings.Join(msgs, "; ")).
		WithDetail("component", ctx.Identifier())
}

type serviceMap struct {
	mu       sync.RWMutex
	services map[string]component.ControllerService
}

func (m *serviceMap) add(id string, svc component.ControllerService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[id] = svc
}

func (m *serviceMap) GetControllerService(id string) (component.ControllerService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	return svc, ok
}
