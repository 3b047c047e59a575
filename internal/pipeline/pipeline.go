// Package pipeline executes the streams of a job file.
//
// A Pipeline owns one controller.Registry built from the job's controller
// services and one Stream per configured stream. Each processor of a stream
// gets its own component.Context, wired to the registry so controller
// service properties resolve lazily on first use.
//
//	job, _ := config.LoadJob("job.yml")
//	p, err := pipeline.New(job)
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx)
//
//	stream, _ := p.Stream("main")
//	out, err := stream.Process(ctx, records)
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/config"
	"github.com/ajitpratap0/recordflow/pkg/controller"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/processor"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// Pipeline is the runtime form of a job.
type Pipeline struct {
	name     string
	registry *controller.Registry
	streams  []*Stream
	logger   *zap.Logger
}

type options struct {
	logger     *zap.Logger
	processors *processor.Catalog
	services   *controller.Catalog
	registry   *controller.Registry
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger used by the pipeline, its registry and streams.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProcessorCatalog sets the catalog processors are created from.
func WithProcessorCatalog(c *processor.Catalog) Option {
	return func(o *options) { o.processors = c }
}

// WithServiceCatalog sets the catalog controller services are created from.
func WithServiceCatalog(c *controller.Catalog) Option {
	return func(o *options) { o.services = c }
}

// WithRegistry uses r instead of building a registry from the job. The
// pipeline takes ownership and closes it.
func WithRegistry(r *controller.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New builds every stream of job: processors are created, configured,
// validated and initialized. On failure nothing remains open.
func New(job *config.Job, opts ...Option) (*Pipeline, error) {
	o := options{
		processors: processor.DefaultCatalog(),
		services:   controller.DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	registry := o.registry
	if registry == nil {
		registry = controller.NewRegistry(job.ServiceConfigurations(),
			controller.WithCatalog(o.services),
			controller.WithLogger(o.logger),
		)
	}

	p := &Pipeline{
		name:     job.Name,
		registry: registry,
		logger:   o.logger.With(zap.String("component", "pipeline"), zap.String("job", job.Name)),
	}

	batchSize := job.Engine.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	for _, sc := range job.Streams {
		s, err := newStream(sc, batchSize, registry, o.processors, o.logger)
		if err != nil {
			if cerr := registry.Close(context.Background()); cerr != nil {
				p.logger.Warn("failed to close registry", zap.Error(cerr))
			}
			return nil, err
		}
		p.streams = append(p.streams, s)
	}

	p.logger.Info("pipeline ready",
		zap.Int("streams", len(p.streams)),
		zap.Strings("services", registry.Identifiers()))
	return p, nil
}

// Name returns the job name.
func (p *Pipeline) Name() string { return p.name }

// Registry returns the pipeline's controller service registry.
func (p *Pipeline) Registry() *controller.Registry { return p.registry }

// Streams returns the streams in job order.
func (p *Pipeline) Streams() []*Stream { return append([]*Stream(nil), p.streams...) }

// Stream returns the named stream.
func (p *Pipeline) Stream(name string) (*Stream, bool) {
	for _, s := range p.streams {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// ProcessAll runs a copy of records through every stream concurrently and
// returns the output of each stream keyed by name.
func (p *Pipeline) ProcessAll(ctx context.Context, records []*record.Record) (map[string][]*record.Record, error) {
	results := make([][]*record.Record, len(p.streams))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range p.streams {
		batch := records
		if len(p.streams) > 1 {
			batch = cloneAll(records)
		}
		g.Go(func() error {
			out, err := s.Process(gctx, batch)
			results[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]*record.Record, len(p.streams))
	for i, s := range p.streams {
		out[s.name] = results[i]
	}
	return out, nil
}

// Close shuts the controller services down.
func (p *Pipeline) Close(ctx context.Context) error {
	err := p.registry.Close(ctx)
	if err != nil {
		p.logger.Error("pipeline closed with errors", zap.Error(err))
		return err
	}
	p.logger.Info("pipeline closed")
	return nil
}

func cloneAll(records []*record.Record) []*record.Record {
	out := make([]*record.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Identifier returns the context identifier of the processor at index of a
// stream: its name, or class#index when unnamed.
func Identifier(pc config.ProcessorConfig, index int) string {
	if pc.Name != "" {
		return pc.Name
	}
	return fmt.Sprintf("%s#%d", pc.Class, index)
}

// configure applies properties to ctx and returns every rejected value.
func configure(ctx *component.Context, properties map[string]string) error {
	var problems []error
	for name, value := range properties {
		res, err := ctx.SetProperty(name, value)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if !res.Valid {
			problems = append(problems, errors.New(errors.ErrorTypeValidation, res.String()).
				WithDetail("property", name))
		}
	}
	if err := errors.Join(problems...); err != nil {
		return err
	}
	return processor.ValidateContext(ctx)
}
